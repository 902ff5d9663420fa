package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/ai"
	"github.com/invoiceai/invoiceai-server/internal/assistant"
	"github.com/invoiceai/invoiceai-server/internal/auth"
	"github.com/invoiceai/invoiceai-server/internal/budget"
	"github.com/invoiceai/invoiceai-server/internal/config"
	"github.com/invoiceai/invoiceai-server/internal/expense"
	httpserver "github.com/invoiceai/invoiceai-server/internal/interfaces/http"
	"github.com/invoiceai/invoiceai-server/internal/invoice"
	"github.com/invoiceai/invoiceai-server/internal/notification"
	"github.com/invoiceai/invoiceai-server/internal/policy"
	"github.com/invoiceai/invoiceai-server/internal/recurring"
	"github.com/invoiceai/invoiceai-server/internal/report"
	"github.com/invoiceai/invoiceai-server/internal/repository"
	"github.com/invoiceai/invoiceai-server/internal/storage"
	"github.com/invoiceai/invoiceai-server/internal/vendor"
	"github.com/invoiceai/invoiceai-server/internal/worker"
	"github.com/invoiceai/invoiceai-server/pkg/database"
	"github.com/invoiceai/invoiceai-server/pkg/utils"
)

func main() {
	// Local development reads overrides from .env; absence is fine.
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice processing server",
		zap.Int("port", cfg.Server.Port),
		zap.String("ai_provider", cfg.AI.Provider))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	orgRepo := repository.NewOrganizationRepository(db.DB, logger)
	categoryRepo := repository.NewCategoryRepository(db.DB, logger)
	invoiceRepo := repository.NewInvoiceRepository(db.DB, logger)
	expenseRepo := repository.NewExpenseRepository(db.DB, logger)
	vendorRepo := repository.NewVendorRepository(db.DB, logger)
	policyRepo := repository.NewPolicyRepository(db.DB, logger)
	budgetRepo := repository.NewBudgetRepository(db.DB, logger)
	recurringRepo := repository.NewRecurringRepository(db.DB, logger)

	// Document storage
	store, err := storage.NewLocalStore(cfg.Storage.BaseDir, cfg.Storage.SigningSecret, cfg.Storage.URLTTL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	// Notifications. No SMTP host means notices are logged only.
	var dispatcher notification.Dispatcher
	if cfg.Email.SMTPHost != "" {
		dispatcher = notification.NewEmailDispatcher(cfg.Email, logger)
	} else {
		logger.Warn("SMTP not configured, email notifications disabled")
		dispatcher = notification.NewNopDispatcher(logger)
	}

	// AI provider for extraction and the assistant
	provider, err := ai.NewProvider(&cfg.AI, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AI provider", zap.Error(err))
	}

	// Domain services
	aggregator := vendor.NewAggregator(vendorRepo, logger)
	vendorService := vendor.NewService(vendorRepo, categoryRepo, logger)
	detector := expense.NewDetector(expenseRepo, logger)
	engine := policy.NewEngine(policyRepo, expenseRepo, categoryRepo, orgRepo, dispatcher, logger)
	monitor := budget.NewMonitor(budgetRepo, expenseRepo, categoryRepo, orgRepo, dispatcher, logger)
	expenseService := expense.NewService(db, expenseRepo, categoryRepo, detector, aggregator, engine, monitor, logger)
	invoiceService := invoice.NewService(invoiceRepo, expenseRepo, store, logger)
	pipeline := invoice.NewPipeline(invoiceRepo, categoryRepo, orgRepo, expenseService, provider, store, dispatcher, logger)
	policyService := policy.NewService(policyRepo, categoryRepo, logger)
	budgetService := budget.NewService(budgetRepo, expenseRepo, categoryRepo, logger)
	recurringService := recurring.NewService(db, recurringRepo, expenseRepo, categoryRepo, aggregator, logger)
	reportService := report.NewService(expenseRepo, categoryRepo, logger)
	exporter := report.NewExporter(expenseRepo, categoryRepo, dispatcher, logger)
	assistantService := assistant.NewService(provider, expenseRepo, logger)

	tokens := auth.NewTokenProvider(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authService := auth.NewService(db, orgRepo, categoryRepo, tokens, logger)

	// Background workers
	invoiceWorker := worker.NewInvoiceWorker(invoiceRepo, pipeline, cfg.Worker, logger)
	invoiceService.SetProcessingKick(invoiceWorker.Kick)

	recurringWorker, err := worker.NewRecurringWorker(recurringService, cfg.Worker.RecurringAt, logger)
	if err != nil {
		logger.Fatal("Failed to initialize recurring worker", zap.Error(err))
	}

	manager := worker.NewManager(logger)
	manager.Register(invoiceWorker)
	manager.Register(recurringWorker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// HTTP server
	handlers := httpserver.NewHandlers(
		authService,
		invoiceService,
		expenseService,
		categoryRepo,
		vendorService,
		policyService,
		budgetService,
		recurringService,
		reportService,
		exporter,
		assistantService,
		store,
		logger,
	)
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, tokens, orgRepo, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	cancel()
	manager.StopAll()
	if err := server.Stop(); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server exited")
}
