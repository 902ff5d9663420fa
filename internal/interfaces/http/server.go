// Package http is the HTTP adapter: it translates requests into service
// calls and service results into JSON responses.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/auth"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP server adapter.
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	tokens     *auth.TokenProvider
	orgs       *repository.OrganizationRepository
	logger     *zap.Logger
}

func NewServer(
	config ServerConfig,
	handlers *Handlers,
	tokens *auth.TokenProvider,
	orgs *repository.OrganizationRepository,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: handlers,
		tokens:   tokens,
		orgs:     orgs,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(corsMiddleware())
	s.router.MaxMultipartMemory = 16 << 20
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)

	// Signed download links carry their own authorization in the query.
	s.router.GET("/api/files/*key", s.handlers.DownloadFile)

	api := s.router.Group("/api")
	{
		api.POST("/auth/register", s.handlers.Register)
		api.POST("/auth/login", s.handlers.Login)
	}

	authed := api.Group("")
	authed.Use(auth.Middleware(s.tokens, s.orgs))
	{
		authed.GET("/auth/organizations", s.handlers.ListMyOrganizations)

		authed.POST("/invoices", s.handlers.UploadInvoice)
		authed.GET("/invoices", s.handlers.ListInvoices)
		authed.GET("/invoices/:id", s.handlers.GetInvoice)
		authed.GET("/invoices/:id/download", s.handlers.InvoiceDownloadURL)
		authed.POST("/invoices/:id/reprocess", s.handlers.ReprocessInvoice)
		authed.DELETE("/invoices/:id", s.handlers.DeleteInvoice)

		authed.POST("/expenses", s.handlers.CreateExpense)
		authed.GET("/expenses", s.handlers.ListExpenses)
		authed.GET("/expenses/:id", s.handlers.GetExpense)
		authed.PUT("/expenses/:id", s.handlers.UpdateExpense)
		authed.POST("/expenses/:id/approve", s.handlers.ApproveExpense)
		authed.POST("/expenses/:id/reject", s.handlers.RejectExpense)
		authed.POST("/expenses/bulk", s.handlers.BulkCreateExpenses)
		authed.POST("/expenses/bulk-approve", s.handlers.BulkApproveExpenses)
		authed.DELETE("/expenses/:id", s.handlers.DeleteExpense)

		authed.GET("/categories", s.handlers.ListCategories)
		authed.POST("/categories", s.handlers.CreateCategory)
		authed.DELETE("/categories/:id", s.handlers.DeleteCategory)

		authed.GET("/vendors", s.handlers.ListVendors)
		authed.GET("/vendors/:id", s.handlers.GetVendor)
		authed.PUT("/vendors/:id/category", s.handlers.SetVendorCategory)

		admin := authed.Group("")
		admin.Use(auth.RequireAdmin())
		{
			admin.POST("/policies", s.handlers.CreatePolicy)
			admin.PUT("/policies/:id", s.handlers.UpdatePolicy)
			admin.DELETE("/policies/:id", s.handlers.DeletePolicy)

			admin.POST("/budgets", s.handlers.CreateBudget)
			admin.PUT("/budgets/:id", s.handlers.UpdateBudget)
			admin.DELETE("/budgets/:id", s.handlers.DeleteBudget)
		}

		authed.GET("/policies", s.handlers.ListPolicies)
		authed.GET("/policies/:id", s.handlers.GetPolicy)
		authed.GET("/policy-violations", s.handlers.ListPolicyViolations)

		authed.GET("/budgets", s.handlers.ListBudgetProgress)
		authed.GET("/budgets/:id", s.handlers.GetBudget)
		authed.GET("/budget-alerts", s.handlers.ListBudgetAlerts)

		authed.POST("/recurring", s.handlers.CreateRecurring)
		authed.POST("/expenses/:id/recurring", s.handlers.CreateRecurringFromExpense)
		authed.GET("/recurring", s.handlers.ListRecurring)
		authed.GET("/recurring/:id", s.handlers.GetRecurring)
		authed.PUT("/recurring/:id", s.handlers.UpdateRecurring)
		authed.DELETE("/recurring/:id", s.handlers.DeleteRecurring)

		authed.GET("/reports/dashboard", s.handlers.Dashboard)
		authed.GET("/reports/tax-summary", s.handlers.TaxSummary)
		authed.POST("/reports/export", s.handlers.ExportExpenses)

		authed.POST("/assistant/chat", s.handlers.AssistantChat)
	}
}

// Start runs the server until the context is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing).
func (s *Server) Router() *gin.Engine {
	return s.router
}
