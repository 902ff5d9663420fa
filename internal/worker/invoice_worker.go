package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/config"
	"github.com/invoiceai/invoiceai-server/internal/invoice"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

// InvoiceWorker drains the UPLOADED invoice backlog. It polls on an
// interval and additionally wakes immediately when Kick is called after an
// upload commits. Per-invoice claiming (a conditional status update)
// keeps concurrent drains from double-processing.
type InvoiceWorker struct {
	invoices *repository.InvoiceRepository
	pipeline *invoice.Pipeline

	pollInterval   time.Duration
	batchSize      int
	concurrency    int
	processTimeout time.Duration

	kick   chan struct{}
	logger *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
}

func NewInvoiceWorker(
	invoices *repository.InvoiceRepository,
	pipeline *invoice.Pipeline,
	cfg config.WorkerConfig,
	logger *zap.Logger,
) *InvoiceWorker {
	return &InvoiceWorker{
		invoices:       invoices,
		pipeline:       pipeline,
		pollInterval:   cfg.PollInterval,
		batchSize:      cfg.BatchSize,
		concurrency:    cfg.Concurrency,
		processTimeout: cfg.ProcessTimeout,
		kick:           make(chan struct{}, 1),
		logger:         logger,
	}
}

func (w *InvoiceWorker) Name() string { return "invoice-processor" }

// Kick wakes the worker without waiting out the poll interval. Non-blocking;
// a pending wake-up is enough.
func (w *InvoiceWorker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *InvoiceWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("invoice worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("invoice worker starting",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int("batch_size", w.batchSize),
		zap.Int("concurrency", w.concurrency))

	go w.loop(runCtx)
	return nil
}

func (w *InvoiceWorker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
}

func (w *InvoiceWorker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Drain whatever was pending before this process started.
	w.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-w.kick:
			w.drain(ctx)
		}
	}
}

// drain processes pending invoices in batches until the backlog is empty
// or the context ends. A bounded semaphore holds concurrent extractions
// at the configured limit.
func (w *InvoiceWorker) drain(ctx context.Context) {
	for {
		pending, err := w.invoices.ListPending(ctx, w.batchSize)
		if err != nil {
			w.logger.Error("poll pending invoices", zap.Error(err))
			return
		}
		if len(pending) == 0 {
			return
		}

		sem := make(chan struct{}, w.concurrency)
		var wg sync.WaitGroup
		for _, inv := range pending {
			select {
			case <-ctx.Done():
				wg.Wait()
				return
			case sem <- struct{}{}:
			}

			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				defer func() { <-sem }()

				runCtx, cancel := context.WithTimeout(ctx, w.processTimeout)
				defer cancel()
				if err := w.pipeline.Process(runCtx, id); err != nil {
					w.logger.Warn("invoice processing error",
						zap.String("invoice_id", id.String()),
						zap.Error(err))
				}
			}(inv.ID)
		}
		wg.Wait()

		if len(pending) < w.batchSize {
			return
		}
	}
}
