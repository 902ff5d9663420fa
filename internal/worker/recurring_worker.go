package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/recurring"
)

// RecurringWorker fires the recurring-expense scheduler once a day at a
// fixed UTC wall-clock time. Single-instance deployments only; there is
// no distributed lock.
type RecurringWorker struct {
	service *recurring.Service
	hour    int
	minute  int
	now     func() time.Time
	logger  *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
}

// NewRecurringWorker parses "HH:MM" (UTC) as the daily fire time.
func NewRecurringWorker(service *recurring.Service, at string, logger *zap.Logger) (*RecurringWorker, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("invalid recurring schedule %q (want HH:MM): %w", at, err)
	}
	return &RecurringWorker{
		service: service,
		hour:    t.Hour(),
		minute:  t.Minute(),
		now:     time.Now,
		logger:  logger,
	}, nil
}

func (w *RecurringWorker) Name() string { return "recurring-scheduler" }

func (w *RecurringWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("recurring worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("recurring worker starting",
		zap.String("fires_at", fmt.Sprintf("%02d:%02d UTC", w.hour, w.minute)))

	go w.loop(runCtx)
	return nil
}

func (w *RecurringWorker) Stop() {
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

func (w *RecurringWorker) loop(ctx context.Context) {
	defer close(w.done)

	for {
		wait := w.untilNextFire()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		today := w.now().UTC().Truncate(24 * time.Hour)
		if _, err := w.service.ProcessDue(ctx, today); err != nil {
			w.logger.Error("recurring processing run failed", zap.Error(err))
		}
	}
}

// untilNextFire returns the duration until the next HH:MM UTC, always in
// the future so a run never fires twice for the same day.
func (w *RecurringWorker) untilNextFire() time.Duration {
	now := w.now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), w.hour, w.minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
