package expense

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

// Detector flags, but never blocks, an expense that exactly matches the
// vendor, two-decimal amount and date of one already on record for the
// organization. Ties resolve to the earliest-created match.
type Detector struct {
	expenses *repository.ExpenseRepository
	logger   *zap.Logger
}

func NewDetector(expenses *repository.ExpenseRepository, logger *zap.Logger) *Detector {
	return &Detector{expenses: expenses, logger: logger}
}

// Check sets IsDuplicate and DuplicateOfID on the expense when a match
// exists. The expense itself is excluded from the search so re-checks are
// stable.
func (d *Detector) Check(ctx context.Context, e *models.Expense) error {
	match, err := d.expenses.FindDuplicate(ctx, e.OrganizationID, e.VendorName, e.Amount, e.Date, &e.ID)
	if errors.Is(err, repository.ErrNotFound) {
		e.IsDuplicate = false
		e.DuplicateOfID = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("duplicate lookup: %w", err)
	}

	e.IsDuplicate = true
	id := match.ID
	e.DuplicateOfID = &id
	d.logger.Debug("duplicate expense detected",
		zap.String("expense_id", e.ID.String()),
		zap.String("duplicate_of", match.ID.String()))
	return nil
}
