package expense

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/budget"
	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/policy"
	"github.com/invoiceai/invoiceai-server/internal/repository"
	"github.com/invoiceai/invoiceai-server/internal/vendor"
	"github.com/invoiceai/invoiceai-server/pkg/database"
)

// ErrNotReviewable is returned when an approve/reject lands on an expense
// that has already been reviewed.
var ErrNotReviewable = fmt.Errorf("expense has already been reviewed")

// ErrInvalidInput wraps validation failures so the HTTP layer can answer 400.
var ErrInvalidInput = fmt.Errorf("invalid input")

// LineItemInput is one manual line item.
type LineItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// CreateExpenseInput is the validated shape for manual expense entry.
type CreateExpenseInput struct {
	VendorName  string
	Amount      decimal.Decimal
	Currency    string
	TaxAmount   decimal.Decimal
	Date        time.Time
	Description string
	CategoryID  *uuid.UUID
	LineItems   []LineItemInput
}

// Service owns the expense lifecycle: creation (manual, extraction and
// recurring paths all converge on persist), review transitions, and the
// post-transition side effects.
type Service struct {
	db         *database.DB
	expenses   *repository.ExpenseRepository
	categories *repository.CategoryRepository
	detector   *Detector
	aggregator *vendor.Aggregator
	engine     *policy.Engine
	monitor    *budget.Monitor
	logger     *zap.Logger
}

func NewService(
	db *database.DB,
	expenses *repository.ExpenseRepository,
	categories *repository.CategoryRepository,
	detector *Detector,
	aggregator *vendor.Aggregator,
	engine *policy.Engine,
	monitor *budget.Monitor,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:         db,
		expenses:   expenses,
		categories: categories,
		detector:   detector,
		aggregator: aggregator,
		engine:     engine,
		monitor:    monitor,
		logger:     logger,
	}
}

// Create handles manual expense entry. The expense starts in NEEDS_REVIEW.
// An uncategorized entry inherits the vendor's remembered default category
// when one exists.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in CreateExpenseInput) (*models.Expense, error) {
	if err := s.validate(ctx, orgID, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.CategoryID == nil {
		in.CategoryID = s.aggregator.DefaultCategory(ctx, orgID, in.VendorName)
	}

	e := &models.Expense{
		ID:             uuid.New(),
		OrganizationID: orgID,
		CategoryID:     in.CategoryID,
		VendorName:     strings.TrimSpace(in.VendorName),
		Amount:         in.Amount.Round(2),
		Currency:       in.Currency,
		TaxAmount:      in.TaxAmount.Round(2),
		Date:           in.Date,
		Description:    strings.TrimSpace(in.Description),
		Status:         models.ExpenseStatusNeedsReview,
		CreatedAt:      time.Now().UTC(),
	}
	for _, li := range in.LineItems {
		e.LineItems = append(e.LineItems, models.ExpenseLineItem{
			ID:          uuid.New(),
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Total:       li.Total,
		})
	}

	if err := s.Persist(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Persist is the single write path for new expenses, shared by manual
// entry, the extraction pipeline and the recurring scheduler. It runs
// duplicate detection, stores the expense with its line items and the
// vendor rollup atomically, then evaluates policies. Policy failures are
// logged, never surfaced: the expense is already durable by then.
func (s *Service) Persist(ctx context.Context, e *models.Expense) error {
	if err := s.detector.Check(ctx, e); err != nil {
		// Detection is advisory: log and create the expense unflagged.
		s.logger.Warn("duplicate detection failed",
			zap.String("expense_id", e.ID.String()),
			zap.Error(err))
	}

	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.expenses.Create(ctx, tx, e); err != nil {
			return err
		}
		return s.aggregator.ApplyExpense(ctx, tx, e.OrganizationID, e.VendorName, e.CategoryID, e.Amount, e.Date)
	})
	if err != nil {
		return fmt.Errorf("persist expense: %w", err)
	}

	if _, err := s.engine.Evaluate(ctx, e); err != nil {
		s.logger.Error("policy evaluation failed",
			zap.String("expense_id", e.ID.String()),
			zap.Error(err))
	}
	return nil
}

func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Expense, error) {
	return s.expenses.GetForOrg(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID, f repository.ExpenseFilter, limit, offset int) ([]*models.Expense, int64, error) {
	return s.expenses.List(ctx, orgID, f, limit, offset)
}

// Update edits a NEEDS_REVIEW expense's fields. Reviewed expenses are
// immutable.
func (s *Service) Update(ctx context.Context, orgID, id uuid.UUID, in CreateExpenseInput) (*models.Expense, error) {
	e, err := s.expenses.GetForOrg(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !e.Reviewable() {
		return nil, ErrNotReviewable
	}
	if err := s.validate(ctx, orgID, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	e.VendorName = strings.TrimSpace(in.VendorName)
	e.Amount = in.Amount.Round(2)
	e.Currency = in.Currency
	e.TaxAmount = in.TaxAmount.Round(2)
	e.Date = in.Date
	e.Description = strings.TrimSpace(in.Description)
	e.CategoryID = in.CategoryID
	if err := s.expenses.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Approve transitions the expense to APPROVED and runs the budget check.
// Budget failures never undo the approval.
func (s *Service) Approve(ctx context.Context, orgID, id, reviewerID uuid.UUID) (*models.Expense, error) {
	claimed, err := s.expenses.SetReviewed(ctx, orgID, id, models.ExpenseStatusApproved, reviewerID, "")
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Either missing or already reviewed; distinguish for the caller.
		if _, err := s.expenses.GetForOrg(ctx, orgID, id); err != nil {
			return nil, err
		}
		return nil, ErrNotReviewable
	}

	e, err := s.expenses.GetForOrg(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.monitor.CheckAfterApproval(ctx, e); err != nil {
		s.logger.Error("budget check failed after approval",
			zap.String("expense_id", e.ID.String()),
			zap.Error(err))
	}
	return e, nil
}

// Reject transitions the expense to REJECTED with a reason.
func (s *Service) Reject(ctx context.Context, orgID, id, reviewerID uuid.UUID, reason string) (*models.Expense, error) {
	claimed, err := s.expenses.SetReviewed(ctx, orgID, id, models.ExpenseStatusRejected, reviewerID, reason)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if _, err := s.expenses.GetForOrg(ctx, orgID, id); err != nil {
			return nil, err
		}
		return nil, ErrNotReviewable
	}
	return s.expenses.GetForOrg(ctx, orgID, id)
}

// BulkCreateResult summarizes a bulk manual entry.
type BulkCreateResult struct {
	Created    []*models.Expense `json:"created"`
	Duplicates int               `json:"duplicates"`
	Failed     int               `json:"failed"`
}

// BulkCreate creates each expense independently; one bad item does not
// stop the rest. Duplicates counts the created expenses that came back
// flagged.
func (s *Service) BulkCreate(ctx context.Context, orgID uuid.UUID, ins []CreateExpenseInput) (*BulkCreateResult, error) {
	result := &BulkCreateResult{}
	for i, in := range ins {
		e, err := s.Create(ctx, orgID, in)
		if err != nil {
			s.logger.Warn("bulk create skipped expense",
				zap.Int("index", i),
				zap.String("vendor", in.VendorName),
				zap.Error(err))
			result.Failed++
			continue
		}
		if e.IsDuplicate {
			result.Duplicates++
		}
		result.Created = append(result.Created, e)
	}
	return result, nil
}

// BulkApprove approves each id independently; one failure does not stop
// the rest. Returns the ids that were approved.
func (s *Service) BulkApprove(ctx context.Context, orgID, reviewerID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	var approved []uuid.UUID
	for _, id := range ids {
		if _, err := s.Approve(ctx, orgID, id, reviewerID); err != nil {
			s.logger.Warn("bulk approve skipped expense",
				zap.String("expense_id", id.String()),
				zap.Error(err))
			continue
		}
		approved = append(approved, id)
	}
	return approved, nil
}

// Delete removes the expense and its line items. The vendor rollup is not
// reconciled; its counters only ever grow.
func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return s.expenses.Delete(ctx, orgID, id)
}

func (s *Service) validate(ctx context.Context, orgID uuid.UUID, in *CreateExpenseInput) error {
	if strings.TrimSpace(in.VendorName) == "" {
		return fmt.Errorf("vendor name is required")
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if in.TaxAmount.IsNegative() {
		return fmt.Errorf("tax amount cannot be negative")
	}
	if in.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if in.CategoryID != nil {
		if _, err := s.categories.GetByID(ctx, orgID, *in.CategoryID); err != nil {
			return fmt.Errorf("category: %w", err)
		}
	}
	return nil
}
