package recurring

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/repository"
	"github.com/invoiceai/invoiceai-server/internal/vendor"
	"github.com/invoiceai/invoiceai-server/pkg/database"
)

// ErrInvalidInput wraps validation failures so the HTTP layer can answer 400.
var ErrInvalidInput = fmt.Errorf("invalid input")

// CreateTemplateInput is the validated shape for a recurring template.
type CreateTemplateInput struct {
	VendorName  string
	Amount      decimal.Decimal
	Currency    string
	TaxAmount   decimal.Decimal
	Description string
	CategoryID  *uuid.UUID
	Frequency   string
	NextDueDate time.Time
	IsActive    bool
}

// Service manages recurring-expense templates and materializes the due
// ones into approved expenses.
type Service struct {
	db         *database.DB
	templates  *repository.RecurringRepository
	expenses   *repository.ExpenseRepository
	categories *repository.CategoryRepository
	aggregator *vendor.Aggregator
	logger     *zap.Logger
}

func NewService(
	db *database.DB,
	templates *repository.RecurringRepository,
	expenses *repository.ExpenseRepository,
	categories *repository.CategoryRepository,
	aggregator *vendor.Aggregator,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:         db,
		templates:  templates,
		expenses:   expenses,
		categories: categories,
		aggregator: aggregator,
		logger:     logger,
	}
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in CreateTemplateInput) (*models.RecurringExpense, error) {
	if err := s.validate(ctx, orgID, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	re := &models.RecurringExpense{
		ID:             uuid.New(),
		OrganizationID: orgID,
		VendorName:     strings.TrimSpace(in.VendorName),
		Amount:         in.Amount.Round(2),
		Currency:       in.Currency,
		TaxAmount:      in.TaxAmount.Round(2),
		Description:    strings.TrimSpace(in.Description),
		CategoryID:     in.CategoryID,
		Frequency:      in.Frequency,
		NextDueDate:    in.NextDueDate,
		IsActive:       in.IsActive,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.templates.Create(ctx, re); err != nil {
		return nil, err
	}
	return re, nil
}

// CreateFromExpense turns an existing expense into a recurring template,
// due one period after the expense's date.
func (s *Service) CreateFromExpense(ctx context.Context, orgID, expenseID uuid.UUID, frequency string) (*models.RecurringExpense, error) {
	if !validFrequency(frequency) {
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, frequency)
	}
	e, err := s.expenses.GetForOrg(ctx, orgID, expenseID)
	if err != nil {
		return nil, err
	}

	sourceID := e.ID
	re := &models.RecurringExpense{
		ID:              uuid.New(),
		OrganizationID:  orgID,
		SourceExpenseID: &sourceID,
		VendorName:      e.VendorName,
		Amount:          e.Amount,
		Currency:        e.Currency,
		TaxAmount:       e.TaxAmount,
		Description:     e.Description,
		CategoryID:      e.CategoryID,
		Frequency:       frequency,
		NextDueDate:     models.NextDueDateAfter(e.Date, frequency),
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.templates.Create(ctx, re); err != nil {
		return nil, err
	}
	return re, nil
}

func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (*models.RecurringExpense, error) {
	return s.templates.GetForOrg(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]*models.RecurringExpense, error) {
	return s.templates.List(ctx, orgID)
}

func (s *Service) Update(ctx context.Context, orgID, id uuid.UUID, in CreateTemplateInput) (*models.RecurringExpense, error) {
	if err := s.validate(ctx, orgID, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	re, err := s.templates.GetForOrg(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	re.VendorName = strings.TrimSpace(in.VendorName)
	re.Amount = in.Amount.Round(2)
	re.Currency = in.Currency
	re.TaxAmount = in.TaxAmount.Round(2)
	re.Description = strings.TrimSpace(in.Description)
	re.CategoryID = in.CategoryID
	re.Frequency = in.Frequency
	re.NextDueDate = in.NextDueDate
	re.IsActive = in.IsActive
	if err := s.templates.Update(ctx, re); err != nil {
		return nil, err
	}
	return re, nil
}

func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return s.templates.Delete(ctx, orgID, id)
}

// ProcessDue materializes every active template due on or before today.
// Each template is handled independently: one failure is logged and the
// batch continues. The created expense is dated with the template's due
// date and lands directly in APPROVED, skipping review, policy evaluation
// and budget checks.
func (s *Service) ProcessDue(ctx context.Context, today time.Time) (int, error) {
	due, err := s.templates.ListDue(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list due templates: %w", err)
	}

	created := 0
	for _, re := range due {
		if err := s.materialize(ctx, re); err != nil {
			s.logger.Error("failed to materialize recurring expense",
				zap.String("template_id", re.ID.String()),
				zap.String("vendor", re.VendorName),
				zap.Error(err))
			continue
		}
		created++
	}

	if len(due) > 0 {
		s.logger.Info("recurring expenses processed",
			zap.Int("due", len(due)),
			zap.Int("created", created))
	}
	return created, nil
}

// materialize advances the schedule and creates the expense in one
// transaction. Advancing first with a due-date guard means a concurrent
// run (or a crash-and-retry) cannot double-create the same period.
func (s *Service) materialize(ctx context.Context, re *models.RecurringExpense) error {
	nextDue := models.NextDueDateAfter(re.NextDueDate, re.Frequency)

	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		claimed, err := s.templates.Advance(ctx, tx, re.ID, re.NextDueDate, nextDue)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}

		e := &models.Expense{
			ID:             uuid.New(),
			OrganizationID: re.OrganizationID,
			CategoryID:     re.CategoryID,
			VendorName:     re.VendorName,
			Amount:         re.Amount,
			Currency:       re.Currency,
			TaxAmount:      re.TaxAmount,
			Date:           re.NextDueDate,
			Description:    re.Description,
			Status:         models.ExpenseStatusApproved,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.expenses.Create(ctx, tx, e); err != nil {
			return err
		}
		return s.aggregator.ApplyExpense(ctx, tx, e.OrganizationID, e.VendorName, e.CategoryID, e.Amount, e.Date)
	})
}

func (s *Service) validate(ctx context.Context, orgID uuid.UUID, in *CreateTemplateInput) error {
	if strings.TrimSpace(in.VendorName) == "" {
		return fmt.Errorf("vendor name is required")
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if !validFrequency(in.Frequency) {
		return fmt.Errorf("unknown frequency %q", in.Frequency)
	}
	if in.NextDueDate.IsZero() {
		return fmt.Errorf("next due date is required")
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

func validFrequency(f string) bool {
	switch f {
	case models.FrequencyWeekly, models.FrequencyMonthly, models.FrequencyQuarterly, models.FrequencyYearly:
		return true
	}
	return false
}
