package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

// ErrInvalidInput wraps validation failures so the HTTP layer can answer 400.
var ErrInvalidInput = fmt.Errorf("invalid input")

// CreateBudgetInput is the validated shape for creating or replacing a
// budget. A nil CategoryID means the organization-wide budget.
type CreateBudgetInput struct {
	CategoryID   *uuid.UUID
	MonthlyLimit decimal.Decimal
	AlertAt80    bool
	AlertAt100   bool
	IsActive     bool
}

// Progress is a budget plus its current-month consumption.
type Progress struct {
	Budget       *models.Budget  `json:"budget"`
	CategoryName string          `json:"category_name,omitempty"`
	Spent        decimal.Decimal `json:"spent"`
	Percentage   decimal.Decimal `json:"percentage"`
}

// Service manages budget definitions and reports their consumption.
// Threshold alerting lives in Monitor.
type Service struct {
	budgets    *repository.BudgetRepository
	expenses   *repository.ExpenseRepository
	categories *repository.CategoryRepository
	logger     *zap.Logger
}

func NewService(
	budgets *repository.BudgetRepository,
	expenses *repository.ExpenseRepository,
	categories *repository.CategoryRepository,
	logger *zap.Logger,
) *Service {
	return &Service{budgets: budgets, expenses: expenses, categories: categories, logger: logger}
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in CreateBudgetInput) (*models.Budget, error) {
	if err := s.validate(ctx, orgID, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	b := &models.Budget{
		ID:             uuid.New(),
		OrganizationID: orgID,
		CategoryID:     in.CategoryID,
		MonthlyLimit:   in.MonthlyLimit.Round(2),
		AlertAt80:      in.AlertAt80,
		AlertAt100:     in.AlertAt100,
		IsActive:       in.IsActive,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.budgets.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) Update(ctx context.Context, orgID, id uuid.UUID, in CreateBudgetInput) (*models.Budget, error) {
	if err := s.validate(ctx, orgID, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	b, err := s.budgets.GetForOrg(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	b.CategoryID = in.CategoryID
	b.MonthlyLimit = in.MonthlyLimit.Round(2)
	b.AlertAt80 = in.AlertAt80
	b.AlertAt100 = in.AlertAt100
	b.IsActive = in.IsActive
	if err := s.budgets.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Budget, error) {
	return s.budgets.GetForOrg(ctx, orgID, id)
}

func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return s.budgets.Delete(ctx, orgID, id)
}

func (s *Service) ListAlerts(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.BudgetAlert, error) {
	return s.budgets.ListAlerts(ctx, orgID, limit, offset)
}

// ListProgress returns every budget with its consumption for the month
// containing now.
func (s *Service) ListProgress(ctx context.Context, orgID uuid.UUID, now time.Time) ([]Progress, error) {
	budgets, err := s.budgets.List(ctx, orgID)
	if err != nil {
		return nil, err
	}

	from := models.MonthStart(now)
	to := models.MonthEnd(now)
	out := make([]Progress, 0, len(budgets))
	for _, b := range budgets {
		var spent decimal.Decimal
		var categoryName string
		if b.CategoryID == nil {
			spent, err = s.expenses.SumApproved(ctx, orgID, from, to)
		} else {
			spent, err = s.expenses.SumApprovedByCategory(ctx, orgID, *b.CategoryID, from, to)
			if c, cerr := s.categories.GetByID(ctx, orgID, *b.CategoryID); cerr == nil {
				categoryName = c.Name
			}
		}
		if err != nil {
			return nil, fmt.Errorf("budget %s spend: %w", b.ID, err)
		}

		pct := decimal.Zero
		if b.MonthlyLimit.IsPositive() {
			pct = spent.Mul(oneHundred).DivRound(b.MonthlyLimit, 2)
		}
		out = append(out, Progress{
			Budget:       b,
			CategoryName: categoryName,
			Spent:        spent,
			Percentage:   pct,
		})
	}
	return out, nil
}

func (s *Service) validate(ctx context.Context, orgID uuid.UUID, in *CreateBudgetInput) error {
	if !in.MonthlyLimit.IsPositive() {
		return fmt.Errorf("monthly limit must be positive")
	}
	if in.CategoryID != nil {
		if _, err := s.categories.GetByID(ctx, orgID, *in.CategoryID); err != nil {
			return fmt.Errorf("category: %w", err)
		}
	}
	return nil
}
