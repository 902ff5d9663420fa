package policy

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

// CreatePolicyInput is the validated shape for creating or replacing a
// policy.
type CreatePolicyInput struct {
	Name            string
	RuleType        string
	CategoryID      *uuid.UUID
	ThresholdAmount *decimal.Decimal
	RequiredField   string
	IsActive        bool
}

// Service manages policy definitions. Evaluation lives in Engine.
type Service struct {
	policies   *repository.PolicyRepository
	categories *repository.CategoryRepository
	logger     *zap.Logger
}

func NewService(policies *repository.PolicyRepository, categories *repository.CategoryRepository, logger *zap.Logger) *Service {
	return &Service{policies: policies, categories: categories, logger: logger}
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in CreatePolicyInput) (*models.ExpensePolicy, error) {
	if err := s.validate(ctx, orgID, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p := &models.ExpensePolicy{
		ID:              uuid.New(),
		OrganizationID:  orgID,
		Name:            in.Name,
		RuleType:        in.RuleType,
		CategoryID:      in.CategoryID,
		ThresholdAmount: in.ThresholdAmount,
		RequiredField:   in.RequiredField,
		IsActive:        in.IsActive,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.policies.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, orgID, id uuid.UUID, in CreatePolicyInput) (*models.ExpensePolicy, error) {
	if err := s.validate(ctx, orgID, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p, err := s.policies.GetForOrg(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	p.Name = in.Name
	p.RuleType = in.RuleType
	p.CategoryID = in.CategoryID
	p.ThresholdAmount = in.ThresholdAmount
	p.RequiredField = in.RequiredField
	p.IsActive = in.IsActive
	if err := s.policies.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (*models.ExpensePolicy, error) {
	return s.policies.GetForOrg(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]*models.ExpensePolicy, error) {
	return s.policies.List(ctx, orgID)
}

func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return s.policies.Delete(ctx, orgID, id)
}

func (s *Service) ListViolations(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.PolicyViolation, error) {
	return s.policies.ListViolations(ctx, orgID, limit, offset)
}

func (s *Service) validate(ctx context.Context, orgID uuid.UUID, in *CreatePolicyInput) error {
	if in.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	switch in.RuleType {
	case models.RuleMaxAmountPerExpense, models.RuleMaxAmountPerCategoryMonthly:
		if in.ThresholdAmount == nil || !in.ThresholdAmount.IsPositive() {
			return fmt.Errorf("rule %s requires a positive threshold amount", in.RuleType)
		}
	case models.RuleRequiredField:
		if in.RequiredField != models.RequiredFieldDescription && in.RequiredField != models.RequiredFieldCategory {
			return fmt.Errorf("rule %s requires required_field of %q or %q",
				in.RuleType, models.RequiredFieldDescription, models.RequiredFieldCategory)
		}
	default:
		return fmt.Errorf("unknown rule type %q", in.RuleType)
	}
	if in.CategoryID != nil {
		if _, err := s.categories.GetByID(ctx, orgID, *in.CategoryID); err != nil {
			return fmt.Errorf("category: %w", err)
		}
	}
	return nil
}
