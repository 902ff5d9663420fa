package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/notification"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

// Engine evaluates every newly created expense against the organization's
// active policies. Evaluation happens once, at creation time; review
// transitions do not re-run it. Failures here are logged by the caller and
// never fail the creating operation.
type Engine struct {
	policies   *repository.PolicyRepository
	expenses   *repository.ExpenseRepository
	categories *repository.CategoryRepository
	orgs       *repository.OrganizationRepository
	dispatcher notification.Dispatcher
	logger     *zap.Logger
}

func NewEngine(
	policies *repository.PolicyRepository,
	expenses *repository.ExpenseRepository,
	categories *repository.CategoryRepository,
	orgs *repository.OrganizationRepository,
	dispatcher notification.Dispatcher,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		policies:   policies,
		expenses:   expenses,
		categories: categories,
		orgs:       orgs,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Evaluate checks the expense against all active policies, persists every
// violation, and sends one notification covering the full list. The
// returned violations are what was persisted.
func (e *Engine) Evaluate(ctx context.Context, expense *models.Expense) ([]*models.PolicyViolation, error) {
	policies, err := e.policies.ListActive(ctx, expense.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load active policies: %w", err)
	}

	var violations []*models.PolicyViolation
	for _, p := range policies {
		message, violated, err := e.check(ctx, p, expense)
		if err != nil {
			e.logger.Warn("policy check failed",
				zap.String("policy_id", p.ID.String()),
				zap.String("expense_id", expense.ID.String()),
				zap.Error(err))
			continue
		}
		if !violated {
			continue
		}
		v := &models.PolicyViolation{
			ID:             uuid.New(),
			OrganizationID: expense.OrganizationID,
			ExpenseID:      expense.ID,
			PolicyID:       p.ID,
			Message:        message,
			CreatedAt:      time.Now().UTC(),
		}
		if err := e.policies.InsertViolation(ctx, v); err != nil {
			return nil, fmt.Errorf("persist violation: %w", err)
		}
		violations = append(violations, v)
	}

	if len(violations) > 0 {
		e.notify(expense, violations)
	}
	return violations, nil
}

func (e *Engine) check(ctx context.Context, p *models.ExpensePolicy, expense *models.Expense) (string, bool, error) {
	switch p.RuleType {
	case models.RuleMaxAmountPerExpense:
		return e.checkMaxAmount(p, expense)
	case models.RuleMaxAmountPerCategoryMonthly:
		return e.checkCategoryMonthly(ctx, p, expense)
	case models.RuleRequiredField:
		return e.checkRequiredField(p, expense)
	default:
		return "", false, fmt.Errorf("unknown rule type %q", p.RuleType)
	}
}

func (e *Engine) checkMaxAmount(p *models.ExpensePolicy, expense *models.Expense) (string, bool, error) {
	if p.ThresholdAmount == nil {
		return "", false, fmt.Errorf("policy %q has no threshold", p.Name)
	}
	if p.CategoryID != nil {
		if expense.CategoryID == nil || *expense.CategoryID != *p.CategoryID {
			return "", false, nil
		}
	}
	if expense.Amount.LessThanOrEqual(*p.ThresholdAmount) {
		return "", false, nil
	}
	msg := fmt.Sprintf("%s: expense amount %s %s exceeds the per-expense limit of %s",
		p.Name, expense.Amount.StringFixed(2), expense.Currency, p.ThresholdAmount.StringFixed(2))
	return msg, true, nil
}

// checkCategoryMonthly projects the month's spend as already-approved
// expenses plus this new, not-yet-approved one. Conservative on purpose.
func (e *Engine) checkCategoryMonthly(ctx context.Context, p *models.ExpensePolicy, expense *models.Expense) (string, bool, error) {
	if p.ThresholdAmount == nil {
		return "", false, fmt.Errorf("policy %q has no threshold", p.Name)
	}
	if expense.CategoryID == nil {
		return "", false, nil
	}
	if p.CategoryID != nil && *expense.CategoryID != *p.CategoryID {
		return "", false, nil
	}

	from := models.MonthStart(expense.Date)
	to := models.MonthEnd(expense.Date)
	approved, err := e.expenses.SumApprovedByCategory(ctx, expense.OrganizationID, *expense.CategoryID, from, to)
	if err != nil {
		return "", false, err
	}

	projected := approved.Add(expense.Amount)
	if projected.LessThanOrEqual(*p.ThresholdAmount) {
		return "", false, nil
	}

	categoryName := "category"
	if c, err := e.categories.GetByID(ctx, expense.OrganizationID, *expense.CategoryID); err == nil {
		categoryName = c.Name
	}
	msg := fmt.Sprintf("%s: projected %s spend of %s for %s exceeds the monthly limit of %s",
		p.Name, categoryName, projected.StringFixed(2),
		expense.Date.Format("January 2006"), p.ThresholdAmount.StringFixed(2))
	return msg, true, nil
}

func (e *Engine) checkRequiredField(p *models.ExpensePolicy, expense *models.Expense) (string, bool, error) {
	switch p.RequiredField {
	case models.RequiredFieldDescription:
		if strings.TrimSpace(expense.Description) == "" {
			return fmt.Sprintf("%s: a description is required", p.Name), true, nil
		}
	case models.RequiredFieldCategory:
		if expense.CategoryID == nil {
			return fmt.Sprintf("%s: a category is required", p.Name), true, nil
		}
	default:
		return "", false, fmt.Errorf("policy %q requires unknown field %q", p.Name, p.RequiredField)
	}
	return "", false, nil
}

// notify delivers one email covering all of the expense's violations.
// Fire-and-forget: delivery failures are logged and the violations stay
// marked un-notified.
func (e *Engine) notify(expense *models.Expense, violations []*models.PolicyViolation) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		org, err := e.orgs.GetOrganization(ctx, expense.OrganizationID)
		if err != nil {
			e.logger.Error("load organization for violation notice", zap.Error(err))
			return
		}
		recipients, err := e.orgs.AdminEmails(ctx, expense.OrganizationID)
		if err != nil {
			e.logger.Error("load recipients for violation notice", zap.Error(err))
			return
		}

		notice := &notification.PolicyViolationNotice{
			Organization: org,
			Expense:      expense,
			Violations:   violations,
			Recipients:   recipients,
		}
		if err := e.dispatcher.PolicyViolation(ctx, notice); err != nil {
			e.logger.Error("send violation notice", zap.Error(err))
			return
		}
		for _, v := range violations {
			if err := e.policies.MarkViolationNotified(ctx, v.ID); err != nil {
				e.logger.Warn("mark violation notified", zap.Error(err))
			}
		}
	}()
}
