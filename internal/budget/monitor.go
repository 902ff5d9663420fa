package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/notification"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

var oneHundred = decimal.NewFromInt(100)
var eighty = decimal.NewFromInt(80)

// CheckResult reports the side effects of one post-approval check.
type CheckResult struct {
	Fired []*models.BudgetAlert
}

// Monitor recomputes spend-to-limit ratios after an expense approval and
// fires threshold alerts at most once per (budget, threshold, month).
type Monitor struct {
	budgets    *repository.BudgetRepository
	expenses   *repository.ExpenseRepository
	categories *repository.CategoryRepository
	orgs       *repository.OrganizationRepository
	dispatcher notification.Dispatcher
	logger     *zap.Logger
}

func NewMonitor(
	budgets *repository.BudgetRepository,
	expenses *repository.ExpenseRepository,
	categories *repository.CategoryRepository,
	orgs *repository.OrganizationRepository,
	dispatcher notification.Dispatcher,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		budgets:    budgets,
		expenses:   expenses,
		categories: categories,
		orgs:       orgs,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// CheckAfterApproval runs on the approve transition only. Candidates are
// the organization's overall active budget and the active budget scoped to
// the expense's category. A budget past 100% fires only the 100% alert,
// never the 80% one in the same check.
func (m *Monitor) CheckAfterApproval(ctx context.Context, expense *models.Expense) (*CheckResult, error) {
	budgets, err := m.budgets.ListActive(ctx, expense.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load active budgets: %w", err)
	}

	result := &CheckResult{}
	month := models.MonthStart(expense.Date)
	for _, b := range budgets {
		if !m.applies(b, expense) {
			continue
		}
		spend, err := m.monthSpend(ctx, b, expense)
		if err != nil {
			m.logger.Warn("compute budget spend",
				zap.String("budget_id", b.ID.String()),
				zap.Error(err))
			continue
		}
		if !b.MonthlyLimit.IsPositive() {
			continue
		}

		pct := spend.Mul(oneHundred).DivRound(b.MonthlyLimit, 2)

		var alertType string
		switch {
		case pct.GreaterThanOrEqual(oneHundred) && b.AlertAt100:
			alertType = models.AlertThreshold100
		case pct.GreaterThanOrEqual(eighty) && b.AlertAt80:
			alertType = models.AlertThreshold80
		default:
			continue
		}

		alert, err := m.fireOnce(ctx, b, alertType, month, spend, pct)
		if err != nil {
			m.logger.Warn("fire budget alert",
				zap.String("budget_id", b.ID.String()),
				zap.String("alert_type", alertType),
				zap.Error(err))
			continue
		}
		if alert != nil {
			result.Fired = append(result.Fired, alert)
		}
	}
	return result, nil
}

func (m *Monitor) applies(b *models.Budget, expense *models.Expense) bool {
	if b.CategoryID == nil {
		return true
	}
	return expense.CategoryID != nil && *expense.CategoryID == *b.CategoryID
}

func (m *Monitor) monthSpend(ctx context.Context, b *models.Budget, expense *models.Expense) (decimal.Decimal, error) {
	from := models.MonthStart(expense.Date)
	to := models.MonthEnd(expense.Date)
	if b.CategoryID == nil {
		return m.expenses.SumApproved(ctx, expense.OrganizationID, from, to)
	}
	return m.expenses.SumApprovedByCategory(ctx, expense.OrganizationID, *b.CategoryID, from, to)
}

// fireOnce records the alert and sends the notification. The insert hitting
// the unique (budget, threshold, month) constraint means another approval
// already fired this alert; that is a silent no-op, and the notification is
// only ever sent after a successful insert.
func (m *Monitor) fireOnce(ctx context.Context, b *models.Budget, alertType string, month time.Time, actual, pct decimal.Decimal) (*models.BudgetAlert, error) {
	alert := &models.BudgetAlert{
		ID:             uuid.New(),
		OrganizationID: b.OrganizationID,
		BudgetID:       b.ID,
		AlertType:      alertType,
		Month:          month,
		ActualAmount:   actual,
		BudgetAmount:   b.MonthlyLimit,
		Percentage:     pct,
		CreatedAt:      time.Now().UTC(),
	}
	err := m.budgets.InsertAlert(ctx, alert)
	if errors.Is(err, repository.ErrAlertExists) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.notify(b, alert)
	return alert, nil
}

func (m *Monitor) notify(b *models.Budget, alert *models.BudgetAlert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		org, err := m.orgs.GetOrganization(ctx, b.OrganizationID)
		if err != nil {
			m.logger.Error("load organization for budget alert", zap.Error(err))
			return
		}
		recipients, err := m.orgs.AdminEmails(ctx, b.OrganizationID)
		if err != nil {
			m.logger.Error("load recipients for budget alert", zap.Error(err))
			return
		}

		categoryName := ""
		if b.CategoryID != nil {
			if c, err := m.categories.GetByID(ctx, b.OrganizationID, *b.CategoryID); err == nil {
				categoryName = c.Name
			}
		}

		notice := &notification.BudgetAlertNotice{
			Organization: org,
			Budget:       b,
			Alert:        alert,
			CategoryName: categoryName,
			Recipients:   recipients,
		}
		if err := m.dispatcher.BudgetAlert(ctx, notice); err != nil {
			m.logger.Error("send budget alert", zap.Error(err))
			return
		}
		if err := m.budgets.MarkAlertNotified(ctx, alert.ID); err != nil {
			m.logger.Warn("mark budget alert notified", zap.Error(err))
		}
	}()
}
