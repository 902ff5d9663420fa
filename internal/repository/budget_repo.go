package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
)

// ErrAlertExists is returned by InsertAlert when the (budget, threshold,
// month) alert has already fired. Callers treat it as a silent no-op.
var ErrAlertExists = errors.New("budget alert already recorded")

type BudgetRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewBudgetRepository(db *sql.DB, logger *zap.Logger) *BudgetRepository {
	return &BudgetRepository{db: db, logger: logger}
}

func (r *BudgetRepository) Create(ctx context.Context, b *models.Budget) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (id, organization_id, category_id, monthly_limit,
		                      alert_at_80, alert_at_100, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.OrganizationID.String(), uuidArg(b.CategoryID),
		decArg(b.MonthlyLimit), b.AlertAt80, b.AlertAt100, b.IsActive, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert budget: %w", err)
	}
	return nil
}

func (r *BudgetRepository) GetForOrg(ctx context.Context, orgID, id uuid.UUID) (*models.Budget, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		selectBudget+` WHERE id = ? AND organization_id = ?`, id.String(), orgID.String()))
}

func (r *BudgetRepository) List(ctx context.Context, orgID uuid.UUID) ([]*models.Budget, error) {
	return r.list(ctx, selectBudget+` WHERE organization_id = ? ORDER BY created_at`, orgID.String())
}

// ListActive returns active budgets, the set the monitor checks after an
// approval.
func (r *BudgetRepository) ListActive(ctx context.Context, orgID uuid.UUID) ([]*models.Budget, error) {
	return r.list(ctx, selectBudget+` WHERE organization_id = ? AND is_active = 1 ORDER BY created_at`,
		orgID.String())
}

func (r *BudgetRepository) Update(ctx context.Context, b *models.Budget) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE budgets
		 SET category_id = ?, monthly_limit = ?, alert_at_80 = ?, alert_at_100 = ?, is_active = ?
		 WHERE id = ? AND organization_id = ?`,
		uuidArg(b.CategoryID), decArg(b.MonthlyLimit), b.AlertAt80, b.AlertAt100,
		b.IsActive, b.ID.String(), b.OrganizationID.String())
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BudgetRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE id = ? AND organization_id = ?`,
		id.String(), orgID.String())
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertAlert records a fired threshold. The unique index on
// (budget_id, alert_type, month) makes the insert the idempotency check
// itself: losers of a race get ErrAlertExists instead of a second alert.
func (r *BudgetRepository) InsertAlert(ctx context.Context, a *models.BudgetAlert) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budget_alerts (id, organization_id, budget_id, alert_type, month,
		                            actual_amount, budget_amount, percentage, notified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.OrganizationID.String(), a.BudgetID.String(), a.AlertType,
		a.Month.Format("2006-01"), decArg(a.ActualAmount), decArg(a.BudgetAmount),
		a.Percentage.StringFixed(2), a.Notified, a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlertExists
		}
		return fmt.Errorf("insert budget alert: %w", err)
	}
	return nil
}

func (r *BudgetRepository) MarkAlertNotified(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE budget_alerts SET notified = 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("mark alert notified: %w", err)
	}
	return nil
}

func (r *BudgetRepository) ListAlerts(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.BudgetAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, organization_id, budget_id, alert_type, month,
		        actual_amount, budget_amount, percentage, notified, created_at
		 FROM budget_alerts WHERE organization_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		orgID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list budget alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.BudgetAlert
	for rows.Next() {
		var a models.BudgetAlert
		var id, org, budget, month, actual, budgetAmt, pct string
		err := rows.Scan(&id, &org, &budget, &a.AlertType, &month,
			&actual, &budgetAmt, &pct, &a.Notified, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan budget alert: %w", err)
		}
		a.ID = uuid.MustParse(id)
		a.OrganizationID = uuid.MustParse(org)
		a.BudgetID = uuid.MustParse(budget)
		if a.Month, err = parseMonth(month); err != nil {
			return nil, fmt.Errorf("parse alert month %q: %w", month, err)
		}
		if a.ActualAmount, err = parseDec(actual); err != nil {
			return nil, err
		}
		if a.BudgetAmount, err = parseDec(budgetAmt); err != nil {
			return nil, err
		}
		if a.Percentage, err = parseDec(pct); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

const selectBudget = `SELECT id, organization_id, category_id, monthly_limit,
       alert_at_80, alert_at_100, is_active, created_at
FROM budgets`

func (r *BudgetRepository) list(ctx context.Context, query string, args ...any) ([]*models.Budget, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []*models.Budget
	for rows.Next() {
		b, err := scanBudget(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (r *BudgetRepository) scanOne(row *sql.Row) (*models.Budget, error) {
	b, err := scanBudget(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func scanBudget(scan func(...any) error) (*models.Budget, error) {
	var b models.Budget
	var id, orgID, limit string
	var categoryID sql.NullString
	err := scan(&id, &orgID, &categoryID, &limit,
		&b.AlertAt80, &b.AlertAt100, &b.IsActive, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.ID = uuid.MustParse(id)
	b.OrganizationID = uuid.MustParse(orgID)
	if b.CategoryID, err = uuidPtr(categoryID); err != nil {
		return nil, err
	}
	if b.MonthlyLimit, err = parseDec(limit); err != nil {
		return nil, err
	}
	return &b, nil
}
