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

type PolicyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPolicyRepository(db *sql.DB, logger *zap.Logger) *PolicyRepository {
	return &PolicyRepository{db: db, logger: logger}
}

func (r *PolicyRepository) Create(ctx context.Context, p *models.ExpensePolicy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expense_policies (id, organization_id, name, rule_type, category_id,
		                               threshold_amount, required_field, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.OrganizationID.String(), p.Name, p.RuleType,
		uuidArg(p.CategoryID), decPtrArg(p.ThresholdAmount), p.RequiredField,
		p.IsActive, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

func (r *PolicyRepository) GetForOrg(ctx context.Context, orgID, id uuid.UUID) (*models.ExpensePolicy, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		selectPolicy+` WHERE id = ? AND organization_id = ?`, id.String(), orgID.String()))
}

// ListActive returns policies that participate in evaluation.
func (r *PolicyRepository) ListActive(ctx context.Context, orgID uuid.UUID) ([]*models.ExpensePolicy, error) {
	return r.list(ctx, selectPolicy+` WHERE organization_id = ? AND is_active = 1 ORDER BY created_at`,
		orgID.String())
}

func (r *PolicyRepository) List(ctx context.Context, orgID uuid.UUID) ([]*models.ExpensePolicy, error) {
	return r.list(ctx, selectPolicy+` WHERE organization_id = ? ORDER BY created_at`, orgID.String())
}

func (r *PolicyRepository) Update(ctx context.Context, p *models.ExpensePolicy) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expense_policies
		 SET name = ?, rule_type = ?, category_id = ?, threshold_amount = ?,
		     required_field = ?, is_active = ?
		 WHERE id = ? AND organization_id = ?`,
		p.Name, p.RuleType, uuidArg(p.CategoryID), decPtrArg(p.ThresholdAmount),
		p.RequiredField, p.IsActive, p.ID.String(), p.OrganizationID.String())
	if err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PolicyRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expense_policies WHERE id = ? AND organization_id = ?`,
		id.String(), orgID.String())
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PolicyRepository) InsertViolation(ctx context.Context, v *models.PolicyViolation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO policy_violations (id, organization_id, expense_id, policy_id, message, notified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID.String(), v.OrganizationID.String(), v.ExpenseID.String(), v.PolicyID.String(),
		v.Message, v.Notified, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}
	return nil
}

func (r *PolicyRepository) MarkViolationNotified(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE policy_violations SET notified = 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("mark violation notified: %w", err)
	}
	return nil
}

func (r *PolicyRepository) ListViolations(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.PolicyViolation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, organization_id, expense_id, policy_id, message, notified, created_at
		 FROM policy_violations WHERE organization_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		orgID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	var violations []*models.PolicyViolation
	for rows.Next() {
		var v models.PolicyViolation
		var id, org, expense, policy string
		if err := rows.Scan(&id, &org, &expense, &policy, &v.Message, &v.Notified, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.ID = uuid.MustParse(id)
		v.OrganizationID = uuid.MustParse(org)
		v.ExpenseID = uuid.MustParse(expense)
		v.PolicyID = uuid.MustParse(policy)
		violations = append(violations, &v)
	}
	return violations, rows.Err()
}

// ListViolationsForExpense returns violations recorded against one expense.
func (r *PolicyRepository) ListViolationsForExpense(ctx context.Context, orgID, expenseID uuid.UUID) ([]*models.PolicyViolation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, organization_id, expense_id, policy_id, message, notified, created_at
		 FROM policy_violations WHERE organization_id = ? AND expense_id = ?
		 ORDER BY created_at`,
		orgID.String(), expenseID.String())
	if err != nil {
		return nil, fmt.Errorf("list expense violations: %w", err)
	}
	defer rows.Close()

	var violations []*models.PolicyViolation
	for rows.Next() {
		var v models.PolicyViolation
		var id, org, expense, policy string
		if err := rows.Scan(&id, &org, &expense, &policy, &v.Message, &v.Notified, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.ID = uuid.MustParse(id)
		v.OrganizationID = uuid.MustParse(org)
		v.ExpenseID = uuid.MustParse(expense)
		v.PolicyID = uuid.MustParse(policy)
		violations = append(violations, &v)
	}
	return violations, rows.Err()
}

const selectPolicy = `SELECT id, organization_id, name, rule_type, category_id,
       threshold_amount, required_field, is_active, created_at
FROM expense_policies`

func (r *PolicyRepository) list(ctx context.Context, query string, args ...any) ([]*models.ExpensePolicy, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.ExpensePolicy
	for rows.Next() {
		p, err := scanPolicy(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (r *PolicyRepository) scanOne(row *sql.Row) (*models.ExpensePolicy, error) {
	p, err := scanPolicy(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return p, nil
}

func scanPolicy(scan func(...any) error) (*models.ExpensePolicy, error) {
	var p models.ExpensePolicy
	var id, orgID string
	var categoryID, threshold sql.NullString
	err := scan(&id, &orgID, &p.Name, &p.RuleType, &categoryID,
		&threshold, &p.RequiredField, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(id)
	p.OrganizationID = uuid.MustParse(orgID)
	if p.CategoryID, err = uuidPtr(categoryID); err != nil {
		return nil, err
	}
	if p.ThresholdAmount, err = parseDecPtr(threshold); err != nil {
		return nil, err
	}
	return &p, nil
}
