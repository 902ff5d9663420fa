package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
)

type RecurringRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRecurringRepository(db *sql.DB, logger *zap.Logger) *RecurringRepository {
	return &RecurringRepository{db: db, logger: logger}
}

func (r *RecurringRepository) Create(ctx context.Context, re *models.RecurringExpense) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_expenses (id, organization_id, source_expense_id, vendor_name,
		                                 amount, currency, tax_amount, description, category_id,
		                                 frequency, next_due_date, last_created_at, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		re.ID.String(), re.OrganizationID.String(), uuidArg(re.SourceExpenseID), re.VendorName,
		decArg(re.Amount), re.Currency, decArg(re.TaxAmount), re.Description,
		uuidArg(re.CategoryID), re.Frequency, dateArg(re.NextDueDate),
		re.LastCreatedAt, re.IsActive, re.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recurring expense: %w", err)
	}
	return nil
}

func (r *RecurringRepository) GetForOrg(ctx context.Context, orgID, id uuid.UUID) (*models.RecurringExpense, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		selectRecurring+` WHERE id = ? AND organization_id = ?`, id.String(), orgID.String()))
}

func (r *RecurringRepository) List(ctx context.Context, orgID uuid.UUID) ([]*models.RecurringExpense, error) {
	rows, err := r.db.QueryContext(ctx,
		selectRecurring+` WHERE organization_id = ? ORDER BY next_due_date`, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// ListDue returns active templates whose next due date is on or before the
// given day, across all organizations. The scheduler is the only caller.
func (r *RecurringRepository) ListDue(ctx context.Context, asOf time.Time) ([]*models.RecurringExpense, error) {
	rows, err := r.db.QueryContext(ctx,
		selectRecurring+` WHERE is_active = 1 AND next_due_date <= ? ORDER BY next_due_date`,
		dateArg(asOf))
	if err != nil {
		return nil, fmt.Errorf("list due recurring expenses: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *RecurringRepository) Update(ctx context.Context, re *models.RecurringExpense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_expenses
		 SET vendor_name = ?, amount = ?, currency = ?, tax_amount = ?, description = ?,
		     category_id = ?, frequency = ?, next_due_date = ?, is_active = ?
		 WHERE id = ? AND organization_id = ?`,
		re.VendorName, decArg(re.Amount), re.Currency, decArg(re.TaxAmount), re.Description,
		uuidArg(re.CategoryID), re.Frequency, dateArg(re.NextDueDate), re.IsActive,
		re.ID.String(), re.OrganizationID.String())
	if err != nil {
		return fmt.Errorf("update recurring expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Advance moves the schedule forward after a materialization. The due-date
// guard makes concurrent scheduler runs settle to one winner per period.
func (r *RecurringRepository) Advance(ctx context.Context, tx *sql.Tx, id uuid.UUID, fromDue, nextDue time.Time) (bool, error) {
	res, err := dbtx(r.db, tx).ExecContext(ctx,
		`UPDATE recurring_expenses SET next_due_date = ?, last_created_at = ?
		 WHERE id = ? AND next_due_date = ?`,
		dateArg(nextDue), time.Now().UTC(), id.String(), dateArg(fromDue))
	if err != nil {
		return false, fmt.Errorf("advance recurring expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance recurring expense: %w", err)
	}
	return n == 1, nil
}

func (r *RecurringRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM recurring_expenses WHERE id = ? AND organization_id = ?`,
		id.String(), orgID.String())
	if err != nil {
		return fmt.Errorf("delete recurring expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectRecurring = `SELECT id, organization_id, source_expense_id, vendor_name,
       amount, currency, tax_amount, description, category_id,
       frequency, next_due_date, last_created_at, is_active, created_at
FROM recurring_expenses`

func (r *RecurringRepository) scanOne(row *sql.Row) (*models.RecurringExpense, error) {
	re, err := scanRecurring(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get recurring expense: %w", err)
	}
	return re, nil
}

func (r *RecurringRepository) collect(rows *sql.Rows) ([]*models.RecurringExpense, error) {
	var out []*models.RecurringExpense
	for rows.Next() {
		re, err := scanRecurring(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan recurring expense: %w", err)
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

func scanRecurring(scan func(...any) error) (*models.RecurringExpense, error) {
	var re models.RecurringExpense
	var id, orgID, amount, taxAmount, nextDue string
	var sourceID, categoryID sql.NullString
	var lastCreated sql.NullTime
	err := scan(&id, &orgID, &sourceID, &re.VendorName,
		&amount, &re.Currency, &taxAmount, &re.Description, &categoryID,
		&re.Frequency, &nextDue, &lastCreated, &re.IsActive, &re.CreatedAt)
	if err != nil {
		return nil, err
	}
	re.ID = uuid.MustParse(id)
	re.OrganizationID = uuid.MustParse(orgID)
	if re.SourceExpenseID, err = uuidPtr(sourceID); err != nil {
		return nil, err
	}
	if re.CategoryID, err = uuidPtr(categoryID); err != nil {
		return nil, err
	}
	if re.Amount, err = parseDec(amount); err != nil {
		return nil, err
	}
	if re.TaxAmount, err = parseDec(taxAmount); err != nil {
		return nil, err
	}
	if re.NextDueDate, err = parseDate(nextDue); err != nil {
		return nil, err
	}
	re.LastCreatedAt = timePtr(lastCreated)
	return &re, nil
}
