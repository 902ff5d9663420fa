package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
)

type VendorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewVendorRepository(db *sql.DB, logger *zap.Logger) *VendorRepository {
	return &VendorRepository{db: db, logger: logger}
}

func (r *VendorRepository) Create(ctx context.Context, tx *sql.Tx, v *models.Vendor) error {
	var lastDate any
	if v.LastExpenseDate != nil {
		lastDate = dateArg(*v.LastExpenseDate)
	}
	_, err := dbtx(r.db, tx).ExecContext(ctx,
		`INSERT INTO vendors (id, organization_id, name, normalized_name, default_category_id,
		                      expense_count, total_amount, last_expense_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID.String(), v.OrganizationID.String(), v.Name, v.NormalizedName,
		uuidArg(v.DefaultCategoryID), v.ExpenseCount, decArg(v.TotalAmount), lastDate, v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("vendor %q: %w", v.NormalizedName, ErrDuplicate)
		}
		return fmt.Errorf("insert vendor: %w", err)
	}
	return nil
}

func (r *VendorRepository) GetByNormalizedName(ctx context.Context, tx *sql.Tx, orgID uuid.UUID, normalized string) (*models.Vendor, error) {
	return r.scanOne(dbtx(r.db, tx).QueryRowContext(ctx,
		selectVendor+` WHERE organization_id = ? AND normalized_name = ?`,
		orgID.String(), normalized))
}

func (r *VendorRepository) GetForOrg(ctx context.Context, orgID, id uuid.UUID) (*models.Vendor, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		selectVendor+` WHERE id = ? AND organization_id = ?`, id.String(), orgID.String()))
}

// Accumulate folds one expense into the vendor's counters. The last
// expense date is overwritten with every write, so it tracks the most
// recently recorded expense, not the latest date seen.
func (r *VendorRepository) Accumulate(ctx context.Context, tx *sql.Tx, v *models.Vendor, amount decimal.Decimal, date time.Time) error {
	v.ExpenseCount++
	v.TotalAmount = v.TotalAmount.Add(amount).Round(2)
	d := date
	v.LastExpenseDate = &d
	_, err := dbtx(r.db, tx).ExecContext(ctx,
		`UPDATE vendors SET expense_count = ?, total_amount = ?, last_expense_date = ?
		 WHERE id = ?`,
		v.ExpenseCount, decArg(v.TotalAmount), dateArg(d), v.ID.String())
	if err != nil {
		return fmt.Errorf("accumulate vendor: %w", err)
	}
	return nil
}

// SetDefaultCategoryIfUnset records the first category ever seen for the
// vendor. Later expenses never overwrite it.
func (r *VendorRepository) SetDefaultCategoryIfUnset(ctx context.Context, tx *sql.Tx, vendorID, categoryID uuid.UUID) error {
	_, err := dbtx(r.db, tx).ExecContext(ctx,
		`UPDATE vendors SET default_category_id = ?
		 WHERE id = ? AND default_category_id IS NULL`,
		categoryID.String(), vendorID.String())
	if err != nil {
		return fmt.Errorf("set vendor default category: %w", err)
	}
	return nil
}

func (r *VendorRepository) UpdateDefaultCategory(ctx context.Context, orgID, id uuid.UUID, categoryID *uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE vendors SET default_category_id = ? WHERE id = ? AND organization_id = ?`,
		uuidArg(categoryID), id.String(), orgID.String())
	if err != nil {
		return fmt.Errorf("update vendor category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *VendorRepository) List(ctx context.Context, orgID uuid.UUID, search string) ([]*models.Vendor, error) {
	query := selectVendor + ` WHERE organization_id = ?`
	args := []any{orgID.String()}
	if search != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY CAST(total_amount AS REAL) DESC, name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []*models.Vendor
	for rows.Next() {
		v, err := scanVendor(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

const selectVendor = `SELECT id, organization_id, name, normalized_name, default_category_id,
       expense_count, total_amount, last_expense_date, created_at
FROM vendors`

func (r *VendorRepository) scanOne(row *sql.Row) (*models.Vendor, error) {
	v, err := scanVendor(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	return v, nil
}

func scanVendor(scan func(...any) error) (*models.Vendor, error) {
	var v models.Vendor
	var id, orgID, total string
	var categoryID, lastDate sql.NullString
	err := scan(&id, &orgID, &v.Name, &v.NormalizedName, &categoryID,
		&v.ExpenseCount, &total, &lastDate, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.ID = uuid.MustParse(id)
	v.OrganizationID = uuid.MustParse(orgID)
	if v.DefaultCategoryID, err = uuidPtr(categoryID); err != nil {
		return nil, err
	}
	if v.TotalAmount, err = parseDec(total); err != nil {
		return nil, err
	}
	if v.LastExpenseDate, err = parseDatePtr(lastDate); err != nil {
		return nil, err
	}
	return &v, nil
}
