package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
)

// ExpenseFilter narrows List and export queries. Zero values mean "no
// constraint" for strings; pointers distinguish unset from zero.
type ExpenseFilter struct {
	Status     string
	CategoryID *uuid.UUID
	VendorName string
	DateFrom   *time.Time
	DateTo     *time.Time
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	Search     string
}

// CategorySpend is one row of a per-category aggregation.
type CategorySpend struct {
	CategoryID   *uuid.UUID      `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name"`
	Total        decimal.Decimal `json:"total"`
	Count        int64           `json:"count"`
}

// VendorSpend is one row of a per-vendor aggregation.
type VendorSpend struct {
	VendorName string          `json:"vendor_name"`
	Total      decimal.Decimal `json:"total"`
	Count      int64           `json:"count"`
}

// MonthlySpend is one month of the dashboard trend.
type MonthlySpend struct {
	Month string          `json:"month"` // "2006-01"
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"count"`
}

type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewExpenseRepository(db *sql.DB, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{db: db, logger: logger}
}

// Create inserts the expense and its line items atomically when a
// transaction is supplied.
func (r *ExpenseRepository) Create(ctx context.Context, tx *sql.Tx, e *models.Expense) error {
	q := dbtx(r.db, tx)
	_, err := q.ExecContext(ctx,
		`INSERT INTO expenses (id, organization_id, invoice_id, category_id, vendor_name,
		                       amount, currency, tax_amount, date, description, status,
		                       ai_confidence, reject_reason, is_duplicate, duplicate_of_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.OrganizationID.String(), uuidArg(e.InvoiceID), uuidArg(e.CategoryID),
		e.VendorName, decArg(e.Amount), e.Currency, decArg(e.TaxAmount), dateArg(e.Date),
		e.Description, e.Status, decPtrArg(e.AIConfidence), e.RejectReason,
		e.IsDuplicate, uuidArg(e.DuplicateOfID), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	for i := range e.LineItems {
		li := &e.LineItems[i]
		li.ExpenseID = e.ID
		_, err := q.ExecContext(ctx,
			`INSERT INTO expense_line_items (id, expense_id, description, quantity, unit_price, total)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			li.ID.String(), li.ExpenseID.String(), li.Description,
			li.Quantity.String(), decArg(li.UnitPrice), decArg(li.Total))
		if err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}
	return nil
}

func (r *ExpenseRepository) GetForOrg(ctx context.Context, orgID, id uuid.UUID) (*models.Expense, error) {
	e, err := r.scanOne(r.db.QueryRowContext(ctx,
		selectExpense+` WHERE id = ? AND organization_id = ?`, id.String(), orgID.String()))
	if err != nil {
		return nil, err
	}
	if err := r.loadLineItems(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetByInvoiceID returns the expense extracted from an invoice, or
// ErrNotFound when processing has not produced one.
func (r *ExpenseRepository) GetByInvoiceID(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.Expense, error) {
	e, err := r.scanOne(r.db.QueryRowContext(ctx,
		selectExpense+` WHERE invoice_id = ? AND organization_id = ?`,
		invoiceID.String(), orgID.String()))
	if err != nil {
		return nil, err
	}
	if err := r.loadLineItems(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ExpenseRepository) List(ctx context.Context, orgID uuid.UUID, f ExpenseFilter, limit, offset int) ([]*models.Expense, int64, error) {
	where, args := buildExpenseWhere(orgID, f)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	query := selectExpense + where + ` ORDER BY date DESC, created_at DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses, err := r.collect(rows)
	return expenses, total, err
}

func buildExpenseWhere(orgID uuid.UUID, f ExpenseFilter) (string, []any) {
	where := ` WHERE organization_id = ?`
	args := []any{orgID.String()}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.CategoryID != nil {
		where += ` AND category_id = ?`
		args = append(args, f.CategoryID.String())
	}
	if f.VendorName != "" {
		where += ` AND vendor_name = ?`
		args = append(args, f.VendorName)
	}
	if f.DateFrom != nil {
		where += ` AND date >= ?`
		args = append(args, dateArg(*f.DateFrom))
	}
	if f.DateTo != nil {
		where += ` AND date <= ?`
		args = append(args, dateArg(*f.DateTo))
	}
	if f.MinAmount != nil {
		where += ` AND CAST(amount AS REAL) >= ?`
		args = append(args, f.MinAmount.InexactFloat64())
	}
	if f.MaxAmount != nil {
		where += ` AND CAST(amount AS REAL) <= ?`
		args = append(args, f.MaxAmount.InexactFloat64())
	}
	if f.Search != "" {
		where += ` AND (vendor_name LIKE ? OR description LIKE ?)`
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	return where, args
}

// Update rewrites the caller-editable fields of a NEEDS_REVIEW expense.
func (r *ExpenseRepository) Update(ctx context.Context, e *models.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses
		 SET vendor_name = ?, amount = ?, currency = ?, tax_amount = ?, date = ?,
		     description = ?, category_id = ?
		 WHERE id = ? AND organization_id = ?`,
		e.VendorName, decArg(e.Amount), e.Currency, decArg(e.TaxAmount), dateArg(e.Date),
		e.Description, uuidArg(e.CategoryID), e.ID.String(), e.OrganizationID.String())
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReviewed moves a NEEDS_REVIEW expense into a terminal review state.
// The status guard in the WHERE clause makes concurrent reviews settle to
// exactly one winner; the loser gets false back.
func (r *ExpenseRepository) SetReviewed(ctx context.Context, orgID, id uuid.UUID, status string, reviewedBy uuid.UUID, rejectReason string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET status = ?, reviewed_by = ?, reviewed_at = ?, reject_reason = ?
		 WHERE id = ? AND organization_id = ? AND status = ?`,
		status, reviewedBy.String(), time.Now().UTC(), rejectReason,
		id.String(), orgID.String(), models.ExpenseStatusNeedsReview)
	if err != nil {
		return false, fmt.Errorf("review expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("review expense: %w", err)
	}
	return n == 1, nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND organization_id = ?`,
		id.String(), orgID.String())
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindDuplicate returns the earliest-created expense matching the exact
// duplicate key (vendor name, two-decimal amount, date) within the
// organization, excluding the given expense. ErrNotFound means no match.
func (r *ExpenseRepository) FindDuplicate(ctx context.Context, orgID uuid.UUID, vendorName string, amount decimal.Decimal, date time.Time, excludeID *uuid.UUID) (*models.Expense, error) {
	query := selectExpense + ` WHERE organization_id = ? AND vendor_name = ? AND amount = ? AND date = ?`
	args := []any{orgID.String(), vendorName, decArg(amount), dateArg(date)}
	if excludeID != nil {
		query += ` AND id != ?`
		args = append(args, excludeID.String())
	}
	query += ` ORDER BY created_at, id LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, args...))
}

// SumApproved totals APPROVED expenses in the inclusive date range. The
// fold happens in Go so two-decimal amounts never pass through floats.
func (r *ExpenseRepository) SumApproved(ctx context.Context, orgID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	return r.sumAmounts(ctx,
		`SELECT amount FROM expenses
		 WHERE organization_id = ? AND status = ? AND date >= ? AND date <= ?`,
		orgID.String(), models.ExpenseStatusApproved, dateArg(from), dateArg(to))
}

func (r *ExpenseRepository) SumApprovedByCategory(ctx context.Context, orgID, categoryID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	return r.sumAmounts(ctx,
		`SELECT amount FROM expenses
		 WHERE organization_id = ? AND status = ? AND category_id = ? AND date >= ? AND date <= ?`,
		orgID.String(), models.ExpenseStatusApproved, categoryID.String(), dateArg(from), dateArg(to))
}

func (r *ExpenseRepository) sumAmounts(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, fmt.Errorf("scan amount: %w", err)
		}
		d, err := parseDec(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

func (r *ExpenseRepository) CountPendingReview(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses WHERE organization_id = ? AND status = ?`,
		orgID.String(), models.ExpenseStatusNeedsReview).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending review: %w", err)
	}
	return n, nil
}

// SpendByCategory aggregates APPROVED spend per category over the range.
// Uncategorized expenses fall under the default category name.
func (r *ExpenseRepository) SpendByCategory(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]CategorySpend, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.category_id, COALESCE(c.name, ?), e.amount
		 FROM expenses e
		 LEFT JOIN categories c ON c.id = e.category_id
		 WHERE e.organization_id = ? AND e.status = ? AND e.date >= ? AND e.date <= ?`,
		models.DefaultCategoryName, orgID.String(), models.ExpenseStatusApproved,
		dateArg(from), dateArg(to))
	if err != nil {
		return nil, fmt.Errorf("spend by category: %w", err)
	}
	defer rows.Close()

	byName := map[string]*CategorySpend{}
	var order []string
	for rows.Next() {
		var catID sql.NullString
		var name, amount string
		if err := rows.Scan(&catID, &name, &amount); err != nil {
			return nil, fmt.Errorf("scan category spend: %w", err)
		}
		d, err := parseDec(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		cs, ok := byName[name]
		if !ok {
			id, err := uuidPtr(catID)
			if err != nil {
				return nil, fmt.Errorf("parse category id: %w", err)
			}
			cs = &CategorySpend{CategoryID: id, CategoryName: name, Total: decimal.Zero}
			byName[name] = cs
			order = append(order, name)
		}
		cs.Total = cs.Total.Add(d)
		cs.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]CategorySpend, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	sortCategorySpend(out)
	return out, nil
}

// TopVendors returns the highest-spending vendors over the range.
func (r *ExpenseRepository) TopVendors(ctx context.Context, orgID uuid.UUID, from, to time.Time, limit int) ([]VendorSpend, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT vendor_name, amount FROM expenses
		 WHERE organization_id = ? AND status = ? AND date >= ? AND date <= ?`,
		orgID.String(), models.ExpenseStatusApproved, dateArg(from), dateArg(to))
	if err != nil {
		return nil, fmt.Errorf("top vendors: %w", err)
	}
	defer rows.Close()

	byVendor := map[string]*VendorSpend{}
	var order []string
	for rows.Next() {
		var vendor, amount string
		if err := rows.Scan(&vendor, &amount); err != nil {
			return nil, fmt.Errorf("scan vendor spend: %w", err)
		}
		d, err := parseDec(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		vs, ok := byVendor[vendor]
		if !ok {
			vs = &VendorSpend{VendorName: vendor, Total: decimal.Zero}
			byVendor[vendor] = vs
			order = append(order, vendor)
		}
		vs.Total = vs.Total.Add(d)
		vs.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]VendorSpend, 0, len(order))
	for _, v := range order {
		out = append(out, *byVendor[v])
	}
	sortVendorSpend(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MonthlyTrend returns APPROVED spend per calendar month for the trailing
// window, oldest first. Months with no spend are present with a zero total.
func (r *ExpenseRepository) MonthlyTrend(ctx context.Context, orgID uuid.UUID, months int, now time.Time) ([]MonthlySpend, error) {
	start := models.MonthStart(now).AddDate(0, -(months - 1), 0)
	rows, err := r.db.QueryContext(ctx,
		`SELECT substr(date, 1, 7), amount FROM expenses
		 WHERE organization_id = ? AND status = ? AND date >= ?`,
		orgID.String(), models.ExpenseStatusApproved, dateArg(start))
	if err != nil {
		return nil, fmt.Errorf("monthly trend: %w", err)
	}
	defer rows.Close()

	totals := map[string]*MonthlySpend{}
	for rows.Next() {
		var month, amount string
		if err := rows.Scan(&month, &amount); err != nil {
			return nil, fmt.Errorf("scan trend row: %w", err)
		}
		d, err := parseDec(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		ms, ok := totals[month]
		if !ok {
			ms = &MonthlySpend{Month: month, Total: decimal.Zero}
			totals[month] = ms
		}
		ms.Total = ms.Total.Add(d)
		ms.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]MonthlySpend, 0, months)
	for i := 0; i < months; i++ {
		key := start.AddDate(0, i, 0).Format("2006-01")
		if ms, ok := totals[key]; ok {
			out = append(out, *ms)
		} else {
			out = append(out, MonthlySpend{Month: key, Total: decimal.Zero})
		}
	}
	return out, nil
}

// Recent returns the latest expenses for the dashboard, newest first.
func (r *ExpenseRepository) Recent(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		selectExpense+` WHERE organization_id = ? ORDER BY created_at DESC LIMIT ?`,
		orgID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("recent expenses: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *ExpenseRepository) loadLineItems(ctx context.Context, e *models.Expense) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, expense_id, description, quantity, unit_price, total
		 FROM expense_line_items WHERE expense_id = ? ORDER BY rowid`,
		e.ID.String())
	if err != nil {
		return fmt.Errorf("load line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var li models.ExpenseLineItem
		var id, expenseID, quantity, unitPrice, total string
		if err := rows.Scan(&id, &expenseID, &li.Description, &quantity, &unitPrice, &total); err != nil {
			return fmt.Errorf("scan line item: %w", err)
		}
		li.ID = uuid.MustParse(id)
		li.ExpenseID = uuid.MustParse(expenseID)
		if li.Quantity, err = parseDec(quantity); err != nil {
			return fmt.Errorf("parse quantity %q: %w", quantity, err)
		}
		if li.UnitPrice, err = parseDec(unitPrice); err != nil {
			return fmt.Errorf("parse unit price %q: %w", unitPrice, err)
		}
		if li.Total, err = parseDec(total); err != nil {
			return fmt.Errorf("parse line total %q: %w", total, err)
		}
		e.LineItems = append(e.LineItems, li)
	}
	return rows.Err()
}

func sortCategorySpend(s []CategorySpend) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Total.GreaterThan(s[j].Total)
	})
}

func sortVendorSpend(s []VendorSpend) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Total.GreaterThan(s[j].Total)
	})
}

const selectExpense = `SELECT id, organization_id, invoice_id, category_id, vendor_name,
       amount, currency, tax_amount, date, description, status,
       ai_confidence, reviewed_by, reviewed_at, reject_reason,
       is_duplicate, duplicate_of_id, created_at
FROM expenses`

func (r *ExpenseRepository) scanOne(row *sql.Row) (*models.Expense, error) {
	e, err := scanExpense(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *ExpenseRepository) collect(rows *sql.Rows) ([]*models.Expense, error) {
	var expenses []*models.Expense
	for rows.Next() {
		e, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func scanExpense(scan func(...any) error) (*models.Expense, error) {
	var e models.Expense
	var id, orgID, amount, taxAmount, date string
	var invoiceID, categoryID, confidence, reviewedBy, duplicateOfID sql.NullString
	var reviewedAt sql.NullTime
	err := scan(&id, &orgID, &invoiceID, &categoryID, &e.VendorName,
		&amount, &e.Currency, &taxAmount, &date, &e.Description, &e.Status,
		&confidence, &reviewedBy, &reviewedAt, &e.RejectReason,
		&e.IsDuplicate, &duplicateOfID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.ID = uuid.MustParse(id)
	e.OrganizationID = uuid.MustParse(orgID)
	if e.InvoiceID, err = uuidPtr(invoiceID); err != nil {
		return nil, err
	}
	if e.CategoryID, err = uuidPtr(categoryID); err != nil {
		return nil, err
	}
	if e.Amount, err = parseDec(amount); err != nil {
		return nil, err
	}
	if e.TaxAmount, err = parseDec(taxAmount); err != nil {
		return nil, err
	}
	if e.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	if e.AIConfidence, err = parseDecPtr(confidence); err != nil {
		return nil, err
	}
	if e.ReviewedBy, err = uuidPtr(reviewedBy); err != nil {
		return nil, err
	}
	if e.DuplicateOfID, err = uuidPtr(duplicateOfID); err != nil {
		return nil, err
	}
	e.ReviewedAt = timePtr(reviewedAt)
	return &e, nil
}
