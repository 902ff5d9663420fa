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

type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{db: db, logger: logger}
}

func (r *InvoiceRepository) Create(ctx context.Context, tx *sql.Tx, inv *models.Invoice) error {
	_, err := dbtx(r.db, tx).ExecContext(ctx,
		`INSERT INTO invoices (id, organization_id, file_key, file_name, file_size, file_type,
		                       status, uploaded_by, ai_raw_response, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.String(), inv.OrganizationID.String(), inv.FileKey, inv.FileName,
		inv.FileSize, inv.FileType, inv.Status, inv.UploadedBy.String(),
		inv.AIRawResponse, inv.ErrorMessage, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// GetByID loads an invoice without tenant scoping. The processing worker is
// the only caller; request handlers go through GetForOrg.
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectInvoice+` WHERE id = ?`, id.String()))
}

func (r *InvoiceRepository) GetForOrg(ctx context.Context, orgID, id uuid.UUID) (*models.Invoice, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		selectInvoice+` WHERE id = ? AND organization_id = ?`, id.String(), orgID.String()))
}

// ListPending returns the oldest UPLOADED invoices, the worker's poll query.
func (r *InvoiceRepository) ListPending(ctx context.Context, limit int) ([]*models.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		selectInvoice+` WHERE status = ? ORDER BY created_at LIMIT ?`,
		models.InvoiceStatusUploaded, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending invoices: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *InvoiceRepository) ListForOrg(ctx context.Context, orgID uuid.UUID, status string, limit, offset int) ([]*models.Invoice, int64, error) {
	where := ` WHERE organization_id = ?`
	args := []any{orgID.String()}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, status)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		selectInvoice+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices, err := r.collect(rows)
	return invoices, total, err
}

// MarkProcessing claims an UPLOADED invoice for the worker. The conditional
// update is what keeps two pollers from processing the same invoice: only
// one of them observes rows affected = 1.
func (r *InvoiceRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, processing_started_at = ?, error_message = ''
		 WHERE id = ? AND status = ?`,
		models.InvoiceStatusProcessing, time.Now().UTC(), id.String(), models.InvoiceStatusUploaded)
	if err != nil {
		return false, fmt.Errorf("claim invoice: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim invoice: %w", err)
	}
	return n == 1, nil
}

func (r *InvoiceRepository) MarkExtracted(ctx context.Context, tx *sql.Tx, id uuid.UUID, rawResponse string) error {
	_, err := dbtx(r.db, tx).ExecContext(ctx,
		`UPDATE invoices SET status = ?, processing_completed_at = ?, ai_raw_response = ?
		 WHERE id = ?`,
		models.InvoiceStatusExtracted, time.Now().UTC(), rawResponse, id.String())
	if err != nil {
		return fmt.Errorf("mark invoice extracted: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, processing_completed_at = ?, error_message = ?
		 WHERE id = ?`,
		models.InvoiceStatusFailed, time.Now().UTC(), message, id.String())
	if err != nil {
		return fmt.Errorf("mark invoice failed: %w", err)
	}
	return nil
}

// ResetForReprocess moves a FAILED invoice back to UPLOADED so the worker
// picks it up again. Returns ErrNotFound when the invoice is not FAILED.
func (r *InvoiceRepository) ResetForReprocess(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices
		 SET status = ?, error_message = '', processing_started_at = NULL, processing_completed_at = NULL
		 WHERE id = ? AND organization_id = ? AND status = ?`,
		models.InvoiceStatusUploaded, id.String(), orgID.String(), models.InvoiceStatusFailed)
	if err != nil {
		return fmt.Errorf("reset invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *InvoiceRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM invoices WHERE id = ? AND organization_id = ?`,
		id.String(), orgID.String())
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectInvoice = `SELECT id, organization_id, file_key, file_name, file_size, file_type,
       status, uploaded_by, processing_started_at, processing_completed_at,
       ai_raw_response, error_message, created_at
FROM invoices`

func (r *InvoiceRepository) scanOne(row *sql.Row) (*models.Invoice, error) {
	var inv models.Invoice
	var id, orgID, uploadedBy string
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&id, &orgID, &inv.FileKey, &inv.FileName, &inv.FileSize, &inv.FileType,
		&inv.Status, &uploadedBy, &startedAt, &completedAt,
		&inv.AIRawResponse, &inv.ErrorMessage, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	inv.ID = uuid.MustParse(id)
	inv.OrganizationID = uuid.MustParse(orgID)
	inv.UploadedBy = uuid.MustParse(uploadedBy)
	inv.ProcessingStartedAt = timePtr(startedAt)
	inv.ProcessingCompletedAt = timePtr(completedAt)
	return &inv, nil
}

func (r *InvoiceRepository) collect(rows *sql.Rows) ([]*models.Invoice, error) {
	var invoices []*models.Invoice
	for rows.Next() {
		var inv models.Invoice
		var id, orgID, uploadedBy string
		var startedAt, completedAt sql.NullTime
		err := rows.Scan(&id, &orgID, &inv.FileKey, &inv.FileName, &inv.FileSize, &inv.FileType,
			&inv.Status, &uploadedBy, &startedAt, &completedAt,
			&inv.AIRawResponse, &inv.ErrorMessage, &inv.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.ID = uuid.MustParse(id)
		inv.OrganizationID = uuid.MustParse(orgID)
		inv.UploadedBy = uuid.MustParse(uploadedBy)
		inv.ProcessingStartedAt = timePtr(startedAt)
		inv.ProcessingCompletedAt = timePtr(completedAt)
		invoices = append(invoices, &inv)
	}
	return invoices, rows.Err()
}
