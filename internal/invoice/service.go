package invoice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/repository"
	"github.com/invoiceai/invoiceai-server/internal/storage"
)

// MaxUploadSize caps uploaded documents at 10MB.
const MaxUploadSize = 10 << 20

// allowedTypes maps accepted extensions to the stored file type.
var allowedTypes = map[string]string{
	".pdf":  "pdf",
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".webp": "webp",
}

// ErrUnsupportedType is returned for uploads outside the pdf/png/jpeg/webp
// whitelist.
var ErrUnsupportedType = fmt.Errorf("unsupported file type (allowed: pdf, png, jpg, webp)")

// ErrTooLarge is returned for uploads over MaxUploadSize.
var ErrTooLarge = fmt.Errorf("file exceeds the 10MB limit")

// InvoiceDetail pairs an invoice with the expense its extraction produced,
// when one exists.
type InvoiceDetail struct {
	Invoice *models.Invoice `json:"invoice"`
	Expense *models.Expense `json:"expense,omitempty"`
}

// Service handles document intake and exposes the invoice read surface.
// The asynchronous pipeline itself lives in the worker package; the
// service's job ends once the UPLOADED row is durable and the worker has
// been nudged.
type Service struct {
	invoices *repository.InvoiceRepository
	expenses *repository.ExpenseRepository
	store    storage.Store
	kick     func()
	logger   *zap.Logger
}

func NewService(
	invoices *repository.InvoiceRepository,
	expenses *repository.ExpenseRepository,
	store storage.Store,
	logger *zap.Logger,
) *Service {
	return &Service{
		invoices: invoices,
		expenses: expenses,
		store:    store,
		kick:     func() {},
		logger:   logger,
	}
}

// SetProcessingKick wires the worker's wake-up call. Invoked after every
// successful upload so the worker does not wait out its poll interval.
func (s *Service) SetProcessingKick(kick func()) {
	s.kick = kick
}

// Upload validates and stores the document, creates the invoice in
// UPLOADED, and wakes the worker. The caller gets the invoice back
// immediately; extraction happens asynchronously.
func (s *Service) Upload(ctx context.Context, orgID, userID uuid.UUID, fileName string, size int64, data io.Reader) (*models.Invoice, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	fileType, ok := allowedTypes[ext]
	if !ok {
		return nil, ErrUnsupportedType
	}
	if size > MaxUploadSize {
		return nil, ErrTooLarge
	}

	inv := &models.Invoice{
		ID:             uuid.New(),
		OrganizationID: orgID,
		FileName:       fileName,
		FileSize:       size,
		FileType:       fileType,
		Status:         models.InvoiceStatusUploaded,
		UploadedBy:     userID,
		CreatedAt:      time.Now().UTC(),
	}
	inv.FileKey = fmt.Sprintf("%s/%s/%s", orgID, inv.ID, sanitizeFileName(fileName))

	// LimitReader guards against a lying Content-Length.
	if err := s.store.Put(ctx, inv.FileKey, io.LimitReader(data, MaxUploadSize+1)); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	if err := s.invoices.Create(ctx, nil, inv); err != nil {
		// Best effort: do not leave an orphaned object behind.
		if delErr := s.store.Delete(ctx, inv.FileKey); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload",
				zap.String("file_key", inv.FileKey),
				zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("invoice uploaded",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("organization_id", orgID.String()),
		zap.String("file_name", fileName),
		zap.Int64("file_size", size))

	s.kick()
	return inv, nil
}

// Get returns the invoice and, once extraction has run, its expense.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (*InvoiceDetail, error) {
	inv, err := s.invoices.GetForOrg(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	detail := &InvoiceDetail{Invoice: inv}

	e, err := s.expenses.GetByInvoiceID(ctx, orgID, id)
	if err == nil {
		detail.Expense = e
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return detail, nil
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID, status string, limit, offset int) ([]*models.Invoice, int64, error) {
	return s.invoices.ListForOrg(ctx, orgID, status, limit, offset)
}

// DownloadURL returns a signed, short-lived URL for the stored document.
func (s *Service) DownloadURL(ctx context.Context, orgID, id uuid.UUID) (string, error) {
	inv, err := s.invoices.GetForOrg(ctx, orgID, id)
	if err != nil {
		return "", err
	}
	return s.store.SignDownloadURL(inv.FileKey)
}

// Reprocess re-queues a FAILED invoice.
func (s *Service) Reprocess(ctx context.Context, orgID, id uuid.UUID) (*models.Invoice, error) {
	if err := s.invoices.ResetForReprocess(ctx, orgID, id); err != nil {
		return nil, err
	}
	s.kick()
	return s.invoices.GetForOrg(ctx, orgID, id)
}

// Delete removes the invoice row and its stored document. Any extracted
// expense survives with a detached invoice reference.
func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	inv, err := s.invoices.GetForOrg(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := s.invoices.Delete(ctx, orgID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, inv.FileKey); err != nil {
		s.logger.Warn("failed to delete stored document",
			zap.String("file_key", inv.FileKey),
			zap.Error(err))
	}
	return nil
}

func sanitizeFileName(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
