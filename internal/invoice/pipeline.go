package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/ai"
	"github.com/invoiceai/invoiceai-server/internal/expense"
	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/notification"
	"github.com/invoiceai/invoiceai-server/internal/repository"
	"github.com/invoiceai/invoiceai-server/internal/storage"
)

// fallbackVendor is used when the model cannot read a vendor name.
const fallbackVendor = "Unknown Vendor"

// Pipeline converts one UPLOADED invoice into a NEEDS_REVIEW expense:
// claim -> fetch document -> extract -> build expense -> persist ->
// EXTRACTED. Any failure after the claim lands the invoice in FAILED with
// a human-readable cause; no partial expense is left behind.
type Pipeline struct {
	invoices   *repository.InvoiceRepository
	categories *repository.CategoryRepository
	orgs       *repository.OrganizationRepository
	expenses   *expense.Service
	extractor  ai.Extractor
	store      storage.Store
	dispatcher notification.Dispatcher
	logger     *zap.Logger
}

func NewPipeline(
	invoices *repository.InvoiceRepository,
	categories *repository.CategoryRepository,
	orgs *repository.OrganizationRepository,
	expenses *expense.Service,
	extractor ai.Extractor,
	store storage.Store,
	dispatcher notification.Dispatcher,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		invoices:   invoices,
		categories: categories,
		orgs:       orgs,
		expenses:   expenses,
		extractor:  extractor,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Process runs the pipeline for one invoice id. A missing invoice is a
// no-op (it may have been deleted since the poll); an invoice someone else
// already claimed is a no-op too.
func (p *Pipeline) Process(ctx context.Context, invoiceID uuid.UUID) error {
	inv, err := p.invoices.GetByID(ctx, invoiceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	claimed, err := p.invoices.MarkProcessing(ctx, inv.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	if err := p.run(ctx, inv); err != nil {
		p.logger.Error("invoice processing failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err))
		if markErr := p.invoices.MarkFailed(ctx, inv.ID, err.Error()); markErr != nil {
			p.logger.Error("failed to mark invoice FAILED",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(markErr))
		}
		p.notifyFailure(inv, err)
		return err
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, inv *models.Invoice) error {
	data, err := p.store.Get(ctx, inv.FileKey)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}

	result, err := p.extractor.Extract(ctx, data, inv.FileType, inv.FileName)
	if err != nil {
		return fmt.Errorf("extract document: %w", err)
	}

	e := p.buildExpense(ctx, inv, result)
	if err := p.expenses.Persist(ctx, e); err != nil {
		return err
	}

	if err := p.invoices.MarkExtracted(ctx, nil, inv.ID, result.Raw); err != nil {
		// The expense is already durable; surface the inconsistency loudly
		// but do not fail the run into FAILED.
		p.logger.Error("expense created but invoice not marked EXTRACTED",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("expense_id", e.ID.String()),
			zap.Error(err))
		return nil
	}

	p.logger.Info("invoice processed",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("expense_id", e.ID.String()),
		zap.String("vendor", e.VendorName),
		zap.String("amount", e.Amount.StringFixed(2)))
	return nil
}

// buildExpense maps the extraction result onto an expense, substituting
// defaults for whatever the model could not read.
func (p *Pipeline) buildExpense(ctx context.Context, inv *models.Invoice, result *ai.ExtractionResult) *models.Expense {
	now := time.Now().UTC()

	vendorName := result.VendorName
	if vendorName == "" {
		vendorName = fallbackVendor
	}
	amount := decimal.Zero
	if result.Amount != nil {
		amount = result.Amount.Round(2)
	}
	taxAmount := decimal.Zero
	if result.TaxAmount != nil {
		taxAmount = result.TaxAmount.Round(2)
	}
	currency := result.Currency
	if currency == "" {
		currency = "USD"
	}
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if result.Date != nil {
		date = *result.Date
	}
	confidence := result.Confidence

	invoiceID := inv.ID
	e := &models.Expense{
		ID:             uuid.New(),
		OrganizationID: inv.OrganizationID,
		InvoiceID:      &invoiceID,
		CategoryID:     p.resolveCategory(ctx, inv.OrganizationID, result.CategoryName),
		VendorName:     vendorName,
		Amount:         amount,
		Currency:       currency,
		TaxAmount:      taxAmount,
		Date:           date,
		Description:    result.Description,
		Status:         models.ExpenseStatusNeedsReview,
		AIConfidence:   &confidence,
		CreatedAt:      now,
	}
	for _, li := range result.LineItems {
		e.LineItems = append(e.LineItems, models.ExpenseLineItem{
			ID:          uuid.New(),
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Total:       li.Total,
		})
	}
	return e
}

// resolveCategory maps the model's category hint onto the organization's
// categories, falling back to the default category, then to uncategorized.
func (p *Pipeline) resolveCategory(ctx context.Context, orgID uuid.UUID, hint string) *uuid.UUID {
	if hint != "" {
		if c, err := p.categories.GetByName(ctx, orgID, hint); err == nil {
			return &c.ID
		}
	}
	if c, err := p.categories.GetByName(ctx, orgID, models.DefaultCategoryName); err == nil {
		return &c.ID
	}
	return nil
}

func (p *Pipeline) notifyFailure(inv *models.Invoice, cause error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		org, err := p.orgs.GetOrganization(ctx, inv.OrganizationID)
		if err != nil {
			p.logger.Error("load organization for failure notice", zap.Error(err))
			return
		}
		recipients, err := p.orgs.AdminEmails(ctx, inv.OrganizationID)
		if err != nil {
			p.logger.Error("load recipients for failure notice", zap.Error(err))
			return
		}
		notice := &notification.ProcessingFailedNotice{
			Organization: org,
			Invoice:      inv,
			Reason:       cause.Error(),
			Recipients:   recipients,
		}
		if err := p.dispatcher.ProcessingFailed(ctx, notice); err != nil {
			p.logger.Error("send failure notice", zap.Error(err))
		}
	}()
}
