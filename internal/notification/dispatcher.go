package notification

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
)

// BudgetAlertNotice carries everything the budget alert email needs.
type BudgetAlertNotice struct {
	Organization *models.Organization
	Budget       *models.Budget
	Alert        *models.BudgetAlert
	CategoryName string // empty for an overall budget
	Recipients   []string
}

// PolicyViolationNotice carries a newly recorded violation.
type PolicyViolationNotice struct {
	Organization *models.Organization
	Expense      *models.Expense
	Violations   []*models.PolicyViolation
	Recipients   []string
}

// ProcessingFailedNotice is sent when invoice extraction fails hard.
type ProcessingFailedNotice struct {
	Organization *models.Organization
	Invoice      *models.Invoice
	Reason       string
	Recipients   []string
}

// ExportNotice delivers a finished report export as an attachment.
type ExportNotice struct {
	Recipient  string
	Subject    string
	FileName   string
	Data       []byte
	TotalSpend decimal.Decimal
}

// Dispatcher delivers notifications. Implementations must be safe for
// concurrent use; senders never block domain mutations on delivery.
type Dispatcher interface {
	BudgetAlert(ctx context.Context, n *BudgetAlertNotice) error
	PolicyViolation(ctx context.Context, n *PolicyViolationNotice) error
	ProcessingFailed(ctx context.Context, n *ProcessingFailedNotice) error
	Export(ctx context.Context, n *ExportNotice) error
}

// NopDispatcher logs notifications instead of delivering them. Used when
// no SMTP host is configured, and in tests.
type NopDispatcher struct {
	logger *zap.Logger
}

func NewNopDispatcher(logger *zap.Logger) *NopDispatcher {
	return &NopDispatcher{logger: logger}
}

func (d *NopDispatcher) BudgetAlert(ctx context.Context, n *BudgetAlertNotice) error {
	d.logger.Info("budget alert (email disabled)",
		zap.String("organization", n.Organization.Name),
		zap.String("alert_type", n.Alert.AlertType),
		zap.String("percentage", n.Alert.Percentage.StringFixed(2)))
	return nil
}

func (d *NopDispatcher) PolicyViolation(ctx context.Context, n *PolicyViolationNotice) error {
	d.logger.Info("policy violation (email disabled)",
		zap.String("organization", n.Organization.Name),
		zap.String("expense_id", n.Expense.ID.String()),
		zap.Int("violations", len(n.Violations)))
	return nil
}

func (d *NopDispatcher) ProcessingFailed(ctx context.Context, n *ProcessingFailedNotice) error {
	d.logger.Info("processing failed notice (email disabled)",
		zap.String("invoice_id", n.Invoice.ID.String()),
		zap.String("reason", n.Reason))
	return nil
}

func (d *NopDispatcher) Export(ctx context.Context, n *ExportNotice) error {
	d.logger.Info("export notice (email disabled)",
		zap.String("recipient", n.Recipient),
		zap.String("file", n.FileName))
	return nil
}
