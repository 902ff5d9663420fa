package notification

import (
	"context"
	"encoding/base64"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/config"
	"github.com/invoiceai/invoiceai-server/internal/models"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestDispatcher(t *testing.T) (*EmailDispatcher, *[]sentMail) {
	t.Helper()
	d := NewEmailDispatcher(config.EmailConfig{
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		From:     "InvoiceAI <noreply@example.com>",
		AppURL:   "https://app.example.com",
	}, zap.NewNop())

	var sent []sentMail
	d.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	return d, &sent
}

func TestEmailDispatcher_BudgetAlert(t *testing.T) {
	d, sent := newTestDispatcher(t)

	err := d.BudgetAlert(context.Background(), &BudgetAlertNotice{
		Organization: &models.Organization{Name: "Test Org"},
		Budget:       &models.Budget{ID: uuid.New()},
		Alert: &models.BudgetAlert{
			AlertType:    models.AlertThreshold80,
			Month:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			ActualAmount: decimal.RequireFromString("850.00"),
			BudgetAmount: decimal.RequireFromString("1000.00"),
			Percentage:   decimal.RequireFromString("85.00"),
		},
		CategoryName: "Travel",
		Recipients:   []string{"owner@example.com", "admin@example.com"},
	})
	require.NoError(t, err)

	require.Len(t, *sent, 1)
	mail := (*sent)[0]
	assert.Equal(t, "smtp.example.com:587", mail.addr)
	assert.Equal(t, "noreply@example.com", mail.from)
	assert.Equal(t, []string{"owner@example.com", "admin@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "To: owner@example.com, admin@example.com")
	assert.Contains(t, mail.msg, "Travel spending")
	assert.Contains(t, mail.msg, "85.00")
	assert.Contains(t, mail.msg, "March 2026")
	assert.Contains(t, mail.msg, "https://app.example.com/budgets")
}

func TestEmailDispatcher_NoRecipientsIsANoop(t *testing.T) {
	d, sent := newTestDispatcher(t)

	err := d.BudgetAlert(context.Background(), &BudgetAlertNotice{
		Organization: &models.Organization{Name: "Test Org"},
		Budget:       &models.Budget{},
		Alert: &models.BudgetAlert{
			Month:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			ActualAmount: decimal.Zero,
			BudgetAmount: decimal.Zero,
			Percentage:   decimal.Zero,
		},
	})
	require.NoError(t, err)
	assert.Empty(t, *sent)
}

func TestEmailDispatcher_PolicyViolationEscapesContent(t *testing.T) {
	d, sent := newTestDispatcher(t)

	err := d.PolicyViolation(context.Background(), &PolicyViolationNotice{
		Organization: &models.Organization{Name: "Test <b>Org</b>"},
		Expense: &models.Expense{
			ID:         uuid.New(),
			VendorName: "Acme <script>",
			Amount:     decimal.RequireFromString("250.00"),
			Currency:   "USD",
			Date:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		Violations: []*models.PolicyViolation{
			{Message: "Expense cap: expense amount 250.00 USD exceeds the per-expense limit of 100.00"},
			{Message: "Description required: a description is required"},
		},
		Recipients: []string{"admin@example.com"},
	})
	require.NoError(t, err)

	require.Len(t, *sent, 1)
	msg := (*sent)[0].msg
	assert.Contains(t, msg, "Acme &lt;script&gt;")
	assert.Contains(t, msg, "Test &lt;b&gt;Org&lt;/b&gt;")
	assert.Contains(t, msg, "exceeds the per-expense limit")
	assert.Contains(t, msg, "a description is required")
}

func TestEmailDispatcher_ExportAttachesFile(t *testing.T) {
	d, sent := newTestDispatcher(t)

	data := []byte("Date,Vendor,Amount\n2026-03-10,Acme Corp,120.50\n")
	err := d.Export(context.Background(), &ExportNotice{
		Recipient:  "user@example.com",
		Subject:    "Expense export",
		FileName:   "expenses.csv",
		Data:       data,
		TotalSpend: decimal.RequireFromString("120.50"),
	})
	require.NoError(t, err)

	require.Len(t, *sent, 1)
	mail := (*sent)[0]
	assert.Equal(t, []string{"user@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "multipart/mixed")
	assert.Contains(t, mail.msg, `filename="expenses.csv"`)
	assert.Contains(t, mail.msg, "Content-Transfer-Encoding: base64")
	assert.Contains(t, mail.msg, base64.StdEncoding.EncodeToString(data)[:40])
	assert.Contains(t, mail.msg, "120.50")
}

func TestEmailDispatcher_ProcessingFailed(t *testing.T) {
	d, sent := newTestDispatcher(t)

	invoiceID := uuid.New()
	err := d.ProcessingFailed(context.Background(), &ProcessingFailedNotice{
		Organization: &models.Organization{Name: "Test Org"},
		Invoice:      &models.Invoice{ID: invoiceID, FileName: "receipt.pdf"},
		Reason:       "could not extract an amount from the document",
		Recipients:   []string{"admin@example.com"},
	})
	require.NoError(t, err)

	require.Len(t, *sent, 1)
	msg := (*sent)[0].msg
	assert.Contains(t, msg, "receipt.pdf")
	assert.Contains(t, msg, "could not extract an amount")
	assert.Contains(t, msg, invoiceID.String())
}

func TestEnvelopeFrom(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "InvoiceAI <noreply@example.com>", want: "noreply@example.com"},
		{in: "noreply@example.com", want: "noreply@example.com"},
		{in: "not an address", want: "not an address"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envelopeFrom(tt.in))
	}
}

func TestWrapBase64(t *testing.T) {
	long := strings.Repeat("A", 200)
	wrapped := wrapBase64(long)

	for _, line := range strings.Split(wrapped, "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}
	assert.Equal(t, long, strings.ReplaceAll(wrapped, "\r\n", ""))
}
