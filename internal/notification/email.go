package notification

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/config"
)

// EmailDispatcher sends HTML notification emails over SMTP.
type EmailDispatcher struct {
	cfg    config.EmailConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

func NewEmailDispatcher(cfg config.EmailConfig, logger *zap.Logger) *EmailDispatcher {
	return &EmailDispatcher{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logger,
	}
}

func (d *EmailDispatcher) BudgetAlert(ctx context.Context, n *BudgetAlertNotice) error {
	scope := "overall spending"
	if n.CategoryName != "" {
		scope = fmt.Sprintf("%s spending", n.CategoryName)
	}
	subject := fmt.Sprintf("Budget alert: %s at %s%% for %s",
		scope, n.Alert.Percentage.StringFixed(0), n.Alert.Month.Format("January 2006"))

	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Budget alert for %s</h2>", html.EscapeString(n.Organization.Name))
	fmt.Fprintf(&b, "<p>Your %s has reached <strong>%s%%</strong> of the monthly budget.</p>",
		html.EscapeString(scope), n.Alert.Percentage.StringFixed(2))
	fmt.Fprintf(&b, "<ul><li>Spent: %s</li><li>Budget: %s</li><li>Month: %s</li></ul>",
		n.Alert.ActualAmount.StringFixed(2), n.Alert.BudgetAmount.StringFixed(2),
		n.Alert.Month.Format("January 2006"))
	fmt.Fprintf(&b, `<p><a href="%s/budgets">Review budgets</a></p>`, d.cfg.AppURL)

	return d.deliver(n.Recipients, subject, b.String(), "", nil)
}

func (d *EmailDispatcher) PolicyViolation(ctx context.Context, n *PolicyViolationNotice) error {
	subject := fmt.Sprintf("Policy violation: %s (%s %s)",
		n.Expense.VendorName, n.Expense.Amount.StringFixed(2), n.Expense.Currency)

	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Expense policy violation in %s</h2>", html.EscapeString(n.Organization.Name))
	fmt.Fprintf(&b, "<p>An expense from <strong>%s</strong> for <strong>%s %s</strong> on %s violated:</p><ul>",
		html.EscapeString(n.Expense.VendorName), n.Expense.Amount.StringFixed(2),
		n.Expense.Currency, n.Expense.Date.Format("2006-01-02"))
	for _, v := range n.Violations {
		fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(v.Message))
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, `<p><a href="%s/expenses/%s">Review expense</a></p>`, d.cfg.AppURL, n.Expense.ID)

	return d.deliver(n.Recipients, subject, b.String(), "", nil)
}

func (d *EmailDispatcher) ProcessingFailed(ctx context.Context, n *ProcessingFailedNotice) error {
	subject := fmt.Sprintf("Invoice processing failed: %s", n.Invoice.FileName)

	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Invoice processing failed</h2>")
	fmt.Fprintf(&b, "<p>The document <strong>%s</strong> uploaded to %s could not be processed.</p>",
		html.EscapeString(n.Invoice.FileName), html.EscapeString(n.Organization.Name))
	fmt.Fprintf(&b, "<p>Reason: %s</p>", html.EscapeString(n.Reason))
	fmt.Fprintf(&b, `<p><a href="%s/invoices/%s">View invoice</a></p>`, d.cfg.AppURL, n.Invoice.ID)

	return d.deliver(n.Recipients, subject, b.String(), "", nil)
}

func (d *EmailDispatcher) Export(ctx context.Context, n *ExportNotice) error {
	var b strings.Builder
	b.WriteString("<h2>Your expense export is ready</h2>")
	fmt.Fprintf(&b, "<p>Total spend in the export: <strong>%s</strong>.</p>", n.TotalSpend.StringFixed(2))
	b.WriteString("<p>The report is attached.</p>")

	return d.deliver([]string{n.Recipient}, n.Subject, b.String(), n.FileName, n.Data)
}

// deliver assembles a MIME message (multipart when an attachment is
// present) and sends it in one SMTP transaction.
func (d *EmailDispatcher) deliver(recipients []string, subject, htmlBody, attachmentName string, attachment []byte) error {
	if len(recipients) == 0 {
		d.logger.Debug("notification has no recipients", zap.String("subject", subject))
		return nil
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", d.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if attachment == nil {
		msg.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		msg.WriteString(htmlBody)
	} else {
		const boundary = "invoiceai-mail-boundary"
		fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)

		fmt.Fprintf(&msg, "--%s\r\n", boundary)
		msg.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		msg.WriteString(htmlBody)
		msg.WriteString("\r\n")

		fmt.Fprintf(&msg, "--%s\r\n", boundary)
		fmt.Fprintf(&msg, "Content-Type: application/octet-stream; name=%q\r\n", attachmentName)
		fmt.Fprintf(&msg, "Content-Disposition: attachment; filename=%q\r\n", attachmentName)
		msg.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		msg.WriteString(wrapBase64(base64.StdEncoding.EncodeToString(attachment)))
		msg.WriteString("\r\n")
		fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.SMTPHost, d.cfg.SMTPPort)
	var auth smtp.Auth
	if d.cfg.Username != "" {
		auth = smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.SMTPHost)
	}
	if err := d.send(addr, auth, envelopeFrom(d.cfg.From), recipients, msg.Bytes()); err != nil {
		d.logger.Error("failed to send email",
			zap.String("subject", subject),
			zap.Strings("recipients", recipients),
			zap.Error(err))
		return fmt.Errorf("send email: %w", err)
	}

	d.logger.Info("email sent",
		zap.String("subject", subject),
		zap.Int("recipients", len(recipients)))
	return nil
}

// envelopeFrom strips a display name so the SMTP MAIL FROM gets a bare
// address even when the configured From is "Name <addr>".
func envelopeFrom(from string) string {
	if parsed, err := mail.ParseAddress(from); err == nil {
		return parsed.Address
	}
	return from
}

// wrapBase64 folds encoded content to 76-character lines per RFC 2045.
func wrapBase64(s string) string {
	const width = 76
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteString("\r\n")
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}
