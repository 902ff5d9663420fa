package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Recurring frequencies
const (
	FrequencyWeekly    = "WEEKLY"
	FrequencyMonthly   = "MONTHLY"
	FrequencyQuarterly = "QUARTERLY"
	FrequencyYearly    = "YEARLY"
)

// RecurringExpense is a template that materializes into an APPROVED expense
// each time its next_due_date comes due. The schedule only ever advances.
type RecurringExpense struct {
	ID              uuid.UUID       `json:"id"`
	OrganizationID  uuid.UUID       `json:"organization_id"`
	SourceExpenseID *uuid.UUID      `json:"source_expense_id,omitempty"`
	VendorName      string          `json:"vendor_name"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Description     string          `json:"description,omitempty"`
	CategoryID      *uuid.UUID      `json:"category_id,omitempty"`
	Frequency       string          `json:"frequency"`
	NextDueDate     time.Time       `json:"next_due_date"`
	LastCreatedAt   *time.Time      `json:"last_created_at,omitempty"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NextDueDateAfter advances a due date by one period of the given frequency.
// Month-based advances clamp to the end of the target month (Jan 31 +1mo is
// Feb 28), unlike time.Time.AddDate which would roll over into March.
func NextDueDateAfter(current time.Time, frequency string) time.Time {
	switch frequency {
	case FrequencyWeekly:
		return current.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonthsClamped(current, 1)
	case FrequencyQuarterly:
		return addMonthsClamped(current, 3)
	case FrequencyYearly:
		return addMonthsClamped(current, 12)
	default:
		return current
	}
}

func addMonthsClamped(d time.Time, months int) time.Time {
	firstOfTarget := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location()).AddDate(0, months, 0)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := d.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, d.Location())
}
