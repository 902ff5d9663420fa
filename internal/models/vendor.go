package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Vendor is a rolling per-vendor aggregate, not a ledger. Counters only
// ever grow; expense deletion is not reconciled back into them.
type Vendor struct {
	ID                uuid.UUID       `json:"id"`
	OrganizationID    uuid.UUID       `json:"organization_id"`
	Name              string          `json:"name"`
	NormalizedName    string          `json:"normalized_name"`
	DefaultCategoryID *uuid.UUID      `json:"default_category_id,omitempty"`
	ExpenseCount      int64           `json:"expense_count"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	LastExpenseDate   *time.Time      `json:"last_expense_date,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NormalizeVendorName produces the case-folded, trimmed join key under
// which all spellings of a vendor collapse to one row per organization.
func NormalizeVendorName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
