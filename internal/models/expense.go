package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Expense status state machine: NEEDS_REVIEW -> APPROVED | REJECTED.
// APPROVED and REJECTED are terminal. Recurring-template expenses are
// created directly in APPROVED.
const (
	ExpenseStatusNeedsReview = "NEEDS_REVIEW"
	ExpenseStatusApproved    = "APPROVED"
	ExpenseStatusRejected    = "REJECTED"
)

// Expense is the auditable expense record. Amounts are stored with two
// decimal places so exact equality (duplicate detection) and sums behave.
type Expense struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	InvoiceID      *uuid.UUID      `json:"invoice_id,omitempty"`
	CategoryID     *uuid.UUID      `json:"category_id,omitempty"`
	VendorName     string          `json:"vendor_name"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description,omitempty"`
	Status         string          `json:"status"`
	AIConfidence   *decimal.Decimal `json:"ai_confidence,omitempty"`
	ReviewedBy     *uuid.UUID      `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewed_at,omitempty"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	IsDuplicate    bool            `json:"is_duplicate"`
	DuplicateOfID  *uuid.UUID      `json:"duplicate_of_id,omitempty"`
	LineItems      []ExpenseLineItem `json:"line_items,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ExpenseLineItem is owned 1:N by its expense and deleted with it.
type ExpenseLineItem struct {
	ID          uuid.UUID       `json:"id"`
	ExpenseID   uuid.UUID       `json:"expense_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Reviewable reports whether the expense can still be approved or rejected.
func (e *Expense) Reviewable() bool {
	return e.Status == ExpenseStatusNeedsReview
}
