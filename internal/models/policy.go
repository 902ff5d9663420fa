package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Policy rule types
const (
	RuleMaxAmountPerExpense         = "MAX_AMOUNT_PER_EXPENSE"
	RuleMaxAmountPerCategoryMonthly = "MAX_AMOUNT_PER_CATEGORY_MONTHLY"
	RuleRequiredField               = "REQUIRED_FIELD"
)

// Required-field names a REQUIRED_FIELD policy may check.
const (
	RequiredFieldDescription = "description"
	RequiredFieldCategory    = "category"
)

// ExpensePolicy is a compliance rule evaluated against every newly created
// expense for its organization.
type ExpensePolicy struct {
	ID              uuid.UUID        `json:"id"`
	OrganizationID  uuid.UUID        `json:"organization_id"`
	Name            string           `json:"name"`
	RuleType        string           `json:"rule_type"`
	CategoryID      *uuid.UUID       `json:"category_id,omitempty"`
	ThresholdAmount *decimal.Decimal `json:"threshold_amount,omitempty"`
	RequiredField   string           `json:"required_field,omitempty"`
	IsActive        bool             `json:"is_active"`
	CreatedAt       time.Time        `json:"created_at"`
}

// PolicyViolation is append-only: one row per (expense, policy) failure,
// written at expense-creation time.
type PolicyViolation struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	ExpenseID      uuid.UUID `json:"expense_id"`
	PolicyID       uuid.UUID `json:"policy_id"`
	Message        string    `json:"message"`
	Notified       bool      `json:"notified"`
	CreatedAt      time.Time `json:"created_at"`
}
