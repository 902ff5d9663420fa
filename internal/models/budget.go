package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Budget alert types
const (
	AlertThreshold80  = "THRESHOLD_80"
	AlertThreshold100 = "THRESHOLD_100"
)

// Budget is a monthly spend limit, either overall (nil CategoryID) or
// scoped to one category.
type Budget struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	CategoryID     *uuid.UUID      `json:"category_id,omitempty"`
	MonthlyLimit   decimal.Decimal `json:"monthly_limit"`
	AlertAt80      bool            `json:"alert_at_80"`
	AlertAt100     bool            `json:"alert_at_100"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// BudgetAlert records a fired threshold. At most one row may exist per
// (budget_id, alert_type, month); the unique constraint is the idempotency
// guard against double notification under concurrent approvals.
type BudgetAlert struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	BudgetID       uuid.UUID       `json:"budget_id"`
	AlertType      string          `json:"alert_type"`
	Month          time.Time       `json:"month"`
	ActualAmount   decimal.Decimal `json:"actual_amount"`
	BudgetAmount   decimal.Decimal `json:"budget_amount"`
	Percentage     decimal.Decimal `json:"percentage"`
	Notified       bool            `json:"notified"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MonthStart truncates a date to the first of its month (the alert key).
func MonthStart(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of the month containing d.
func MonthEnd(d time.Time) time.Time {
	return MonthStart(d).AddDate(0, 1, 0).AddDate(0, 0, -1)
}
