package http

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceai/invoiceai-server/internal/auth"
	"github.com/invoiceai/invoiceai-server/internal/budget"
)

type budgetRequest struct {
	CategoryID   *string `json:"category_id"`
	MonthlyLimit string  `json:"monthly_limit" binding:"required"`
	AlertAt80    *bool   `json:"alert_at_80"`
	AlertAt100   *bool   `json:"alert_at_100"`
	IsActive     *bool   `json:"is_active"`
}

func (r budgetRequest) toInput() (budget.CreateBudgetInput, error) {
	in := budget.CreateBudgetInput{
		AlertAt80:  true,
		AlertAt100: true,
		IsActive:   true,
	}
	if r.AlertAt80 != nil {
		in.AlertAt80 = *r.AlertAt80
	}
	if r.AlertAt100 != nil {
		in.AlertAt100 = *r.AlertAt100
	}
	if r.IsActive != nil {
		in.IsActive = *r.IsActive
	}

	limit, err := decimal.NewFromString(r.MonthlyLimit)
	if err != nil {
		return in, fmt.Errorf("invalid monthly_limit %q", r.MonthlyLimit)
	}
	in.MonthlyLimit = limit

	if r.CategoryID != nil && *r.CategoryID != "" {
		id, err := uuid.Parse(*r.CategoryID)
		if err != nil {
			return in, fmt.Errorf("invalid category_id")
		}
		in.CategoryID = &id
	}
	return in, nil
}

// CreateBudget handles POST /api/budgets.
func (h *Handlers) CreateBudget(c *gin.Context) {
	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	b, err := h.budgetService.Create(c.Request.Context(), auth.OrgID(c), in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	created(c, b)
}

// UpdateBudget handles PUT /api/budgets/:id.
func (h *Handlers) UpdateBudget(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	b, err := h.budgetService.Update(c.Request.Context(), auth.OrgID(c), id, in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, b)
}

// GetBudget handles GET /api/budgets/:id.
func (h *Handlers) GetBudget(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	b, err := h.budgetService.Get(c.Request.Context(), auth.OrgID(c), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, b)
}

// ListBudgetProgress handles GET /api/budgets. Each budget is returned
// with its current-month spend and percentage.
func (h *Handlers) ListBudgetProgress(c *gin.Context) {
	progress, err := h.budgetService.ListProgress(c.Request.Context(), auth.OrgID(c), time.Now().UTC())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, progress)
}

// DeleteBudget handles DELETE /api/budgets/:id.
func (h *Handlers) DeleteBudget(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.budgetService.Delete(c.Request.Context(), auth.OrgID(c), id); err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, nil)
}

// ListBudgetAlerts handles GET /api/budget-alerts.
func (h *Handlers) ListBudgetAlerts(c *gin.Context) {
	limit, offset := pagination(c)
	alerts, err := h.budgetService.ListAlerts(c.Request.Context(), auth.OrgID(c), limit, offset)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, alerts)
}
