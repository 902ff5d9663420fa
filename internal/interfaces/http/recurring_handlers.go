package http

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceai/invoiceai-server/internal/auth"
	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/recurring"
)

type recurringRequest struct {
	VendorName  string  `json:"vendor_name" binding:"required"`
	Amount      string  `json:"amount" binding:"required"`
	Currency    string  `json:"currency"`
	TaxAmount   string  `json:"tax_amount"`
	Description string  `json:"description"`
	CategoryID  *string `json:"category_id"`
	Frequency   string  `json:"frequency" binding:"required"`
	NextDueDate string  `json:"next_due_date" binding:"required"`
	IsActive    *bool   `json:"is_active"`
}

func (r recurringRequest) toInput() (recurring.CreateTemplateInput, error) {
	in := recurring.CreateTemplateInput{
		VendorName:  r.VendorName,
		Currency:    r.Currency,
		Description: r.Description,
		Frequency:   r.Frequency,
		IsActive:    true,
	}
	if r.IsActive != nil {
		in.IsActive = *r.IsActive
	}

	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return in, fmt.Errorf("invalid amount %q", r.Amount)
	}
	in.Amount = amount

	in.TaxAmount = decimal.Zero
	if r.TaxAmount != "" {
		if in.TaxAmount, err = decimal.NewFromString(r.TaxAmount); err != nil {
			return in, fmt.Errorf("invalid tax_amount %q", r.TaxAmount)
		}
	}

	due, err := time.Parse(models.DateLayout, r.NextDueDate)
	if err != nil {
		return in, fmt.Errorf("invalid next_due_date %q, expected YYYY-MM-DD", r.NextDueDate)
	}
	in.NextDueDate = due

	if r.CategoryID != nil && *r.CategoryID != "" {
		id, err := uuid.Parse(*r.CategoryID)
		if err != nil {
			return in, fmt.Errorf("invalid category_id")
		}
		in.CategoryID = &id
	}
	return in, nil
}

// CreateRecurring handles POST /api/recurring.
func (h *Handlers) CreateRecurring(c *gin.Context) {
	var req recurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	re, err := h.recurringService.Create(c.Request.Context(), auth.OrgID(c), in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	created(c, re)
}

// CreateRecurringFromExpense handles POST /api/expenses/:id/recurring.
func (h *Handlers) CreateRecurringFromExpense(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req struct {
		Frequency string `json:"frequency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}

	re, err := h.recurringService.CreateFromExpense(c.Request.Context(), auth.OrgID(c), id, req.Frequency)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	created(c, re)
}

// ListRecurring handles GET /api/recurring.
func (h *Handlers) ListRecurring(c *gin.Context) {
	templates, err := h.recurringService.List(c.Request.Context(), auth.OrgID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, templates)
}

// GetRecurring handles GET /api/recurring/:id.
func (h *Handlers) GetRecurring(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	re, err := h.recurringService.Get(c.Request.Context(), auth.OrgID(c), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, re)
}

// UpdateRecurring handles PUT /api/recurring/:id.
func (h *Handlers) UpdateRecurring(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req recurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	re, err := h.recurringService.Update(c.Request.Context(), auth.OrgID(c), id, in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, re)
}

// DeleteRecurring handles DELETE /api/recurring/:id.
func (h *Handlers) DeleteRecurring(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.recurringService.Delete(c.Request.Context(), auth.OrgID(c), id); err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, nil)
}
