package http

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceai/invoiceai-server/internal/auth"
	"github.com/invoiceai/invoiceai-server/internal/expense"
	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

// Amounts and dates travel as strings in request bodies so clients never
// send floats for money.
type lineItemRequest struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Total       string `json:"total"`
}

type expenseRequest struct {
	VendorName  string            `json:"vendor_name" binding:"required"`
	Amount      string            `json:"amount" binding:"required"`
	Currency    string            `json:"currency"`
	TaxAmount   string            `json:"tax_amount"`
	Date        string            `json:"date" binding:"required"`
	Description string            `json:"description"`
	CategoryID  *string           `json:"category_id"`
	LineItems   []lineItemRequest `json:"line_items"`
}

func (r expenseRequest) toInput() (expense.CreateExpenseInput, error) {
	var in expense.CreateExpenseInput

	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return in, fmt.Errorf("invalid amount %q", r.Amount)
	}
	tax := decimal.Zero
	if r.TaxAmount != "" {
		if tax, err = decimal.NewFromString(r.TaxAmount); err != nil {
			return in, fmt.Errorf("invalid tax_amount %q", r.TaxAmount)
		}
	}
	date, err := time.Parse(models.DateLayout, r.Date)
	if err != nil {
		return in, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", r.Date)
	}

	var categoryID *uuid.UUID
	if r.CategoryID != nil && *r.CategoryID != "" {
		id, err := uuid.Parse(*r.CategoryID)
		if err != nil {
			return in, fmt.Errorf("invalid category_id")
		}
		categoryID = &id
	}

	items := make([]expense.LineItemInput, 0, len(r.LineItems))
	for i, li := range r.LineItems {
		item, err := li.toInput()
		if err != nil {
			return in, fmt.Errorf("line item %d: %w", i+1, err)
		}
		items = append(items, item)
	}

	return expense.CreateExpenseInput{
		VendorName:  r.VendorName,
		Amount:      amount,
		Currency:    r.Currency,
		TaxAmount:   tax,
		Date:        date,
		Description: r.Description,
		CategoryID:  categoryID,
		LineItems:   items,
	}, nil
}

func (r lineItemRequest) toInput() (expense.LineItemInput, error) {
	var in expense.LineItemInput
	var err error

	in.Description = r.Description
	if in.Quantity, err = decimal.NewFromString(r.Quantity); err != nil {
		return in, fmt.Errorf("invalid quantity %q", r.Quantity)
	}
	if in.UnitPrice, err = decimal.NewFromString(r.UnitPrice); err != nil {
		return in, fmt.Errorf("invalid unit_price %q", r.UnitPrice)
	}
	if in.Total, err = decimal.NewFromString(r.Total); err != nil {
		return in, fmt.Errorf("invalid total %q", r.Total)
	}
	return in, nil
}

// CreateExpense handles POST /api/expenses.
func (h *Handlers) CreateExpense(c *gin.Context) {
	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	e, err := h.expenseService.Create(c.Request.Context(), auth.OrgID(c), in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	created(c, e)
}

// ListExpenses handles GET /api/expenses.
func (h *Handlers) ListExpenses(c *gin.Context) {
	filter, err := parseExpenseFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, offset := pagination(c)

	expenses, total, err := h.expenseService.List(c.Request.Context(), auth.OrgID(c), filter, limit, offset)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, ListResponse{Items: expenses, Total: total})
}

func parseExpenseFilter(c *gin.Context) (repository.ExpenseFilter, error) {
	f := repository.ExpenseFilter{
		Status:     c.Query("status"),
		VendorName: c.Query("vendor"),
		Search:     c.Query("search"),
	}

	if v := c.Query("category_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("invalid category_id")
		}
		f.CategoryID = &id
	}
	if v := c.Query("date_from"); v != "" {
		t, err := time.Parse(models.DateLayout, v)
		if err != nil {
			return f, fmt.Errorf("invalid date_from, expected YYYY-MM-DD")
		}
		f.DateFrom = &t
	}
	if v := c.Query("date_to"); v != "" {
		t, err := time.Parse(models.DateLayout, v)
		if err != nil {
			return f, fmt.Errorf("invalid date_to, expected YYYY-MM-DD")
		}
		f.DateTo = &t
	}
	if v := c.Query("min_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, fmt.Errorf("invalid min_amount")
		}
		f.MinAmount = &d
	}
	if v := c.Query("max_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, fmt.Errorf("invalid max_amount")
		}
		f.MaxAmount = &d
	}
	return f, nil
}

// GetExpense handles GET /api/expenses/:id.
func (h *Handlers) GetExpense(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	e, err := h.expenseService.Get(c.Request.Context(), auth.OrgID(c), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, e)
}

// UpdateExpense handles PUT /api/expenses/:id.
func (h *Handlers) UpdateExpense(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	e, err := h.expenseService.Update(c.Request.Context(), auth.OrgID(c), id, in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, e)
}

// ApproveExpense handles POST /api/expenses/:id/approve.
func (h *Handlers) ApproveExpense(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	e, err := h.expenseService.Approve(c.Request.Context(), auth.OrgID(c), id, auth.UserID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, e)
}

// RejectExpense handles POST /api/expenses/:id/reject.
func (h *Handlers) RejectExpense(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	c.ShouldBindJSON(&req)

	e, err := h.expenseService.Reject(c.Request.Context(), auth.OrgID(c), id, auth.UserID(c), req.Reason)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, e)
}

// BulkCreateExpenses handles POST /api/expenses/bulk.
func (h *Handlers) BulkCreateExpenses(c *gin.Context) {
	var req struct {
		Items []expenseRequest `json:"items" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}

	ins := make([]expense.CreateExpenseInput, 0, len(req.Items))
	for i, item := range req.Items {
		in, err := item.toInput()
		if err != nil {
			badRequest(c, fmt.Sprintf("item %d: %v", i+1, err))
			return
		}
		ins = append(ins, in)
	}

	result, err := h.expenseService.BulkCreate(c.Request.Context(), auth.OrgID(c), ins)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	created(c, result)
}

// BulkApproveExpenses handles POST /api/expenses/bulk-approve.
func (h *Handlers) BulkApproveExpenses(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, s := range req.IDs {
		id, err := uuid.Parse(s)
		if err != nil {
			badRequest(c, "invalid id "+s)
			return
		}
		ids = append(ids, id)
	}

	approved, err := h.expenseService.BulkApprove(c.Request.Context(), auth.OrgID(c), auth.UserID(c), ids)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, gin.H{"approved": approved, "requested": len(ids)})
}

// DeleteExpense handles DELETE /api/expenses/:id.
func (h *Handlers) DeleteExpense(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.expenseService.Delete(c.Request.Context(), auth.OrgID(c), id); err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, nil)
}
