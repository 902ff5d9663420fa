package http

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceai/invoiceai-server/internal/auth"
	"github.com/invoiceai/invoiceai-server/internal/policy"
)

type policyRequest struct {
	Name            string  `json:"name" binding:"required"`
	RuleType        string  `json:"rule_type" binding:"required"`
	CategoryID      *string `json:"category_id"`
	ThresholdAmount *string `json:"threshold_amount"`
	RequiredField   string  `json:"required_field"`
	IsActive        *bool   `json:"is_active"`
}

func (r policyRequest) toInput() (policy.CreatePolicyInput, error) {
	in := policy.CreatePolicyInput{
		Name:          r.Name,
		RuleType:      r.RuleType,
		RequiredField: r.RequiredField,
		IsActive:      true,
	}
	if r.IsActive != nil {
		in.IsActive = *r.IsActive
	}
	if r.CategoryID != nil && *r.CategoryID != "" {
		id, err := uuid.Parse(*r.CategoryID)
		if err != nil {
			return in, fmt.Errorf("invalid category_id")
		}
		in.CategoryID = &id
	}
	if r.ThresholdAmount != nil && *r.ThresholdAmount != "" {
		d, err := decimal.NewFromString(*r.ThresholdAmount)
		if err != nil {
			return in, fmt.Errorf("invalid threshold_amount %q", *r.ThresholdAmount)
		}
		in.ThresholdAmount = &d
	}
	return in, nil
}

// CreatePolicy handles POST /api/policies.
func (h *Handlers) CreatePolicy(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	p, err := h.policyService.Create(c.Request.Context(), auth.OrgID(c), in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	created(c, p)
}

// UpdatePolicy handles PUT /api/policies/:id.
func (h *Handlers) UpdatePolicy(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	p, err := h.policyService.Update(c.Request.Context(), auth.OrgID(c), id, in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, p)
}

// GetPolicy handles GET /api/policies/:id.
func (h *Handlers) GetPolicy(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	p, err := h.policyService.Get(c.Request.Context(), auth.OrgID(c), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, p)
}

// ListPolicies handles GET /api/policies.
func (h *Handlers) ListPolicies(c *gin.Context) {
	policies, err := h.policyService.List(c.Request.Context(), auth.OrgID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, policies)
}

// DeletePolicy handles DELETE /api/policies/:id.
func (h *Handlers) DeletePolicy(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.policyService.Delete(c.Request.Context(), auth.OrgID(c), id); err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, nil)
}

// ListPolicyViolations handles GET /api/policy-violations.
func (h *Handlers) ListPolicyViolations(c *gin.Context) {
	limit, offset := pagination(c)
	violations, err := h.policyService.ListViolations(c.Request.Context(), auth.OrgID(c), limit, offset)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, violations)
}
