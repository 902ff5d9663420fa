package http

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invoiceai/invoiceai-server/internal/auth"
)

// ListVendors handles GET /api/vendors.
func (h *Handlers) ListVendors(c *gin.Context) {
	vendors, err := h.vendorService.List(c.Request.Context(), auth.OrgID(c), c.Query("search"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, vendors)
}

// GetVendor handles GET /api/vendors/:id.
func (h *Handlers) GetVendor(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	v, err := h.vendorService.Get(c.Request.Context(), auth.OrgID(c), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, v)
}

// SetVendorCategory handles PUT /api/vendors/:id/category. A null
// category_id clears the default.
func (h *Handlers) SetVendorCategory(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req struct {
		CategoryID *string `json:"category_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}

	var categoryID *uuid.UUID
	if req.CategoryID != nil && *req.CategoryID != "" {
		cid, err := uuid.Parse(*req.CategoryID)
		if err != nil {
			badRequest(c, "invalid category_id")
			return
		}
		categoryID = &cid
	}

	v, err := h.vendorService.SetDefaultCategory(c.Request.Context(), auth.OrgID(c), id, categoryID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, v)
}
