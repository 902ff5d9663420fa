package http

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invoiceai/invoiceai-server/internal/auth"
	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

// ListCategories handles GET /api/categories.
func (h *Handlers) ListCategories(c *gin.Context) {
	categories, err := h.categories.List(c.Request.Context(), auth.OrgID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, categories)
}

// CreateCategory handles POST /api/categories.
func (h *Handlers) CreateCategory(c *gin.Context) {
	var req struct {
		Name  string `json:"name" binding:"required"`
		Color string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}
	if req.Color == "" {
		req.Color = "#6B7280"
	}

	category := &models.Category{
		ID:             uuid.New(),
		OrganizationID: auth.OrgID(c),
		Name:           req.Name,
		Color:          req.Color,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.categories.Create(c.Request.Context(), nil, category); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			badRequest(c, "a category with this name already exists")
			return
		}
		h.respondErr(c, err)
		return
	}
	created(c, category)
}

// DeleteCategory handles DELETE /api/categories/:id. Expenses keep their
// rows; their category becomes unset.
func (h *Handlers) DeleteCategory(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.categories.Delete(c.Request.Context(), auth.OrgID(c), id); err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, nil)
}
