package http

import (
	"github.com/gin-gonic/gin"

	"github.com/invoiceai/invoiceai-server/internal/auth"
)

// Register handles POST /api/auth/register.
func (h *Handlers) Register(c *gin.Context) {
	var in auth.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}

	session, err := h.authService.Register(c.Request.Context(), in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	created(c, session)
}

// Login handles POST /api/auth/login.
func (h *Handlers) Login(c *gin.Context) {
	var in auth.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}

	session, err := h.authService.Login(c.Request.Context(), in)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, session)
}

// ListMyOrganizations handles GET /api/auth/organizations.
func (h *Handlers) ListMyOrganizations(c *gin.Context) {
	orgs, err := h.authService.Organizations(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, orgs)
}
