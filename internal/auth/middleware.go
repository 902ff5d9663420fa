package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invoiceai/invoiceai-server/internal/repository"
)

// Context keys set by the middleware for downstream handlers.
const (
	ContextUserID = "user_id"
	ContextOrgID  = "organization_id"
	ContextRole   = "role"
)

// Middleware authenticates requests and verifies the token's organization
// membership is still current before letting the request through.
func Middleware(tokens *TokenProvider, orgs *repository.OrganizationRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing bearer token",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid or expired token",
			})
			return
		}

		// Membership can be revoked after a token was issued.
		role, err := orgs.MemberRole(c.Request.Context(), claims.UserID, claims.OrganizationID)
		if err != nil {
			status := http.StatusInternalServerError
			msg := "failed to verify membership"
			if errors.Is(err, repository.ErrNotFound) {
				status = http.StatusForbidden
				msg = "not a member of this organization"
			}
			c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextOrgID, claims.OrganizationID)
		c.Set(ContextRole, role)
		c.Next()
	}
}

// RequireAdmin limits a route to OWNER and ADMIN members.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		if role != "OWNER" && role != "ADMIN" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "admin access required",
			})
			return
		}
		c.Next()
	}
}

// OrgID returns the authenticated organization from the request context.
func OrgID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(ContextOrgID)
	id, _ := v.(uuid.UUID)
	return id
}

// UserID returns the authenticated user from the request context.
func UserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(ContextUserID)
	id, _ := v.(uuid.UUID)
	return id
}
