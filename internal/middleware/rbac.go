// Package middleware (rbac.go) implements role-based authorization middleware.
//
// Roles are read from the membership row at request time rather than from the
// session, so a demotion takes effect on the caller's next request.

package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/gin-gonic/gin"
)

// MembershipLookup loads one membership. *repositories.OrganizationRepository satisfies it.
type MembershipLookup interface {
	GetMember(ctx context.Context, orgID, userID string) (*models.Membership, error)
}

// OrgIDParam is the route parameter holding the organization id.
const OrgIDParam = "id"

// RequireOrgRole checks that the caller holds at least min in the organization
// named by the :id route parameter. Non-members get 404 so organization ids
// cannot be probed. On success the membership is stored under ContextKeyMembership.
func RequireOrgRole(members MembershipLookup, min models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		orgID := c.Param(OrgIDParam)
		member, err := members.GetMember(c.Request.Context(), orgID, principal.User.ID)
		if err != nil {
			slog.Error("failed to check organization membership", "org_id", orgID, "user_id", principal.User.ID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "failed to check organization membership",
			})
			return
		}
		if member == nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "organization not found",
			})
			return
		}

		if !member.Role.AtLeast(min) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "insufficient role",
				"details": "required role: " + string(min),
			})
			return
		}

		c.Set(ContextKeyMembership, member)
		c.Next()
	}
}

// GetMembership returns the membership stored by RequireOrgRole.
func GetMembership(c *gin.Context) *models.Membership {
	v, ok := c.Get(ContextKeyMembership)
	if !ok {
		return nil
	}
	m, _ := v.(*models.Membership)
	return m
}

// RequirePlatformAdmin restricts a route to platform administrators.
func RequirePlatformAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		if !principal.User.IsPlatformAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "platform administrator required",
			})
			return
		}
		c.Next()
	}
}
