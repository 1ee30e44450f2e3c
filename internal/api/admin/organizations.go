// Package admin implements the platform administration endpoints under
// /api/admin. Every route requires a platform administrator.
package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/middleware"
	"github.com/aragroup/ara-platform/internal/services"
	"github.com/aragroup/ara-platform/internal/validation"
	"github.com/gin-gonic/gin"
)

// Platform is the administration logic behind the handlers.
// *services.AdminService satisfies it.
type Platform interface {
	ListOrganizations(ctx context.Context, in services.ListOrganizationsInput) (*services.OrganizationPage, error)
	GetOrganization(ctx context.Context, orgID string) (*models.Organization, error)
	UpdateOrganization(ctx context.Context, actor *models.User, orgID string, in services.AdminUpdateInput) (*models.Organization, error)
	Stats(ctx context.Context) (*models.PlatformStats, error)
}

var _ Platform = (*services.AdminService)(nil)

// Handlers serves the platform administration endpoints.
type Handlers struct {
	platform Platform
}

// NewHandlers creates admin handlers.
func NewHandlers(platform Platform) *Handlers {
	return &Handlers{platform: platform}
}

// Register mounts the admin routes on api.
func (h *Handlers) Register(api *gin.RouterGroup) {
	admin := api.Group("/admin")
	admin.Use(middleware.RequireSession(), middleware.RequirePlatformAdmin())
	{
		admin.GET("/stats", h.StatsHandler())
		admin.GET("/organizations", h.ListOrganizationsHandler())
		admin.GET("/organizations/:id", h.GetOrganizationHandler())
		admin.PATCH("/organizations/:id", h.UpdateOrganizationHandler())
	}
}

// ListOrganizationsHandler lists organizations across the platform
// GET /api/admin/organizations?page=1&per_page=20&search=fire&status=active
func (h *Handlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(services.DefaultAdminPageSize)))

		result, err := h.platform.ListOrganizations(c.Request.Context(), services.ListOrganizationsInput{
			Search:  c.Query("search"),
			Status:  c.Query("status"),
			Page:    page,
			PerPage: perPage,
		})
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		orgs := result.Organizations
		if orgs == nil {
			orgs = []*models.Organization{}
		}
		c.JSON(http.StatusOK, gin.H{
			"organizations": orgs,
			"pagination": gin.H{
				"page":     result.Page,
				"per_page": result.PerPage,
				"total":    result.Total,
			},
		})
	}
}

// GetOrganizationHandler returns any organization, including deleted ones
// GET /api/admin/organizations/:id
func (h *Handlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.platform.GetOrganization(c.Request.Context(), c.Param("id"))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, org)
	}
}

type updateOrganizationRequest struct {
	Status *string `json:"status" binding:"omitempty,oneof=active suspended"`
	Plan   *string `json:"plan" binding:"omitempty,oneof=free team enterprise"`
}

// UpdateOrganizationHandler changes an organization's status or plan
// PATCH /api/admin/organizations/:id
func (h *Handlers) UpdateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}
		if req.Status == nil && req.Plan == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status or plan is required"})
			return
		}

		actor := &middleware.GetPrincipal(c).User
		org, err := h.platform.UpdateOrganization(c.Request.Context(), actor, c.Param("id"), services.AdminUpdateInput{
			Status: req.Status,
			Plan:   req.Plan,
		})
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, org)
	}
}
