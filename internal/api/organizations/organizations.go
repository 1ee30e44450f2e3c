// Package organizations implements the organization, membership, branding and
// invitation endpoints under /api/organizations and /api/invitations.
//
// Membership of the :id organization is checked by middleware.RequireOrgRole
// before these handlers run; the services repeat the role checks that depend
// on the target of an operation (owners, self-removal).
package organizations

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/middleware"
	"github.com/aragroup/ara-platform/internal/services"
	"github.com/aragroup/ara-platform/internal/validation"
	"github.com/gin-gonic/gin"
)

// multipartOverhead allows for form boundaries and part headers around a logo.
const multipartOverhead = 64 << 10

// Organizations is the organization logic behind the handlers.
// *services.OrganizationService satisfies it.
type Organizations interface {
	ListOrganizations(ctx context.Context, user *models.User) ([]*models.UserMembership, error)
	CreateOrganization(ctx context.Context, user *models.User, in services.CreateOrganizationInput) (*models.Organization, error)
	GetOrganization(ctx context.Context, orgID string) (*models.Organization, error)
	UpdateOrganization(ctx context.Context, actor *models.User, orgID string, in services.UpdateOrganizationInput) (*models.Organization, error)
	ListMembers(ctx context.Context, orgID string) ([]*models.MembershipWithUser, error)
	ChangeRole(ctx context.Context, actor *models.User, orgID, targetID string, role models.Role) (*models.Membership, error)
	RemoveMember(ctx context.Context, actor *models.User, orgID, targetID string) error
	UploadLogo(ctx context.Context, actor *models.User, orgID string, r io.Reader) (*models.Organization, error)
	LogoURL(ctx context.Context, orgID string) (string, error)
}

var _ Organizations = (*services.OrganizationService)(nil)

// Handlers serves the organization and invitation endpoints.
type Handlers struct {
	orgs         Organizations
	invitations  Invitations
	auditLogs    AuditLogLister
	maxLogoBytes int64
}

// NewHandlers creates organization handlers. maxLogoBytes bounds the request
// body of logo uploads; services.DefaultMaxLogoBytes is used when it is zero.
func NewHandlers(orgs Organizations, invitations Invitations, auditLogs AuditLogLister, maxLogoBytes int64) *Handlers {
	if maxLogoBytes <= 0 {
		maxLogoBytes = services.DefaultMaxLogoBytes
	}
	return &Handlers{orgs: orgs, invitations: invitations, auditLogs: auditLogs, maxLogoBytes: maxLogoBytes}
}

// organizationResponse adds the logo endpoint to an organization.
type organizationResponse struct {
	*models.Organization
	LogoURL string `json:"logo_url,omitempty"`
}

func newOrganizationResponse(org *models.Organization) organizationResponse {
	resp := organizationResponse{Organization: org}
	if org.HasLogo() {
		resp.LogoURL = "/api/organizations/" + org.ID + "/logo"
	}
	return resp
}

// caller returns the signed-in user. Routes are mounted behind
// middleware.RequireSession, so a principal is always present.
func caller(c *gin.Context) *models.User {
	return &middleware.GetPrincipal(c).User
}

// ListOrganizationsHandler lists the caller's organizations with their role.
// GET /api/organizations
func (h *Handlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		memberships, err := h.orgs.ListOrganizations(c.Request.Context(), caller(c))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		if memberships == nil {
			memberships = []*models.UserMembership{}
		}
		c.JSON(http.StatusOK, gin.H{"organizations": memberships})
	}
}

type createOrganizationRequest struct {
	Name         string  `json:"name" binding:"required,min=1,max=100"`
	Slug         string  `json:"slug" binding:"omitempty,max=48"`
	PrimaryColor *string `json:"primary_color" binding:"omitempty,brand_color"`
}

// CreateOrganizationHandler creates an organization owned by the caller.
// POST /api/organizations
func (h *Handlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		org, err := h.orgs.CreateOrganization(c.Request.Context(), caller(c), services.CreateOrganizationInput{
			Name:         req.Name,
			Slug:         req.Slug,
			PrimaryColor: req.PrimaryColor,
		})
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, newOrganizationResponse(org))
	}
}

// GetOrganizationHandler returns one organization with the caller's role.
// GET /api/organizations/:id
func (h *Handlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.orgs.GetOrganization(c.Request.Context(), c.Param("id"))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		resp := gin.H{"organization": newOrganizationResponse(org)}
		if m := middleware.GetMembership(c); m != nil {
			resp["role"] = m.Role
		}
		c.JSON(http.StatusOK, resp)
	}
}

type updateOrganizationRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=1,max=100"`
	PrimaryColor *string `json:"primary_color" binding:"omitempty,brand_color"`
}

// UpdateOrganizationHandler changes the name or brand color.
// PATCH /api/organizations/:id
func (h *Handlers) UpdateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}
		if req.Name == nil && req.PrimaryColor == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no changes requested"})
			return
		}

		org, err := h.orgs.UpdateOrganization(c.Request.Context(), caller(c), c.Param("id"), services.UpdateOrganizationInput{
			Name:         req.Name,
			PrimaryColor: req.PrimaryColor,
		})
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, newOrganizationResponse(org))
	}
}

// ListMembersHandler lists the members of an organization.
// GET /api/organizations/:id/members
func (h *Handlers) ListMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		members, err := h.orgs.ListMembers(c.Request.Context(), c.Param("id"))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		if members == nil {
			members = []*models.MembershipWithUser{}
		}
		c.JSON(http.StatusOK, gin.H{"members": members})
	}
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required,role"`
}

// ChangeRoleHandler changes a member's role.
// PATCH /api/organizations/:id/members/:user_id
func (h *Handlers) ChangeRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changeRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		member, err := h.orgs.ChangeRole(c.Request.Context(), caller(c), c.Param("id"), c.Param("user_id"), models.Role(req.Role))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, member)
	}
}

// RemoveMemberHandler removes a member, or lets the caller leave.
// DELETE /api/organizations/:id/members/:user_id
func (h *Handlers) RemoveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.orgs.RemoveMember(c.Request.Context(), caller(c), c.Param("id"), c.Param("user_id")); err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// UploadLogoHandler replaces the organization logo. The image is sent either
// as the "file" field of a multipart form or as the raw request body.
// PUT /api/organizations/:id/logo
func (h *Handlers) UploadLogoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxLogoBytes+multipartOverhead)

		body, closeBody, err := logoBody(c)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "logo is too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "logo file is required"})
			return
		}
		defer closeBody()

		org, err := h.orgs.UploadLogo(c.Request.Context(), caller(c), c.Param("id"), body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "logo is too large"})
				return
			}
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, newOrganizationResponse(org))
	}
}

func logoBody(c *gin.Context) (io.Reader, func(), error) {
	if c.ContentType() != "multipart/form-data" {
		return c.Request.Body, func() {}, nil
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// LogoHandler redirects to a short-lived URL for the organization logo.
// GET /api/organizations/:id/logo
func (h *Handlers) LogoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		url, err := h.orgs.LogoURL(c.Request.Context(), c.Param("id"))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.Header("Cache-Control", "private, max-age=60")
		c.Redirect(http.StatusFound, url)
	}
}
