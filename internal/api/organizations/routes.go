package organizations

import (
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Register mounts the organization and invitation routes on api. members
// backs the role checks; uploadLimit, when non-nil, guards logo uploads.
//
// The logo redirect is public so division sites can show branding before
// sign-in.
func (h *Handlers) Register(api *gin.RouterGroup, members middleware.MembershipLookup, uploadLimit gin.HandlerFunc) {
	member := middleware.RequireOrgRole(members, models.RoleMember)
	admin := middleware.RequireOrgRole(members, models.RoleAdmin)

	api.GET("/organizations/:id/logo", h.LogoHandler())

	orgs := api.Group("/organizations")
	orgs.Use(middleware.RequireSession())
	{
		orgs.GET("", h.ListOrganizationsHandler())
		orgs.POST("", h.CreateOrganizationHandler())
		orgs.GET("/:id", member, h.GetOrganizationHandler())
		orgs.PATCH("/:id", admin, h.UpdateOrganizationHandler())

		orgs.GET("/:id/members", member, h.ListMembersHandler())
		orgs.PATCH("/:id/members/:user_id", admin, h.ChangeRoleHandler())
		// Members may remove themselves; the service checks everything else.
		orgs.DELETE("/:id/members/:user_id", member, h.RemoveMemberHandler())

		logo := []gin.HandlerFunc{admin}
		if uploadLimit != nil {
			logo = append(logo, uploadLimit)
		}
		orgs.PUT("/:id/logo", append(logo, h.UploadLogoHandler())...)

		orgs.GET("/:id/invitations", admin, h.ListInvitationsHandler())
		orgs.POST("/:id/invitations", admin, h.CreateInvitationHandler())
		orgs.DELETE("/:id/invitations/:invitation_id", admin, h.CancelInvitationHandler())

		orgs.GET("/:id/audit-logs", admin, h.ListAuditLogsHandler())
	}

	invitations := api.Group("/invitations")
	invitations.Use(middleware.RequireSession())
	{
		invitations.GET("", h.MyInvitationsHandler())
		invitations.POST("/accept", h.AcceptTokenHandler())
		invitations.POST("/:invitation_id/accept", h.AcceptInvitationHandler())
		invitations.POST("/:invitation_id/reject", h.RejectInvitationHandler())
	}
}
