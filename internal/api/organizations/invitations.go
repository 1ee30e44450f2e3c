package organizations

import (
	"context"
	"net/http"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/middleware"
	"github.com/aragroup/ara-platform/internal/services"
	"github.com/aragroup/ara-platform/internal/validation"
	"github.com/gin-gonic/gin"
)

// Invitations is the invitation logic behind the handlers.
// *services.InvitationService satisfies it.
type Invitations interface {
	Invite(ctx context.Context, actor *models.User, orgID, email string, role models.Role) (*models.Invitation, string, error)
	ListForOrganization(ctx context.Context, actor *models.User, orgID string) ([]models.Invitation, error)
	ListForUser(ctx context.Context, user *models.User) ([]models.Invitation, error)
	Accept(ctx context.Context, user *models.User, id string) (*models.Invitation, error)
	AcceptToken(ctx context.Context, user *models.User, token string) (*models.Invitation, error)
	Reject(ctx context.Context, user *models.User, id string) (*models.Invitation, error)
	Cancel(ctx context.Context, actor *models.User, orgID, id string) (*models.Invitation, error)
}

var _ Invitations = (*services.InvitationService)(nil)

type listInvitationsQuery struct {
	Status string `form:"status" binding:"omitempty,invitation_status"`
}

// ListInvitationsHandler lists an organization's invitations, optionally
// filtered by status.
// GET /api/organizations/:id/invitations?status=pending
func (h *Handlers) ListInvitationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listInvitationsQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		invitations, err := h.invitations.ListForOrganization(c.Request.Context(), caller(c), c.Param("id"))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}

		filtered := make([]models.Invitation, 0, len(invitations))
		for _, inv := range invitations {
			if q.Status == "" || inv.Status == models.InvitationStatus(q.Status) {
				filtered = append(filtered, inv)
			}
		}
		c.JSON(http.StatusOK, gin.H{"invitations": filtered})
	}
}

type createInvitationRequest struct {
	Email string `json:"email" binding:"required,email,max=320"`
	Role  string `json:"role" binding:"required,role"`
}

// CreateInvitationHandler invites an email address to the organization. The
// response carries the signed acceptance token.
// POST /api/organizations/:id/invitations
func (h *Handlers) CreateInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createInvitationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		inv, token, err := h.invitations.Invite(c.Request.Context(), caller(c), c.Param("id"), req.Email, models.Role(req.Role))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"invitation": inv,
			"token":      token,
		})
	}
}

// CancelInvitationHandler cancels a pending invitation.
// DELETE /api/organizations/:id/invitations/:invitation_id
func (h *Handlers) CancelInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, err := h.invitations.Cancel(c.Request.Context(), caller(c), c.Param("id"), c.Param("invitation_id"))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inv)
	}
}

// MyInvitationsHandler lists pending invitations addressed to the caller.
// GET /api/invitations
func (h *Handlers) MyInvitationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invitations, err := h.invitations.ListForUser(c.Request.Context(), caller(c))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		if invitations == nil {
			invitations = []models.Invitation{}
		}
		c.JSON(http.StatusOK, gin.H{"invitations": invitations})
	}
}

type acceptTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// AcceptTokenHandler accepts the invitation named by a signed token.
// POST /api/invitations/accept
func (h *Handlers) AcceptTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req acceptTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message(err)})
			return
		}

		inv, err := h.invitations.AcceptToken(c.Request.Context(), caller(c), req.Token)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inv)
	}
}

// AcceptInvitationHandler accepts an invitation by id.
// POST /api/invitations/:invitation_id/accept
func (h *Handlers) AcceptInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, err := h.invitations.Accept(c.Request.Context(), caller(c), c.Param("invitation_id"))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inv)
	}
}

// RejectInvitationHandler declines an invitation.
// POST /api/invitations/:invitation_id/reject
func (h *Handlers) RejectInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, err := h.invitations.Reject(c.Request.Context(), caller(c), c.Param("invitation_id"))
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, inv)
	}
}
