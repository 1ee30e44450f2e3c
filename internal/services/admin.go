package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aragroup/ara-platform/internal/apperrors"
	"github.com/aragroup/ara-platform/internal/audit"
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/db/repositories"
)

// Paging bounds for the platform organization listing.
const (
	DefaultAdminPageSize = 20
	MaxAdminPageSize     = 100
)

// AdminOrganizationStore is the persistence AdminService needs.
// *repositories.OrganizationRepository satisfies it.
type AdminOrganizationStore interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	List(ctx context.Context, filters repositories.OrganizationFilters, limit, offset int) ([]*models.Organization, int64, error)
	Update(ctx context.Context, org *models.Organization) error
	ListMembers(ctx context.Context, orgID string) ([]*models.MembershipWithUser, error)
}

// StatsSource computes platform-wide counts. *repositories.StatsRepository satisfies it.
type StatsSource interface {
	PlatformStats(ctx context.Context, now time.Time) (*models.PlatformStats, error)
}

// AdminService backs the platform administration surface. Callers must
// already have checked that the actor is a platform admin.
type AdminService struct {
	orgs     AdminOrganizationStore
	stats    StatsSource
	sessions SessionInvalidator
	recorder *audit.Recorder
	now      func() time.Time
}

// NewAdminService creates an AdminService.
func NewAdminService(orgs AdminOrganizationStore, stats StatsSource, sessions SessionInvalidator, recorder *audit.Recorder) *AdminService {
	return &AdminService{orgs: orgs, stats: stats, sessions: sessions, recorder: recorder, now: time.Now}
}

// ListOrganizationsInput selects one page of the platform organization list.
type ListOrganizationsInput struct {
	Search  string
	Status  string
	Page    int
	PerPage int
}

// OrganizationPage is one page of organizations.
type OrganizationPage struct {
	Organizations []*models.Organization
	Total         int64
	Page          int
	PerPage       int
}

// AdminUpdateInput holds the platform-controlled organization attributes.
// Nil fields are kept.
type AdminUpdateInput struct {
	Status *string
	Plan   *string
}

// ListOrganizations returns organizations across the platform.
func (s *AdminService) ListOrganizations(ctx context.Context, in ListOrganizationsInput) (*OrganizationPage, error) {
	page := max(in.Page, 1)
	perPage := in.PerPage
	if perPage <= 0 {
		perPage = DefaultAdminPageSize
	}
	perPage = min(perPage, MaxAdminPageSize)

	filters := repositories.OrganizationFilters{Search: in.Search}
	if in.Status != "" {
		status, err := models.ParseOrganizationStatus(in.Status)
		if err != nil {
			return nil, apperrors.Invalid(err.Error())
		}
		filters.Status = &status
	}

	orgs, total, err := s.orgs.List(ctx, filters, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	return &OrganizationPage{Organizations: orgs, Total: total, Page: page, PerPage: perPage}, nil
}

// GetOrganization returns any organization, deleted ones included.
func (s *AdminService) GetOrganization(ctx context.Context, orgID string) (*models.Organization, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}
	return org, nil
}

// UpdateOrganization changes an organization's status or plan. Deleted
// organizations belong to directory sync and cannot be changed here, nor can
// an organization be moved into the deleted state. A status change drops the
// members' cached sessions so suspension takes effect on their next request.
func (s *AdminService) UpdateOrganization(ctx context.Context, actor *models.User, orgID string, in AdminUpdateInput) (*models.Organization, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.Status == models.OrganizationStatusDeleted {
		return nil, apperrors.Conflict("organization has been deleted")
	}

	var events []audit.Event
	statusChanged := false
	if in.Status != nil {
		status, err := models.ParseOrganizationStatus(strings.TrimSpace(*in.Status))
		if err != nil {
			return nil, apperrors.Invalid(err.Error())
		}
		if status == models.OrganizationStatusDeleted {
			return nil, apperrors.Invalid("organizations are deleted through directory sync")
		}
		if status != org.Status {
			events = append(events, audit.Event{
				Action:   audit.ActionOrganizationStatus,
				Metadata: map[string]interface{}{"from": string(org.Status), "to": string(status)},
			})
			org.Status = status
			statusChanged = true
		}
	}
	if in.Plan != nil {
		plan, err := models.ParsePlan(strings.TrimSpace(*in.Plan))
		if err != nil {
			return nil, apperrors.Invalid(err.Error())
		}
		if plan != org.Plan {
			events = append(events, audit.Event{
				Action:   audit.ActionOrganizationPlan,
				Metadata: map[string]interface{}{"from": string(org.Plan), "to": string(plan)},
			})
			org.Plan = plan
		}
	}
	if len(events) == 0 {
		return org, nil
	}

	if err := s.orgs.Update(ctx, org); err != nil {
		return nil, err
	}
	for _, e := range events {
		e.UserID = actor.ID
		e.OrganizationID = org.ID
		e.ResourceType = "organization"
		e.ResourceID = org.ID
		s.recorder.Record(ctx, e)
	}

	if statusChanged {
		s.invalidateMembers(ctx, org.ID)
	}
	return org, nil
}

func (s *AdminService) invalidateMembers(ctx context.Context, orgID string) {
	members, err := s.orgs.ListMembers(ctx, orgID)
	if err != nil {
		slog.Warn("failed to list members for session invalidation", "organization_id", orgID, "error", err)
		return
	}
	for _, m := range members {
		if err := s.sessions.InvalidateUser(ctx, m.UserID); err != nil {
			slog.Warn("failed to invalidate sessions", "user_id", m.UserID, "error", err)
		}
	}
}

// Stats returns platform-wide counts.
func (s *AdminService) Stats(ctx context.Context) (*models.PlatformStats, error) {
	return s.stats.PlatformStats(ctx, s.now())
}
