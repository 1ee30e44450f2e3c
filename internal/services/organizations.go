package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aragroup/ara-platform/internal/apperrors"
	"github.com/aragroup/ara-platform/internal/audit"
	"github.com/aragroup/ara-platform/internal/db"
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/db/repositories"
	"github.com/aragroup/ara-platform/internal/storage"
)

// DefaultMaxLogoBytes caps logo uploads when no limit is configured.
const DefaultMaxLogoBytes = 1 << 20

// DefaultLogoURLTTL is the lifetime of signed logo URLs when none is configured.
const DefaultLogoURLTTL = 15 * time.Minute

var primaryColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// logoTypes maps accepted logo content types to file extensions.
var logoTypes = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/svg+xml": "svg",
	"image/webp":    "webp",
}

// OrganizationStore is the persistence OrganizationService needs.
// *repositories.OrganizationRepository satisfies it.
type OrganizationStore interface {
	MembershipReader
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateWithOwner(ctx context.Context, org *models.Organization, ownerID string) error
	Update(ctx context.Context, org *models.Organization) error
	SetLogoKey(ctx context.Context, orgID string, key *string) error
	GetUserMemberships(ctx context.Context, userID string) ([]*models.UserMembership, error)
	ListMembers(ctx context.Context, orgID string) ([]*models.MembershipWithUser, error)
	RemoveMember(ctx context.Context, orgID, userID string) error
	UpdateMemberRole(ctx context.Context, orgID, userID string, role models.Role) error
}

// OrganizationOptions configures an OrganizationService.
type OrganizationOptions struct {
	MaxLogoBytes int64
	LogoURLTTL   time.Duration
}

// OrganizationService manages organizations, their members and branding.
type OrganizationService struct {
	orgs     OrganizationStore
	storage  storage.Storage
	sessions SessionInvalidator
	recorder *audit.Recorder
	opts     OrganizationOptions
}

// NewOrganizationService creates an OrganizationService. storage may be nil,
// in which case logo operations fail.
func NewOrganizationService(orgs OrganizationStore, store storage.Storage, sessions SessionInvalidator, recorder *audit.Recorder, opts OrganizationOptions) *OrganizationService {
	if opts.MaxLogoBytes <= 0 {
		opts.MaxLogoBytes = DefaultMaxLogoBytes
	}
	if opts.LogoURLTTL <= 0 {
		opts.LogoURLTTL = DefaultLogoURLTTL
	}
	return &OrganizationService{
		orgs:     orgs,
		storage:  store,
		sessions: sessions,
		recorder: recorder,
		opts:     opts,
	}
}

// CreateOrganizationInput holds the attributes of a new organization.
type CreateOrganizationInput struct {
	Name         string
	Slug         string // derived from Name when empty
	PrimaryColor *string
}

// UpdateOrganizationInput holds the attributes to change. Nil fields are kept.
type UpdateOrganizationInput struct {
	Name         *string
	PrimaryColor *string
}

// ListOrganizations returns the active organizations user belongs to.
func (s *OrganizationService) ListOrganizations(ctx context.Context, user *models.User) ([]*models.UserMembership, error) {
	return s.orgs.GetUserMemberships(ctx, user.ID)
}

// CreateOrganization creates an organization owned by user.
func (s *OrganizationService) CreateOrganization(ctx context.Context, user *models.User, in CreateOrganizationInput) (*models.Organization, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.Invalid("organization name is required")
	}
	if err := validatePrimaryColor(in.PrimaryColor); err != nil {
		return nil, err
	}

	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if slug != "" {
		if !ValidSlug(slug) {
			return nil, apperrors.Invalid("slug must be lowercase letters, digits and hyphens")
		}
		exists, err := s.orgs.SlugExists(ctx, slug)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperrors.Conflict("organization slug already in use")
		}
	} else {
		var err error
		if slug, err = availableSlug(ctx, s.orgs, Slugify(name, "organization")); err != nil {
			return nil, err
		}
	}

	org := &models.Organization{
		Name:         name,
		Slug:         slug,
		PrimaryColor: in.PrimaryColor,
	}
	if err := s.orgs.CreateWithOwner(ctx, org, user.ID); err != nil {
		if db.IsUniqueViolation(err, "organizations_slug_key") {
			return nil, apperrors.Conflict("organization slug already in use")
		}
		return nil, err
	}

	s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionOrganizationCreated,
		UserID:         user.ID,
		OrganizationID: org.ID,
		ResourceType:   "organization",
		ResourceID:     org.ID,
		Metadata:       map[string]interface{}{"slug": org.Slug},
	})
	return org, nil
}

// GetOrganization returns an organization that has not been deleted.
func (s *OrganizationService) GetOrganization(ctx context.Context, orgID string) (*models.Organization, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil || org.Status == models.OrganizationStatusDeleted {
		return nil, ErrOrganizationNotFound
	}
	return org, nil
}

// UpdateOrganization changes the name or primary color. The actor must be an
// admin or owner. Plan and status are not editable here.
func (s *OrganizationService) UpdateOrganization(ctx context.Context, actor *models.User, orgID string, in UpdateOrganizationInput) (*models.Organization, error) {
	if _, err := requireRole(ctx, s.orgs, orgID, actor.ID, models.RoleAdmin); err != nil {
		return nil, err
	}
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	changed := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.Invalid("organization name cannot be empty")
		}
		org.Name = name
		changed["name"] = name
	}
	if in.PrimaryColor != nil {
		if err := validatePrimaryColor(in.PrimaryColor); err != nil {
			return nil, err
		}
		org.PrimaryColor = in.PrimaryColor
		if *in.PrimaryColor == "" {
			org.PrimaryColor = nil
		}
		changed["primary_color"] = *in.PrimaryColor
	}
	if len(changed) == 0 {
		return org, nil
	}

	if err := s.orgs.Update(ctx, org); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionOrganizationUpdated,
		UserID:         actor.ID,
		OrganizationID: org.ID,
		ResourceType:   "organization",
		ResourceID:     org.ID,
		Metadata:       changed,
	})
	return org, nil
}

// ListMembers returns the members of orgID with their user details.
func (s *OrganizationService) ListMembers(ctx context.Context, orgID string) ([]*models.MembershipWithUser, error) {
	return s.orgs.ListMembers(ctx, orgID)
}

// ChangeRole sets targetID's role in orgID. Admins may change roles; only
// owners may grant or revoke owner. Demoting the last owner is a conflict.
func (s *OrganizationService) ChangeRole(ctx context.Context, actor *models.User, orgID, targetID string, role models.Role) (*models.Membership, error) {
	if role.Rank() == 0 {
		return nil, apperrors.Invalid("invalid role")
	}
	actorMember, err := requireRole(ctx, s.orgs, orgID, actor.ID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	target, err := s.orgs.GetMember(ctx, orgID, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, repositories.ErrMembershipNotFound
	}
	if (role == models.RoleOwner || target.Role == models.RoleOwner) && actorMember.Role != models.RoleOwner {
		return nil, apperrors.Unauthorized("only owners can grant or revoke the owner role")
	}
	if target.Role == role {
		return target, nil
	}

	previous := target.Role
	if err := s.orgs.UpdateMemberRole(ctx, orgID, targetID, role); err != nil {
		return nil, err
	}
	target.Role = role
	target.UpdatedAt = time.Now()

	s.invalidate(ctx, targetID)
	s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionMemberRoleChanged,
		UserID:         actor.ID,
		OrganizationID: orgID,
		ResourceType:   "member",
		ResourceID:     targetID,
		Metadata:       map[string]interface{}{"from": string(previous), "to": string(role)},
	})
	return target, nil
}

// RemoveMember removes targetID from orgID. Members may remove themselves;
// removing anyone else takes an admin, and removing an owner takes an owner.
// The last owner cannot be removed.
func (s *OrganizationService) RemoveMember(ctx context.Context, actor *models.User, orgID, targetID string) error {
	if targetID == actor.ID {
		self, err := s.orgs.GetMember(ctx, orgID, actor.ID)
		if err != nil {
			return err
		}
		if self == nil {
			return ErrOrganizationNotFound
		}
	} else {
		actorMember, err := requireRole(ctx, s.orgs, orgID, actor.ID, models.RoleAdmin)
		if err != nil {
			return err
		}
		target, err := s.orgs.GetMember(ctx, orgID, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return repositories.ErrMembershipNotFound
		}
		if target.Role == models.RoleOwner && actorMember.Role != models.RoleOwner {
			return apperrors.Unauthorized("admins cannot remove owners")
		}
	}

	if err := s.orgs.RemoveMember(ctx, orgID, targetID); err != nil {
		return err
	}

	s.invalidate(ctx, targetID)
	s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionMemberRemoved,
		UserID:         actor.ID,
		OrganizationID: orgID,
		ResourceType:   "member",
		ResourceID:     targetID,
		Metadata:       map[string]interface{}{"self": targetID == actor.ID},
	})
	return nil
}

// UploadLogo stores a new logo for orgID and deletes the previous one. The
// content type is sniffed from the bytes, not taken from the client.
func (s *OrganizationService) UploadLogo(ctx context.Context, actor *models.User, orgID string, r io.Reader) (*models.Organization, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("logo storage is not configured")
	}
	if _, err := requireRole(ctx, s.orgs, orgID, actor.ID, models.RoleAdmin); err != nil {
		return nil, err
	}
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.opts.MaxLogoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read logo: %w", err)
	}
	if len(data) == 0 {
		return nil, apperrors.Invalid("logo file is empty")
	}
	if int64(len(data)) > s.opts.MaxLogoBytes {
		return nil, apperrors.Newf(apperrors.KindInvalid, "logo exceeds the %d byte limit", s.opts.MaxLogoBytes)
	}
	contentType := DetectLogoType(data)
	ext, ok := logoTypes[contentType]
	if !ok {
		return nil, apperrors.Invalid("logo must be a PNG, JPEG, SVG or WebP image")
	}

	key := fmt.Sprintf("organizations/%s/logo-%s.%s", org.ID, storage.Checksum(data)[:8], ext)
	if _, err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, fmt.Errorf("failed to store logo: %w", err)
	}
	if err := s.orgs.SetLogoKey(ctx, org.ID, &key); err != nil {
		return nil, err
	}

	if previous := org.LogoKey; previous != nil && *previous != "" && *previous != key {
		if err := s.storage.Delete(ctx, *previous); err != nil {
			slog.Warn("failed to delete previous logo", "organization_id", org.ID, "key", *previous, "error", err)
		}
	}
	org.LogoKey = &key

	s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionLogoUpdated,
		UserID:         actor.ID,
		OrganizationID: org.ID,
		ResourceType:   "organization",
		ResourceID:     org.ID,
		Metadata:       map[string]interface{}{"content_type": contentType, "size": len(data)},
	})
	return org, nil
}

// LogoURL returns a short-lived URL for the organization's logo.
func (s *OrganizationService) LogoURL(ctx context.Context, orgID string) (string, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return "", err
	}
	if !org.HasLogo() || s.storage == nil {
		return "", apperrors.NotFound("organization has no logo")
	}
	url, err := s.storage.SignedURL(ctx, *org.LogoKey, s.opts.LogoURLTTL)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return "", apperrors.NotFound("organization has no logo")
	}
	return url, err
}

// DetectLogoType sniffs the content type of a logo. SVG documents are
// recognised by their root element since they are XML text.
func DetectLogoType(data []byte) string {
	contentType := http.DetectContentType(data)
	if _, ok := logoTypes[contentType]; ok {
		return contentType
	}
	if strings.HasPrefix(contentType, "text/") && bytes.Contains(bytes.ToLower(data[:min(len(data), 1024)]), []byte("<svg")) {
		return "image/svg+xml"
	}
	return contentType
}

func (s *OrganizationService) invalidate(ctx context.Context, userID string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.InvalidateUser(ctx, userID); err != nil {
		slog.Warn("failed to invalidate cached sessions", "user_id", userID, "error", err)
	}
}

func validatePrimaryColor(c *string) error {
	if c == nil || *c == "" {
		return nil
	}
	if !primaryColorPattern.MatchString(*c) {
		return apperrors.Invalid("primary_color must be a hex color like #1a2b3c")
	}
	return nil
}
