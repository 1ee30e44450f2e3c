package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aragroup/ara-platform/internal/audit"
	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/db/repositories"
	"github.com/aragroup/ara-platform/internal/sessions"
	"github.com/aragroup/ara-platform/internal/telemetry"
)

// AccountUserStore is the user persistence AccountService needs.
// *repositories.UserRepository satisfies it.
type AccountUserStore interface {
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	CreateUserWithPersonalOrganization(ctx context.Context, user *models.User, org *models.Organization) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	CreatePersonalOrganization(ctx context.Context, userID string, org *models.Organization) (bool, error)
}

// AccountOrgStore is the organization persistence AccountService needs.
// *repositories.OrganizationRepository satisfies it.
type AccountOrgStore interface {
	MembershipReader
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	GetUserMemberships(ctx context.Context, userID string) ([]*models.UserMembership, error)
}

// SessionManager issues and revokes sessions. *sessions.Manager satisfies it.
type SessionManager interface {
	SessionInvalidator
	Create(ctx context.Context, userID string, activeOrgID *string, meta sessions.Metadata) (string, *models.Session, error)
	Revoke(ctx context.Context, token string) error
	SwitchOrganization(ctx context.Context, p *models.Principal, orgID string) (*models.Principal, error)
}

// SignIn is the outcome of a completed sign-in.
type SignIn struct {
	User      *models.User
	Token     string
	Session   *models.Session
	FirstTime bool
}

// Profile is the signed-in user's view of themselves.
type Profile struct {
	User         models.User              `json:"user"`
	Organization *models.Organization     `json:"organization,omitempty"`
	Role         models.Role              `json:"role,omitempty"`
	Memberships  []*models.UserMembership `json:"memberships"`
}

// AccountService reconciles identity provider sign-ins with local users,
// organizations and sessions.
type AccountService struct {
	users       AccountUserStore
	orgs        AccountOrgStore
	sessions    SessionManager
	recorder    *audit.Recorder
	adminEmails map[string]bool
}

// NewAccountService creates an AccountService. Users signing up with an
// address in adminEmails become platform admins.
func NewAccountService(users AccountUserStore, orgs AccountOrgStore, sessionManager SessionManager, recorder *audit.Recorder, adminEmails []string) *AccountService {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = true
		}
	}
	return &AccountService{
		users:       users,
		orgs:        orgs,
		sessions:    sessionManager,
		recorder:    recorder,
		adminEmails: admins,
	}
}

// CompleteSignIn upserts the user behind identity and opens a session for
// them. Users are matched by external id, then by email; a first sign-in
// creates the user with a personal organization atomically.
func (s *AccountService) CompleteSignIn(ctx context.Context, identity *auth.Identity, meta sessions.Metadata) (*SignIn, error) {
	result, err := s.completeSignIn(ctx, identity, meta)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	telemetry.SignInsTotal.WithLabelValues(outcome).Inc()
	return result, err
}

func (s *AccountService) completeSignIn(ctx context.Context, identity *auth.Identity, meta sessions.Metadata) (*SignIn, error) {
	if identity == nil || identity.ExternalID == "" || identity.Email == "" {
		return nil, fmt.Errorf("identity provider returned an incomplete profile")
	}

	user, firstTime, err := s.upsertUser(ctx, identity)
	if err != nil {
		return nil, err
	}
	if user.PersonalOrganizationID == nil {
		if err := s.createPersonalOrganization(ctx, user); err != nil {
			return nil, err
		}
	}

	activeOrg, err := s.initialOrganization(ctx, user, identity.OrganizationID)
	if err != nil {
		return nil, err
	}

	meta.ProviderAccessToken = identity.AccessToken
	meta.ProviderRefreshToken = identity.RefreshToken
	token, session, err := s.sessions.Create(ctx, user.ID, activeOrg, meta)
	if err != nil {
		return nil, err
	}

	event := audit.Event{
		Action:       audit.ActionSignedIn,
		UserID:       user.ID,
		ResourceType: "session",
		ResourceID:   session.ID,
		Metadata:     map[string]interface{}{"first_time": firstTime},
	}
	if activeOrg != nil {
		event.OrganizationID = *activeOrg
	}
	s.recorder.Record(ctx, event)

	return &SignIn{User: user, Token: token, Session: session, FirstTime: firstTime}, nil
}

// upsertUser finds the local user for identity and refreshes its provider
// owned attributes, or creates it.
func (s *AccountService) upsertUser(ctx context.Context, identity *auth.Identity) (*models.User, bool, error) {
	user, err := s.users.GetUserByExternalID(ctx, identity.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		if user, err = s.users.GetUserByEmail(ctx, identity.Email); err != nil {
			return nil, false, err
		}
	}

	if user != nil {
		user.ExternalID = &identity.ExternalID
		user.Email = strings.ToLower(identity.Email)
		user.Name = identity.Name()
		user.ProfileImageURL = optional(identity.ProfileImageURL)
		user.EmailVerified = identity.EmailVerified
		if err := s.users.UpdateUser(ctx, user); err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	user = &models.User{
		ExternalID:      &identity.ExternalID,
		Email:           strings.ToLower(identity.Email),
		Name:            identity.Name(),
		ProfileImageURL: optional(identity.ProfileImageURL),
		EmailVerified:   identity.EmailVerified,
		IsPlatformAdmin: s.adminEmails[strings.ToLower(identity.Email)],
	}
	org, err := s.personalOrganization(ctx, user)
	if err != nil {
		return nil, false, err
	}
	if err := s.users.CreateUserWithPersonalOrganization(ctx, user, org); err != nil {
		return nil, false, err
	}
	slog.Info("created user", "user_id", user.ID, "personal_organization_id", org.ID)
	return user, true, nil
}

// createPersonalOrganization backfills the personal organization of a user
// created by a directory webhook before their first sign-in.
func (s *AccountService) createPersonalOrganization(ctx context.Context, user *models.User) error {
	org, err := s.personalOrganization(ctx, user)
	if err != nil {
		return err
	}
	created, err := s.users.CreatePersonalOrganization(ctx, user.ID, org)
	if err != nil {
		return err
	}
	if created {
		user.PersonalOrganizationID = &org.ID
		return nil
	}

	// A concurrent sign-in attached one first.
	current, err := s.users.GetUserByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if current == nil || current.PersonalOrganizationID == nil {
		return fmt.Errorf("personal organization for user %s not recorded", user.ID)
	}
	user.PersonalOrganizationID = current.PersonalOrganizationID
	return nil
}

func (s *AccountService) personalOrganization(ctx context.Context, user *models.User) (*models.Organization, error) {
	local, _, _ := strings.Cut(user.Email, "@")
	slug, err := availableSlug(ctx, s.orgs, Slugify(local, "user"))
	if err != nil {
		return nil, err
	}
	return &models.Organization{
		Name:       user.Name + "'s workspace",
		Slug:       slug,
		IsPersonal: true,
	}, nil
}

// initialOrganization picks the session's active organization: the provider
// organization the user signed in to when they belong to it locally, else
// their personal organization.
func (s *AccountService) initialOrganization(ctx context.Context, user *models.User, providerOrgID string) (*string, error) {
	if providerOrgID != "" {
		org, err := s.orgs.GetByExternalID(ctx, providerOrgID)
		if err != nil {
			return nil, err
		}
		if org != nil && org.IsActive() {
			member, err := s.orgs.GetMember(ctx, org.ID, user.ID)
			if err != nil {
				return nil, err
			}
			if member != nil {
				return &org.ID, nil
			}
		}
	}
	return user.PersonalOrganizationID, nil
}

// SignOut revokes the session behind token.
func (s *AccountService) SignOut(ctx context.Context, p *models.Principal, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	if p != nil {
		s.recorder.Record(ctx, audit.Event{
			Action:       audit.ActionSignedOut,
			UserID:       p.User.ID,
			ResourceType: "session",
			ResourceID:   p.SessionID,
		})
	}
	return nil
}

// Profile returns the caller's user, active organization and memberships.
func (s *AccountService) Profile(ctx context.Context, p *models.Principal) (*Profile, error) {
	memberships, err := s.orgs.GetUserMemberships(ctx, p.User.ID)
	if err != nil {
		return nil, err
	}
	if memberships == nil {
		memberships = []*models.UserMembership{}
	}
	profile := &Profile{User: p.User, Role: p.Role, Memberships: memberships}
	if p.HasOrganization() {
		org, err := s.orgs.GetByID(ctx, p.OrganizationID)
		if err != nil {
			return nil, err
		}
		profile.Organization = org
	}
	return profile, nil
}

// SwitchOrganization makes orgID the caller's active organization.
func (s *AccountService) SwitchOrganization(ctx context.Context, p *models.Principal, orgID string) (*models.Principal, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil || !org.IsActive() {
		return nil, ErrOrganizationNotFound
	}
	next, err := s.sessions.SwitchOrganization(ctx, p, orgID)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, audit.Event{
		Action:         audit.ActionOrganizationSwitched,
		UserID:         p.User.ID,
		OrganizationID: orgID,
		ResourceType:   "session",
		ResourceID:     p.SessionID,
	})
	return next, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

var (
	_ AccountUserStore = (*repositories.UserRepository)(nil)
	_ AccountOrgStore  = (*repositories.OrganizationRepository)(nil)
	_ SessionManager   = (*sessions.Manager)(nil)
)
