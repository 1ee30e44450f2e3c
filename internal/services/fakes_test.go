package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aragroup/ara-platform/internal/db/models"
	"github.com/aragroup/ara-platform/internal/db/repositories"
	"github.com/aragroup/ara-platform/internal/sessions"
	"github.com/google/uuid"
)

// memDB is an in-memory stand-in for the user, organization and invitation
// repositories. Its owner bookkeeping mirrors the repository transactions.
type memDB struct {
	mu          sync.Mutex
	users       map[string]*models.User
	orgs        map[string]*models.Organization
	members     map[string]map[string]*models.Membership // org -> user -> membership
	invitations map[string]*models.Invitation
	calls       int
	// failPersonalOrg is returned by CreatePersonalOrganization before it
	// writes anything.
	failPersonalOrg error
}

func newMemDB() *memDB {
	return &memDB{
		users:       map[string]*models.User{},
		orgs:        map[string]*models.Organization{},
		members:     map[string]map[string]*models.Membership{},
		invitations: map[string]*models.Invitation{},
	}
}

func (db *memDB) addUser(email string) *models.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := &models.User{ID: uuid.New().String(), Email: email, Name: email}
	db.users[u.ID] = u
	return u
}

func (db *memDB) addOrg(name string) *models.Organization {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := &models.Organization{ID: uuid.New().String(), Name: name, Slug: Slugify(name, "org"), Status: models.OrganizationStatusActive, Plan: models.PlanFree}
	db.orgs[o.ID] = o
	return o
}

func (db *memDB) addMember(orgID, userID string, role models.Role) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.members[orgID] == nil {
		db.members[orgID] = map[string]*models.Membership{}
	}
	db.members[orgID][userID] = &models.Membership{OrganizationID: orgID, UserID: userID, Role: role}
}

func (db *memDB) role(orgID, userID string) models.Role {
	db.mu.Lock()
	defer db.mu.Unlock()
	if m := db.members[orgID][userID]; m != nil {
		return m.Role
	}
	return ""
}

// --- users ---

func (db *memDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u, ok := db.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (db *memDB) GetUserByExternalID(_ context.Context, externalID string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (db *memDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (db *memDB) UpdateUser(_ context.Context, user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	user.DeletedAt = nil
	cp := *user
	db.users[user.ID] = &cp
	return nil
}

func (db *memDB) CreateUserWithPersonalOrganization(_ context.Context, user *models.User, org *models.Organization) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.calls++
	user.ID = uuid.New().String()
	org.ID = uuid.New().String()
	org.IsPersonal = true
	org.Status = models.OrganizationStatusActive
	user.PersonalOrganizationID = &org.ID
	u, o := *user, *org
	db.users[user.ID] = &u
	db.orgs[org.ID] = &o
	db.members[org.ID] = map[string]*models.Membership{user.ID: {OrganizationID: org.ID, UserID: user.ID, Role: models.RoleOwner}}
	return nil
}

func (db *memDB) CreatePersonalOrganization(_ context.Context, userID string, org *models.Organization) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failPersonalOrg != nil {
		return false, db.failPersonalOrg
	}
	if db.users[userID].PersonalOrganizationID != nil {
		return false, nil
	}
	org.ID = uuid.New().String()
	org.IsPersonal = true
	org.Status = models.OrganizationStatusActive
	o := *org
	db.orgs[org.ID] = &o
	db.members[org.ID] = map[string]*models.Membership{userID: {OrganizationID: org.ID, UserID: userID, Role: models.RoleOwner}}
	db.users[userID].PersonalOrganizationID = &o.ID
	return true, nil
}

func (db *memDB) UpsertUserByExternalID(_ context.Context, p models.ExternalProfile) (*models.User, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.ExternalID != nil && *u.ExternalID == p.ExternalID {
			u.Email, u.Name, u.DeletedAt = strings.ToLower(p.Email), p.DisplayName(), nil
			cp := *u
			return &cp, false, nil
		}
	}
	ext := p.ExternalID
	u := &models.User{ID: uuid.New().String(), ExternalID: &ext, Email: strings.ToLower(p.Email), Name: p.DisplayName()}
	db.users[u.ID] = u
	cp := *u
	return &cp, true, nil
}

func (db *memDB) SoftDeleteUserByExternalID(_ context.Context, externalID string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.ExternalID != nil && *u.ExternalID == externalID && u.DeletedAt == nil {
			now := time.Now()
			u.DeletedAt = &now
			return u.ID, nil
		}
	}
	return "", nil
}

// --- organizations ---

func (db *memDB) GetByID(_ context.Context, id string) (*models.Organization, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if o, ok := db.orgs[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (db *memDB) GetByExternalID(_ context.Context, externalID string) (*models.Organization, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range db.orgs {
		if o.ExternalID != nil && *o.ExternalID == externalID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (db *memDB) List(_ context.Context, filters repositories.OrganizationFilters, limit, offset int) ([]*models.Organization, int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var matched []*models.Organization
	for _, o := range db.orgs {
		if filters.Status != nil && o.Status != *filters.Status {
			continue
		}
		if filters.Status == nil && o.Status == models.OrganizationStatusDeleted {
			continue
		}
		if filters.Search != "" && !strings.Contains(o.Name, filters.Search) && !strings.Contains(o.Slug, filters.Search) {
			continue
		}
		cp := *o
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := int64(len(matched))
	if offset >= len(matched) {
		return []*models.Organization{}, total, nil
	}
	return matched[offset:min(offset+limit, len(matched))], total, nil
}

func (db *memDB) SlugExists(_ context.Context, slug string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range db.orgs {
		if o.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (db *memDB) CreateWithOwner(_ context.Context, org *models.Organization, ownerID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	org.ID = uuid.New().String()
	org.Status = models.OrganizationStatusActive
	cp := *org
	db.orgs[org.ID] = &cp
	db.members[org.ID] = map[string]*models.Membership{ownerID: {OrganizationID: org.ID, UserID: ownerID, Role: models.RoleOwner}}
	return nil
}

func (db *memDB) Update(_ context.Context, org *models.Organization) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *org
	db.orgs[org.ID] = &cp
	return nil
}

func (db *memDB) SetLogoKey(_ context.Context, orgID string, key *string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.orgs[orgID].LogoKey = key
	return nil
}

func (db *memDB) UpsertByExternalID(_ context.Context, ext models.ExternalOrganization, slug string) (*models.Organization, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range db.orgs {
		if o.ExternalID != nil && *o.ExternalID == ext.ExternalID {
			o.Name = ext.Name
			if o.Status == models.OrganizationStatusDeleted {
				o.Status = models.OrganizationStatusActive
			}
			cp := *o
			return &cp, false, nil
		}
	}
	id := ext.ExternalID
	o := &models.Organization{ID: uuid.New().String(), ExternalID: &id, Name: ext.Name, Slug: slug, Status: models.OrganizationStatusActive}
	db.orgs[o.ID] = o
	cp := *o
	return &cp, true, nil
}

func (db *memDB) MarkDeletedByExternalID(_ context.Context, externalID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range db.orgs {
		if o.ExternalID != nil && *o.ExternalID == externalID {
			o.Status = models.OrganizationStatusDeleted
			return true, nil
		}
	}
	return false, nil
}

func (db *memDB) GetUserMemberships(_ context.Context, userID string) ([]*models.UserMembership, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*models.UserMembership
	for orgID, ms := range db.members {
		if m, ok := ms[userID]; ok && db.orgs[orgID] != nil {
			out = append(out, &models.UserMembership{OrganizationID: orgID, OrganizationName: db.orgs[orgID].Name, Role: m.Role})
		}
	}
	return out, nil
}

func (db *memDB) GetMember(_ context.Context, orgID, userID string) (*models.Membership, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if m, ok := db.members[orgID][userID]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (db *memDB) ListMembers(_ context.Context, orgID string) ([]*models.MembershipWithUser, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*models.MembershipWithUser
	for userID, m := range db.members[orgID] {
		out = append(out, &models.MembershipWithUser{Membership: *m, UserEmail: db.users[userID].Email})
	}
	return out, nil
}

func (db *memDB) ownersLocked(orgID string) int {
	n := 0
	for _, m := range db.members[orgID] {
		if m.Role == models.RoleOwner {
			n++
		}
	}
	return n
}

func (db *memDB) RemoveMember(_ context.Context, orgID, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.members[orgID][userID]
	if !ok {
		return repositories.ErrMembershipNotFound
	}
	if m.Role == models.RoleOwner && db.ownersLocked(orgID) <= 1 {
		return repositories.ErrLastOwner
	}
	delete(db.members[orgID], userID)
	return nil
}

func (db *memDB) UpdateMemberRole(_ context.Context, orgID, userID string, role models.Role) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.members[orgID][userID]
	if !ok {
		return repositories.ErrMembershipNotFound
	}
	if m.Role == models.RoleOwner && role != models.RoleOwner && db.ownersLocked(orgID) <= 1 {
		return repositories.ErrLastOwner
	}
	m.Role = role
	return nil
}

// --- invitations ---

type memInvitations struct{ db *memDB }

func (s memInvitations) Create(_ context.Context, inv *models.Invitation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	inv.ID = uuid.New().String()
	inv.Status = models.InvitationStatusPending
	inv.CreatedAt = time.Now()
	cp := *inv
	s.db.invitations[inv.ID] = &cp
	return nil
}

func (s memInvitations) GetByID(_ context.Context, id string) (*models.Invitation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if inv, ok := s.db.invitations[id]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, nil
}

func (s memInvitations) GetPendingByEmail(_ context.Context, orgID, email string) (*models.Invitation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, inv := range s.db.invitations {
		if inv.OrganizationID == orgID && strings.EqualFold(inv.Email, email) && inv.Status == models.InvitationStatusPending {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (s memInvitations) ListByOrganization(_ context.Context, orgID string) ([]models.Invitation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Invitation
	for _, inv := range s.db.invitations {
		if inv.OrganizationID == orgID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s memInvitations) ListPendingForEmail(_ context.Context, email string, now time.Time) ([]models.Invitation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Invitation
	for _, inv := range s.db.invitations {
		if strings.EqualFold(inv.Email, email) && inv.Status == models.InvitationStatusPending && now.Before(inv.ExpiresAt) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s memInvitations) Transition(_ context.Context, id string, to models.InvitationStatus) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	inv := s.db.invitations[id]
	if inv == nil || !inv.Status.CanTransition(to) {
		return repositories.ErrInvitationNotPending
	}
	inv.Status = to
	return nil
}

func (s memInvitations) Accept(ctx context.Context, inv *models.Invitation, userID string) error {
	if err := s.Transition(ctx, inv.ID, models.InvitationStatusAccepted); err != nil {
		return err
	}
	if s.db.role(inv.OrganizationID, userID) == "" {
		s.db.addMember(inv.OrganizationID, userID, inv.Role)
	}
	inv.Status = models.InvitationStatusAccepted
	return nil
}

// --- sessions ---

type fakeSessions struct {
	mu          sync.Mutex
	created     []*models.Session
	revoked     []string
	revokedUser []string
	invalidated []string
	switchErr   error
}

func (f *fakeSessions) Create(_ context.Context, userID string, activeOrgID *string, _ sessions.Metadata) (string, *models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &models.Session{ID: uuid.New().String(), UserID: userID, ActiveOrganizationID: activeOrgID, ExpiresAt: time.Now().Add(sessions.DefaultTTL)}
	f.created = append(f.created, s)
	return "token-" + s.ID, s, nil
}

func (f *fakeSessions) Revoke(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeSessions) RevokeUser(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedUser = append(f.revokedUser, userID)
	return 2, nil
}

func (f *fakeSessions) InvalidateUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
	return nil
}

func (f *fakeSessions) SwitchOrganization(_ context.Context, p *models.Principal, orgID string) (*models.Principal, error) {
	if f.switchErr != nil {
		return nil, f.switchErr
	}
	next := *p
	next.OrganizationID = orgID
	return &next, nil
}
