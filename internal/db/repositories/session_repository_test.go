package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/aragroup/ara-platform/internal/db/models"
)

var sessionCols = []string{
	"id", "token_hash", "user_id", "active_organization_id", "expires_at",
	"user_agent", "ip_address", "provider_access_token", "provider_refresh_token", "created_at",
}

func newSessionRepo(t *testing.T) (*SessionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSessionRepository(db), mock
}

func TestCreateSession(t *testing.T) {
	repo, mock := newSessionRepo(t)
	exp := time.Now().Add(time.Hour)
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "hash-1", "user-1", nil, exp, nil, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := &models.Session{TokenHash: "hash-1", UserID: "user-1", ExpiresAt: exp}
	if err := repo.CreateSession(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID == "" || s.CreatedAt.IsZero() {
		t.Errorf("session = %+v, want ID and CreatedAt assigned", s)
	}
}

func TestCreateSession_DBError(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectExec("INSERT INTO sessions").WillReturnError(errDB)

	if err := repo.CreateSession(context.Background(), &models.Session{}); err == nil {
		t.Error("expected error")
	}
}

func TestListByTokenHash_NewestFirst(t *testing.T) {
	repo, mock := newSessionRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT.*FROM sessions WHERE token_hash = \\$1 ORDER BY created_at DESC").
		WithArgs("hash-1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("s-2", "hash-1", "user-1", "org-1", now.Add(-time.Minute), nil, nil, nil, nil, now).
			AddRow("s-1", "hash-1", "user-1", nil, now.Add(time.Hour), "curl", "10.0.0.1", nil, nil, now.Add(-time.Hour)))

	sessions, err := repo.ListByTokenHash(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len = %d, want 2", len(sessions))
	}
	if sessions[0].ID != "s-2" || sessions[0].ActiveOrganizationID == nil || *sessions[0].ActiveOrganizationID != "org-1" {
		t.Errorf("sessions[0] = %+v", sessions[0])
	}
	if sessions[1].UserAgent == nil || *sessions[1].UserAgent != "curl" {
		t.Errorf("sessions[1].UserAgent = %v", sessions[1].UserAgent)
	}
}

func TestListByTokenHash_Empty(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("SELECT.*FROM sessions").
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows(sessionCols))

	sessions, err := repo.ListByTokenHash(context.Background(), "unknown")
	if err != nil || len(sessions) != 0 {
		t.Errorf("ListByTokenHash = %v, %v", sessions, err)
	}
}

func TestDeleteByTokenHash(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectExec("DELETE FROM sessions WHERE token_hash").
		WithArgs("hash-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteByTokenHash(context.Background(), "hash-1")
	if err != nil || n != 2 {
		t.Errorf("DeleteByTokenHash = %d, %v", n, err)
	}
}

func TestDeleteByUserID_ReturnsHashes(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("DELETE FROM sessions WHERE user_id = \\$1 RETURNING token_hash").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"token_hash"}).AddRow("h1").AddRow("h2"))

	hashes, err := repo.DeleteByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hashes) != 2 || hashes[0] != "h1" {
		t.Errorf("hashes = %v", hashes)
	}
}

func TestListTokenHashesByUser(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("SELECT token_hash FROM sessions WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"token_hash"}).AddRow("h1"))

	hashes, err := repo.ListTokenHashesByUser(context.Background(), "user-1")
	if err != nil || len(hashes) != 1 {
		t.Errorf("ListTokenHashesByUser = %v, %v", hashes, err)
	}
}

func TestSetActiveOrganization(t *testing.T) {
	repo, mock := newSessionRepo(t)
	org := "org-2"
	mock.ExpectExec("UPDATE sessions SET active_organization_id").
		WithArgs("s-1", org).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetActiveOrganization(context.Background(), "s-1", &org); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock := newSessionRepo(t)
	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectExec("DELETE FROM sessions WHERE expires_at < \\$1").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteExpired(context.Background(), cutoff)
	if err != nil || n != 7 {
		t.Errorf("DeleteExpired = %d, %v", n, err)
	}
}
