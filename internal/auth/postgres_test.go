package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newPGFixture(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewPGStore(db), mock
}

func TestPGOrgCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newPGFixture(t)
	mock.ExpectQuery("insert into organizations").
		WithArgs(sqlmock.AnyArg(), "Org A", true).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Organizations(context.Background()).Create(context.Background(), &Organization{Name: "Org A", Active: true})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestPGUserFindByEmailNotFound(t *testing.T) {
	store, mock := newPGFixture(t)
	mock.ExpectQuery("select id, organization_id, email, password_hash, active, created_at, updated_at").
		WithArgs("nobody@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "password_hash", "active", "created_at", "updated_at"}))

	_, err := store.Users(context.Background()).FindByEmail(context.Background(), "nobody@x.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPGUserCreateMapsForeignKeyViolation(t *testing.T) {
	store, mock := newPGFixture(t)
	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "missing-org", "alice@x.com", "hash", true).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	u := &User{OrganizationID: "missing-org", Email: "alice@x.com", PasswordHash: "hash", Active: true}
	err := store.Users(context.Background()).Create(context.Background(), u)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPGUpdatePasswordUnknownUser(t *testing.T) {
	store, mock := newPGFixture(t)
	mock.ExpectExec("update users set password_hash").
		WithArgs("missing", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users(context.Background()).UpdatePassword(context.Background(), "missing", "newhash")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPGSetForRoleReplacesAtomically(t *testing.T) {
	store, mock := newPGFixture(t)
	mock.ExpectBegin()
	mock.ExpectExec("delete from role_permissions").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-1", PermissionDocumentRead).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-1", PermissionDocumentWrite).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Permissions(context.Background()).SetForRole(context.Background(), "role-1",
		[]string{PermissionDocumentRead, PermissionDocumentWrite})
	if err != nil {
		t.Fatalf("SetForRole: %v", err)
	}
}

func TestPGSetForRoleUnknownCodeRollsBack(t *testing.T) {
	store, mock := newPGFixture(t)
	mock.ExpectBegin()
	mock.ExpectExec("delete from role_permissions").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// The insert-select matches no permission row for the bogus code.
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-1", "no:such").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Permissions(context.Background()).SetForRole(context.Background(), "role-1", []string{"no:such"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPGRevocationRoundTrip(t *testing.T) {
	store, mock := newPGFixture(t)
	expires := time.Now().Add(time.Hour).UTC()
	mock.ExpectExec("insert into revoked_tokens").
		WithArgs("jti-1", expires).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("select exists").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	revocations := store.Revocations(context.Background())
	if err := revocations.RecordRevocation(context.Background(), "jti-1", expires); err != nil {
		t.Fatalf("RecordRevocation: %v", err)
	}
	revoked, err := revocations.IsTokenRevoked(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("IsTokenRevoked: %v", err)
	}
	if !revoked {
		t.Fatalf("token should be revoked")
	}
}
