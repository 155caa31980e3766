package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/classtrack/apiserver/types"
	"github.com/lib/pq"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func adminRow(id, email string, permissions string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "first_name", "last_name", "password_hash", "role_type", "permissions", "created_at", "updated_at",
	}).AddRow(id, email, "Ann", "Admin", "$2a$10$hash", string(types.AdminCustom), []byte(permissions), now, now)
}

func teacherRow(id, email string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "first_name", "last_name", "password_hash", "employee_number", "created_at", "updated_at",
	}).AddRow(id, email, "Tom", "Teacher", "$2a$10$hash", "EMP-2026-0001", now, now)
}

func TestFindByEmailProbeOrder(t *testing.T) {
	db, mock := newMockDB(t)
	identities := NewIdentityStore(db)

	mock.ExpectQuery("FROM admins").WithArgs("t@x.com").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM teachers").WithArgs("t@x.com").WillReturnRows(teacherRow("t-1", "t@x.com"))

	identity, err := identities.FindByEmail(context.Background(), "t@x.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if identity.Role != types.RoleTeacher || identity.ID != "t-1" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if identity.EmployeeNumber != "EMP-2026-0001" {
		t.Fatalf("expected the employee number carried over, got %q", identity.EmployeeNumber)
	}
	expectMet(t, mock)
}

func TestFindByEmailMissEverywhere(t *testing.T) {
	db, mock := newMockDB(t)
	identities := NewIdentityStore(db)

	mock.ExpectQuery("FROM admins").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM teachers").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM students").WillReturnError(sql.ErrNoRows)

	_, err := identities.FindByEmail(context.Background(), "ghost@x.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestIdentityStoreUnknownRole(t *testing.T) {
	db, _ := newMockDB(t)
	identities := NewIdentityStore(db)

	if _, err := identities.GetByID(context.Background(), types.Role("janitor"), "id-1"); err == nil {
		t.Fatal("expected an error for an unknown role")
	}
}

func TestAdminGetByIDScansPermissions(t *testing.T) {
	db, mock := newMockDB(t)
	admins := NewAdminRepository(db)

	mock.ExpectQuery("FROM admins").
		WithArgs("a-1").
		WillReturnRows(adminRow("a-1", "a@x.com", "{manage_users,manage_grades}"))

	identity, err := admins.GetByID(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if identity.Role != types.RoleAdmin {
		t.Fatalf("expected the admin role set, got %q", identity.Role)
	}
	want := []string{"manage_users", "manage_grades"}
	if len(identity.Permissions) != len(want) {
		t.Fatalf("unexpected permissions: %v", identity.Permissions)
	}
	for i, perm := range want {
		if identity.Permissions[i] != perm {
			t.Fatalf("unexpected permissions: %v", identity.Permissions)
		}
	}
	expectMet(t, mock)
}

func TestAdminCreateDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	admins := NewAdminRepository(db)

	mock.ExpectExec("INSERT INTO admins").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "admins_email_lower_idx"})

	_, err := admins.Create(context.Background(), types.Identity{
		ID:       "a-1",
		Email:    "a@x.com",
		RoleType: types.AdminCustom,
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	expectMet(t, mock)
}

func TestStudentCreateSetsRoleAndTimestamps(t *testing.T) {
	db, mock := newMockDB(t)
	students := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WillReturnResult(sqlmock.NewResult(0, 1))

	identity, err := students.Create(context.Background(), types.Identity{
		ID:            "s-1",
		Email:         "s@x.com",
		StudentNumber: "STU-2026-0001",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if identity.Role != types.RoleStudent {
		t.Fatalf("expected the student role set, got %q", identity.Role)
	}
	if identity.CreatedAt.IsZero() || identity.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
	expectMet(t, mock)
}

func TestUpdatePasswordMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	students := NewStudentRepository(db)

	mock.ExpectExec("UPDATE students").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := students.UpdatePassword(context.Background(), "ghost", "$2a$10$hash")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func resetTokenRow(hash string, used bool, expires time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_id", "owner_role", "secret_hash", "purpose", "expires_at", "used", "ip_address", "user_agent", "created_at",
	}).AddRow("rt-1", "s-1", string(types.RoleStudent), hash, types.PurposePasswordReset, expires, used, "10.0.0.1", "test-agent", time.Now())
}

func TestConsumeSingleWinner(t *testing.T) {
	db, mock := newMockDB(t)
	resets := NewResetTokenRepository(db)
	now := time.Now()

	mock.ExpectQuery("UPDATE reset_tokens").
		WithArgs("hash-1", now).
		WillReturnRows(resetTokenRow("hash-1", true, now.Add(time.Hour)))
	mock.ExpectQuery("UPDATE reset_tokens").
		WithArgs("hash-1", now).
		WillReturnError(sql.ErrNoRows)

	token, err := resets.Consume(context.Background(), "hash-1", now)
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if !token.Used || token.OwnerID != "s-1" {
		t.Fatalf("unexpected token: %+v", token)
	}
	if token.IPAddress != "10.0.0.1" || token.UserAgent != "test-agent" {
		t.Fatalf("expected audit fields scanned, got %+v", token)
	}

	if _, err := resets.Consume(context.Background(), "hash-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on the second consume, got %v", err)
	}
	expectMet(t, mock)
}

func TestPeekDoesNotUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	resets := NewResetTokenRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM reset_tokens").
		WithArgs("hash-1", now).
		WillReturnRows(resetTokenRow("hash-1", false, now.Add(time.Hour)))

	token, err := resets.Peek(context.Background(), "hash-1", now)
	if err != nil {
		t.Fatalf("Peek error: %v", err)
	}
	if token.Used {
		t.Fatal("peek must not mark the token used")
	}
	expectMet(t, mock)
}

func TestDeleteExpiredReportsCount(t *testing.T) {
	db, mock := newMockDB(t)
	resets := NewResetTokenRepository(db)
	now := time.Now()

	mock.ExpectExec("DELETE FROM reset_tokens").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	purged, err := resets.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
	if purged != 3 {
		t.Fatalf("expected 3 purged tokens, got %d", purged)
	}
	expectMet(t, mock)
}

func TestCounterNext(t *testing.T) {
	db, mock := newMockDB(t)
	counters := NewCounterRepository(db)

	mock.ExpectQuery("INSERT INTO counters").
		WithArgs("student_number").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(42))

	value, err := counters.Next(context.Background(), "student_number")
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if value != 42 {
		t.Fatalf("expected 42, got %d", value)
	}
	expectMet(t, mock)
}
