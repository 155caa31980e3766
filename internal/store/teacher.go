package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/classtrack/apiserver/types"
)

// TeacherRepository handles persistence for teacher accounts.
type TeacherRepository struct {
	db *sql.DB
}

func NewTeacherRepository(db *sql.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

func (r *TeacherRepository) GetByID(ctx context.Context, id string) (types.Identity, error) {
	const query = `
		SELECT id, email, first_name, last_name, password_hash, employee_number, created_at, updated_at
		FROM teachers
		WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *TeacherRepository) GetByEmail(ctx context.Context, email string) (types.Identity, error) {
	const query = `
		SELECT id, email, first_name, last_name, password_hash, employee_number, created_at, updated_at
		FROM teachers
		WHERE lower(email) = lower($1)`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *TeacherRepository) Create(ctx context.Context, identity types.Identity) (types.Identity, error) {
	now := time.Now()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	identity.Role = types.RoleTeacher

	const query = `
		INSERT INTO teachers (id, email, first_name, last_name, password_hash, employee_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		identity.ID,
		identity.Email,
		identity.FirstName,
		identity.LastName,
		identity.PasswordHash,
		identity.EmployeeNumber,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Identity{}, ErrDuplicateEmail
		}
		return types.Identity{}, err
	}
	return identity, nil
}

func (r *TeacherRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE teachers
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3`
	return execExpectingRow(ctx, r.db, query, passwordHash, time.Now(), id)
}

func (r *TeacherRepository) scanOne(row *sql.Row) (types.Identity, error) {
	var identity types.Identity
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.FirstName,
		&identity.LastName,
		&identity.PasswordHash,
		&identity.EmployeeNumber,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Identity{}, ErrNotFound
		}
		return types.Identity{}, err
	}
	identity.Role = types.RoleTeacher
	return identity, nil
}
