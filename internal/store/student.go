package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/classtrack/apiserver/types"
)

// StudentRepository handles persistence for student accounts.
type StudentRepository struct {
	db *sql.DB
}

func NewStudentRepository(db *sql.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) GetByID(ctx context.Context, id string) (types.Identity, error) {
	const query = `
		SELECT id, email, first_name, last_name, password_hash, student_number, created_at, updated_at
		FROM students
		WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (types.Identity, error) {
	const query = `
		SELECT id, email, first_name, last_name, password_hash, student_number, created_at, updated_at
		FROM students
		WHERE lower(email) = lower($1)`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *StudentRepository) Create(ctx context.Context, identity types.Identity) (types.Identity, error) {
	now := time.Now()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	identity.Role = types.RoleStudent

	const query = `
		INSERT INTO students (id, email, first_name, last_name, password_hash, student_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		identity.ID,
		identity.Email,
		identity.FirstName,
		identity.LastName,
		identity.PasswordHash,
		identity.StudentNumber,
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

func (r *StudentRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE students
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3`
	return execExpectingRow(ctx, r.db, query, passwordHash, time.Now(), id)
}

func (r *StudentRepository) scanOne(row *sql.Row) (types.Identity, error) {
	var identity types.Identity
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.FirstName,
		&identity.LastName,
		&identity.PasswordHash,
		&identity.StudentNumber,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Identity{}, ErrNotFound
		}
		return types.Identity{}, err
	}
	identity.Role = types.RoleStudent
	return identity, nil
}
