package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/classtrack/apiserver/types"
	"github.com/lib/pq"
)

// AdminRepository handles persistence for admin accounts.
type AdminRepository struct {
	db *sql.DB
}

func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetByID(ctx context.Context, id string) (types.Identity, error) {
	const query = `
		SELECT id, email, first_name, last_name, password_hash, role_type, permissions, created_at, updated_at
		FROM admins
		WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (types.Identity, error) {
	const query = `
		SELECT id, email, first_name, last_name, password_hash, role_type, permissions, created_at, updated_at
		FROM admins
		WHERE lower(email) = lower($1)`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *AdminRepository) Create(ctx context.Context, identity types.Identity) (types.Identity, error) {
	now := time.Now()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	identity.Role = types.RoleAdmin

	const query = `
		INSERT INTO admins (id, email, first_name, last_name, password_hash, role_type, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		identity.ID,
		identity.Email,
		identity.FirstName,
		identity.LastName,
		identity.PasswordHash,
		identity.RoleType,
		pq.Array(identity.Permissions),
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

func (r *AdminRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE admins
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3`
	return execExpectingRow(ctx, r.db, query, passwordHash, time.Now(), id)
}

// UpdatePermissions replaces the admin's role type and permission set.
func (r *AdminRepository) UpdatePermissions(ctx context.Context, id string, roleType types.AdminRoleType, permissions []string) error {
	const query = `
		UPDATE admins
		SET role_type = $1,
			permissions = $2,
			updated_at = $3
		WHERE id = $4`
	return execExpectingRow(ctx, r.db, query, roleType, pq.Array(permissions), time.Now(), id)
}

// Count returns the total number of admin accounts.
func (r *AdminRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM admins`
	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *AdminRepository) scanOne(row *sql.Row) (types.Identity, error) {
	var identity types.Identity
	var permissions pq.StringArray
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.FirstName,
		&identity.LastName,
		&identity.PasswordHash,
		&identity.RoleType,
		&permissions,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Identity{}, ErrNotFound
		}
		return types.Identity{}, err
	}
	identity.Role = types.RoleAdmin
	identity.Permissions = permissions
	return identity, nil
}

func execExpectingRow(ctx context.Context, db *sql.DB, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
