package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/classtrack/apiserver/types"
)

// ResetTokenRepository handles persistence for password-reset tokens.
type ResetTokenRepository struct {
	db *sql.DB
}

func NewResetTokenRepository(db *sql.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) Create(ctx context.Context, token types.ResetToken) (types.ResetToken, error) {
	token.CreatedAt = time.Now()

	const query = `
		INSERT INTO reset_tokens (id, owner_id, owner_role, secret_hash, purpose, expires_at, used, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		token.ID,
		token.OwnerID,
		token.OwnerRole,
		token.SecretHash,
		token.Purpose,
		token.ExpiresAt,
		token.Used,
		token.IPAddress,
		token.UserAgent,
		token.CreatedAt,
	)
	if err != nil {
		return types.ResetToken{}, err
	}
	return token, nil
}

// Peek returns the unused, unexpired token matching the secret hash without
// consuming it.
func (r *ResetTokenRepository) Peek(ctx context.Context, secretHash string, now time.Time) (types.ResetToken, error) {
	const query = `
		SELECT id, owner_id, owner_role, secret_hash, purpose, expires_at, used, ip_address, user_agent, created_at
		FROM reset_tokens
		WHERE secret_hash = $1 AND used = FALSE AND expires_at > $2`
	return scanResetToken(r.db.QueryRowContext(ctx, query, secretHash, now))
}

// Consume marks the matching unused, unexpired token as used and returns it.
// The conditional update is a single statement, so concurrent resets with the
// same secret have exactly one winner.
func (r *ResetTokenRepository) Consume(ctx context.Context, secretHash string, now time.Time) (types.ResetToken, error) {
	const query = `
		UPDATE reset_tokens
		SET used = TRUE
		WHERE secret_hash = $1 AND used = FALSE AND expires_at > $2
		RETURNING id, owner_id, owner_role, secret_hash, purpose, expires_at, used, ip_address, user_agent, created_at`
	return scanResetToken(r.db.QueryRowContext(ctx, query, secretHash, now))
}

// DeleteExpired removes used and expired tokens, returning how many were
// purged.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM reset_tokens WHERE used = TRUE OR expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanResetToken(row *sql.Row) (types.ResetToken, error) {
	var token types.ResetToken
	var ipAddress, userAgent sql.NullString
	err := row.Scan(
		&token.ID,
		&token.OwnerID,
		&token.OwnerRole,
		&token.SecretHash,
		&token.Purpose,
		&token.ExpiresAt,
		&token.Used,
		&ipAddress,
		&userAgent,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ResetToken{}, ErrNotFound
		}
		return types.ResetToken{}, err
	}
	token.IPAddress = ipAddress.String
	token.UserAgent = userAgent.String
	return token, nil
}
