package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// AuthTokenRepository manages one-time token persistence.
type AuthTokenRepository interface {
	Create(ctx context.Context, token *domain.AuthToken) error
	GetByToken(ctx context.Context, purpose domain.TokenPurpose, token string) (*domain.AuthToken, error)
	MarkUsed(ctx context.Context, id string) error
	InvalidateForUser(ctx context.Context, userID string, purpose domain.TokenPurpose) error
}

type authTokenRepository struct {
	pool *pgxpool.Pool
}

// NewAuthTokenRepository constructs repository.
func NewAuthTokenRepository(pool *pgxpool.Pool) AuthTokenRepository {
	return &authTokenRepository{pool: pool}
}

func (r *authTokenRepository) Create(ctx context.Context, token *domain.AuthToken) error {
	const query = `
        INSERT INTO auth_tokens (user_id, purpose, token, expires_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		token.UserID,
		token.Purpose,
		token.Token,
		token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)
	return mapWriteError(err)
}

func (r *authTokenRepository) GetByToken(ctx context.Context, purpose domain.TokenPurpose, tokenStr string) (*domain.AuthToken, error) {
	const query = `
        SELECT id, user_id, purpose, token, expires_at, used_at, created_at
        FROM auth_tokens WHERE token=$1 AND purpose=$2`
	var token domain.AuthToken
	if err := r.pool.QueryRow(ctx, query, tokenStr, purpose).Scan(
		&token.ID,
		&token.UserID,
		&token.Purpose,
		&token.Token,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *authTokenRepository) MarkUsed(ctx context.Context, id string) error {
	const query = `UPDATE auth_tokens SET used_at=NOW() WHERE id=$1 AND used_at IS NULL`
	return execOne(ctx, r.pool, query, id)
}

// InvalidateForUser burns every pending token of purpose so only the newest one works.
func (r *authTokenRepository) InvalidateForUser(ctx context.Context, userID string, purpose domain.TokenPurpose) error {
	const query = `
        UPDATE auth_tokens SET used_at=NOW()
        WHERE user_id=$1 AND purpose=$2 AND used_at IS NULL`
	_, err := r.pool.Exec(ctx, query, userID, purpose)
	return err
}
