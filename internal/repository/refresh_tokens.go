package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
	"github.com/jmoiron/sqlx"
)

type refreshTokenRepo struct {
	db *sqlx.DB
	l  logger.Logger
}

func NewRefreshTokenRepository(db *sqlx.DB, l logger.Logger) models.RefreshTokenRepository {
	return &refreshTokenRepo{db: db, l: l}
}

func (r *refreshTokenRepo) Close() error {
	return r.db.Close()
}

func (r *refreshTokenRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *refreshTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, issued_ip, user_agent, expires_at)
		VALUES (:id, :user_id, :issued_ip, :user_agent, :expires_at)
		RETURNING created_at, updated_at`

	stmt, err := r.db.PrepareNamedContext(ctx, query)
	if err != nil {
		r.l.Error("Failed to prepare query", logger.Error(err))
		return fmt.Errorf("failed to prepare query: %w", err)
	}
	defer stmt.Close()

	err = stmt.QueryRowxContext(ctx, token).Scan(&token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("refresh token %s: %w", token.ID, ErrDuplicate)
		}
		r.l.Error("Failed to execute insert query", logger.Error(err))
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}

	r.l.Debug("Refresh token created", logger.String("id", token.ID), logger.String("user_id", token.UserID))
	return nil
}

func (r *refreshTokenRepo) GetByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, issued_ip, user_agent, expires_at, revoked, created_at, updated_at
		FROM refresh_tokens
		WHERE id = $1`

	token := &models.RefreshToken{}
	err := r.db.GetContext(ctx, token, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh token with id %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return token, nil
}

func (r *refreshTokenRepo) Revoke(ctx context.Context, id string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, updated_at = NOW()
		WHERE id = $1 AND revoked = false`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		r.l.Error("Failed to revoke token", logger.Error(err), logger.String("token_id", id))
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("refresh token %s: %w", id, ErrTokenNotActive)
	}

	r.l.Debug("Refresh token revoked", logger.String("token_id", id))
	return nil
}

func (r *refreshTokenRepo) RevokeAllByUserID(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, updated_at = NOW()
		WHERE user_id = $1 AND revoked = false`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke tokens for user %s: %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.l.Info("Refresh tokens revoked for user", logger.String("user_id", userID), logger.Int64("count", rowsAffected))
	return rowsAffected, nil
}

func (r *refreshTokenRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM refresh_tokens WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		r.l.Error("Failed to delete token", logger.Error(err), logger.String("token_id", id))
		return fmt.Errorf("failed to delete token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("refresh token %s: %w", id, ErrNotFound)
	}

	return nil
}

func (r *refreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at <= $1`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
