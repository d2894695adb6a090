package models

import (
	"context"
	"time"
)

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByID(ctx context.Context, id string) (*RefreshToken, error)
	// Revoke flips revoked from false to true in one conditional write. It fails with
	// repository.ErrTokenNotActive when the record is missing or already revoked, so at most one
	// concurrent caller can revoke a given token.
	Revoke(ctx context.Context, id string) error
	RevokeAllByUserID(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}
