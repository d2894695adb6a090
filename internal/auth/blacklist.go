package auth

import (
	"context"
	"fmt"

	"github.com/AtoyanMikhail/authgate/internal/cache"
	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/token"
)

// Blacklist holds access tokens that were invalidated before their natural expiry. Entries live in the
// backend until the token's own exp and are never removed earlier.
type Blacklist struct {
	backend cache.TokenBlacklist
	tokens  *token.Manager
	l       logger.Logger
}

func NewBlacklist(backend cache.TokenBlacklist, tokens *token.Manager, l logger.Logger) *Blacklist {
	return &Blacklist{backend: backend, tokens: tokens, l: l}
}

// Add decodes the access token ignoring expiry to recover exp, then records it until that instant.
func (b *Blacklist) Add(ctx context.Context, accessToken string) error {
	claims, err := b.tokens.ParseAccess(accessToken, false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: no exp claim", ErrMalformedToken)
	}
	return b.backend.BlacklistToken(ctx, accessToken, claims.ExpiresAt.Time)
}

func (b *Blacklist) IsBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	return b.backend.IsTokenBlacklisted(ctx, accessToken)
}
