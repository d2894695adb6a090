package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/logger"
)

const TokenBlacklistPrefix = "blacklist:token:"

type tokenBlacklist struct {
	cache  Cache
	logger logger.Logger
	now    func() time.Time
}

// NewTokenBlacklist stores blacklist entries in the given cache, one key per token.
func NewTokenBlacklist(cache Cache, l logger.Logger, now func() time.Time) TokenBlacklist {
	if now == nil {
		now = time.Now
	}
	return &tokenBlacklist{
		cache:  cache,
		logger: l,
		now:    now,
	}
}

// blacklistKey hashes the token so raw credentials never land in the cache.
func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return TokenBlacklistPrefix + hex.EncodeToString(sum[:])
}

// BlacklistToken blacklists token until expiresAt.
func (b *tokenBlacklist) BlacklistToken(ctx context.Context, token string, expiresAt time.Time) error {
	key := blacklistKey(token)
	ttl := expiresAt.Sub(b.now())

	if ttl <= 0 {
		b.logger.Debug("Token already expired, not adding to blacklist",
			logger.String("key", key))
		return nil
	}

	err := b.cache.Set(ctx, key, expiresAt.UTC().Format(time.RFC3339), ttl)
	if err != nil {
		b.logger.Error("Failed to blacklist token",
			logger.String("key", key),
			logger.Error(err))
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	b.logger.Info("Token blacklisted",
		logger.String("key", key),
		logger.Duration("ttl", ttl))

	return nil
}

// IsTokenBlacklisted checks whether the token is blacklisted
func (b *tokenBlacklist) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	key := blacklistKey(token)

	exists, err := b.cache.Exists(ctx, key)
	if err != nil {
		b.logger.Error("Failed to check token blacklist status",
			logger.String("key", key),
			logger.Error(err))
		return false, fmt.Errorf("failed to check token blacklist status: %w", err)
	}

	return exists, nil
}
