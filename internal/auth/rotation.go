package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/cache"
	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/repository"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
)

// Rotator replaces a presented refresh token with a new pair. The replacement is persisted before the
// presented record is revoked, and the revoke is a conditional write: of several concurrent rotations
// of one token exactly one wins, and a failure before the revoke leaves the old token usable.
// With a Locker, concurrent rotations of one token after the first give up before minting anything.
type Rotator struct {
	records  models.RefreshTokenRepository
	users    models.UserRepository
	issuer   *Issuer
	locks    *cache.Locker
	now      func() time.Time
	recorder Recorder
	l        logger.Logger
}

func NewRotator(
	records models.RefreshTokenRepository,
	users models.UserRepository,
	issuer *Issuer,
	locks *cache.Locker,
	recorder Recorder,
	l logger.Logger,
) *Rotator {
	return &Rotator{
		records:  records,
		users:    users,
		issuer:   issuer,
		locks:    locks,
		now:      issuer.now,
		recorder: orNop(recorder),
		l:        l,
	}
}

// Rotate consumes the refresh record tokenID owned by userID and issues a new pair. The refresh cookie
// is written only when this call wins the revoke.
func (r *Rotator) Rotate(ctx context.Context, tokenID, userID string, client ClientInfo, sink ResponseSink) (*IssuedTokens, error) {
	unlock, err := r.lock(ctx, tokenID)
	if err != nil {
		r.recorder.Rotation(RotationLostRace)
		return nil, err
	}
	defer unlock()

	issued, err := r.rotate(ctx, tokenID, userID, client)
	switch {
	case err == nil:
		r.recorder.Rotation(RotationSuccess)
	case errors.Is(err, ErrRevokedToken):
		r.recorder.Rotation(RotationLostRace)
		return nil, err
	default:
		r.recorder.Rotation(RotationFailed)
		return nil, err
	}

	sink.SetRefreshCookie(issued.RefreshToken, r.issuer.tokens.RefreshTTL())
	r.l.Info("Refresh token rotated",
		logger.String("user_id", userID),
		logger.String("old_token_id", tokenID),
		logger.String("new_token_id", issued.TokenID))
	return issued, nil
}

// lock takes the rotation lease of tokenID. A lease held elsewhere fails with ErrRevokedToken. When the
// lock backend is down the rotation goes ahead, since the conditional revoke still picks one winner.
func (r *Rotator) lock(ctx context.Context, tokenID string) (func(), error) {
	if r.locks == nil {
		return func() {}, nil
	}

	lease, err := r.locks.TryLock(ctx, rotationLockName(tokenID))
	switch {
	case errors.Is(err, cache.ErrLockHeld):
		return nil, fmt.Errorf("%w: rotation of %s already in progress", ErrRevokedToken, tokenID)
	case err != nil:
		r.l.Warn("Rotation lock unavailable", logger.String("token_id", tokenID), logger.Error(err))
		return func() {}, nil
	}

	return func() {
		if err := lease.Unlock(context.WithoutCancel(ctx)); err != nil {
			r.l.Warn("Failed to release rotation lock", logger.String("token_id", tokenID), logger.Error(err))
		}
	}, nil
}

func rotationLockName(tokenID string) string {
	return "rotation:" + tokenID
}

func (r *Rotator) rotate(ctx context.Context, tokenID, userID string, client ClientInfo) (*IssuedTokens, error) {
	record, err := r.records.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: no record %s", ErrExpiredRefresh, tokenID)
		}
		return nil, err
	}
	if record.Revoked {
		return nil, fmt.Errorf("%w: refresh token %s", ErrRevokedToken, tokenID)
	}
	if !record.Active(r.now()) {
		return nil, fmt.Errorf("%w: record %s past expiry", ErrExpiredRefresh, tokenID)
	}
	if record.UserID != userID {
		return nil, fmt.Errorf("%w: record owner differs from token subject", ErrUserMismatch)
	}

	user, err := r.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserGone, record.UserID)
		}
		return nil, err
	}

	issued, err := r.issuer.mint(ctx, user, client)
	if err != nil {
		return nil, err
	}

	if err := r.records.Revoke(ctx, tokenID); err != nil {
		if delErr := r.records.Delete(ctx, issued.TokenID); delErr != nil {
			r.l.Error("Failed to discard replacement refresh token",
				logger.String("token_id", issued.TokenID),
				logger.Error(delErr))
		}
		if errors.Is(err, repository.ErrTokenNotActive) {
			return nil, fmt.Errorf("%w: refresh token %s already consumed", ErrRevokedToken, tokenID)
		}
		return nil, err
	}

	return issued, nil
}
