package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/google/uuid"
)

const LockPrefix = "lock:"

var ErrLockHeld = errors.New("lock is held")

// Locker hands out short exclusive leases on cache keys. A lease expires on its own after ttl, so a
// holder that dies keeps others out for at most that long.
type Locker struct {
	cache Cache
	ttl   time.Duration
	newID func() string
	l     logger.Logger
}

func NewLocker(c Cache, ttl time.Duration, l logger.Logger) *Locker {
	return &Locker{cache: c, ttl: ttl, newID: uuid.NewString, l: l}
}

// Lease is one acquired lock.
type Lease struct {
	locker *Locker
	key    string
	owner  string
}

// TryLock takes the lease on name, or fails with ErrLockHeld when someone else holds it.
func (lk *Locker) TryLock(ctx context.Context, name string) (*Lease, error) {
	key := LockPrefix + name
	owner := lk.newID()

	ok, err := lk.cache.SetNX(ctx, key, owner, lk.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrLockHeld)
	}
	return &Lease{locker: lk, key: key, owner: owner}, nil
}

// Unlock releases the lease. A lease that already expired and was taken over is left to its new owner.
func (ls *Lease) Unlock(ctx context.Context) error {
	owner, err := ls.locker.cache.Get(ctx, ls.key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil
		}
		return err
	}
	if owner != ls.owner {
		ls.locker.l.Debug("Lease expired before unlock", logger.String("key", ls.key))
		return nil
	}
	return ls.locker.cache.Delete(ctx, ls.key)
}
