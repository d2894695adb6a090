package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/repository/models"
)

// MemoryStore keeps users and refresh-token records in process memory. It backs the "memory" storage
// driver and the service tests; every method is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:    now,
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

// RefreshTokens exposes the store as a refresh-token repository.
func (s *MemoryStore) RefreshTokens() models.RefreshTokenRepository { return memoryTokens{s} }

// Users exposes the store as a user directory.
func (s *MemoryStore) Users() models.UserRepository { return memoryUsers{s} }

type memoryTokens struct{ s *MemoryStore }

func (m memoryTokens) Create(_ context.Context, token *models.RefreshToken) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.tokens[token.ID]; ok {
		return fmt.Errorf("refresh token %s: %w", token.ID, ErrDuplicate)
	}
	now := m.s.now()
	token.CreatedAt = now
	token.UpdatedAt = &now
	stored := *token
	m.s.tokens[token.ID] = &stored
	return nil
}

func (m memoryTokens) GetByID(_ context.Context, id string) (*models.RefreshToken, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	token, ok := m.s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("refresh token with id %s: %w", id, ErrNotFound)
	}
	out := *token
	return &out, nil
}

func (m memoryTokens) Revoke(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	token, ok := m.s.tokens[id]
	if !ok || token.Revoked {
		return fmt.Errorf("refresh token %s: %w", id, ErrTokenNotActive)
	}
	now := m.s.now()
	token.Revoked = true
	token.UpdatedAt = &now
	return nil
}

func (m memoryTokens) RevokeAllByUserID(_ context.Context, userID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var n int64
	now := m.s.now()
	for _, token := range m.s.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			token.UpdatedAt = &now
			n++
		}
	}
	return n, nil
}

func (m memoryTokens) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.tokens[id]; !ok {
		return fmt.Errorf("refresh token %s: %w", id, ErrNotFound)
	}
	delete(m.s.tokens, id)
	return nil
}

func (m memoryTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var n int64
	for id, token := range m.s.tokens {
		if !token.ExpiresAt.After(before) {
			delete(m.s.tokens, id)
			n++
		}
	}
	return n, nil
}

func (memoryTokens) Ping(context.Context) error { return nil }
func (memoryTokens) Close() error               { return nil }

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user *models.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for _, existing := range m.s.users {
		if existing.ID == user.ID ||
			strings.EqualFold(existing.Email, user.Email) ||
			existing.Username == user.Username {
			return fmt.Errorf("user %s: %w", user.Username, ErrDuplicate)
		}
	}
	now := m.s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	m.s.users[user.ID] = &stored
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	return m.find(id, func(u *models.User) bool { return u.ID == id })
}

func (m memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(email, func(u *models.User) bool { return u.Email == email })
}

func (m memoryUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return m.find(username, func(u *models.User) bool { return u.Username == username })
}

func (m memoryUsers) find(key string, match func(*models.User) bool) (*models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	for _, u := range m.s.users {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", key, ErrNotFound)
}

// DeleteUser removes a user from the directory. The refresh tokens of that user are left in place,
// which is what a deleted account looks like to the rotation engine.
func (s *MemoryStore) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}
