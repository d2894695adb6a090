package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/cache"
	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/repository"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
	"github.com/AtoyanMikhail/authgate/internal/token"
	"github.com/stretchr/testify/require"
)

const (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 7 * 24 * time.Hour

	testRotationLockTTL = 10 * time.Second
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingSink struct {
	mu             sync.Mutex
	refresh        string
	refreshMaxAge  time.Duration
	refreshCleared bool
	access         string
	accessCleared  bool
	writes         int
}

func (s *recordingSink) SetRefreshCookie(refreshToken string, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = refreshToken
	s.refreshMaxAge = maxAge
	s.writes++
}

func (s *recordingSink) ClearRefreshCookie() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = ""
	s.refreshCleared = true
}

func (s *recordingSink) SetAccessToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = accessToken
	s.writes++
}

func (s *recordingSink) ClearAccessToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.accessCleared = true
}

type countingRecorder struct {
	mu        sync.Mutex
	decisions map[string]int
	rotations map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{decisions: map[string]int{}, rotations: map[string]int{}}
}

func (r *countingRecorder) GateDecision(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions[outcome]++
}

func (r *countingRecorder) Rotation(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rotations[result]++
}

func (r *countingRecorder) decision(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions[outcome]
}

func (r *countingRecorder) rotation(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotations[result]
}

type testEnv struct {
	clock     *testClock
	store     *repository.MemoryStore
	records   models.RefreshTokenRepository
	users     models.UserRepository
	tokens    *token.Manager
	hasher    *Argon2Hasher
	issuer    *Issuer
	blacklist *Blacklist
	locks     *cache.Locker
	rotator   *Rotator
	revoker   *Revoker
	gate      *Gate
	service   *Service
	recorder  *countingRecorder
}

func cheapHasher() *Argon2Hasher {
	return &Argon2Hasher{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}
}

func newTestManager(t *testing.T, now func() time.Time, accessSecret string) *token.Manager {
	t.Helper()
	m, err := token.NewManager(token.Config{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     testAccessTTL,
		RefreshTTL:    testRefreshTTL,
		Now:           now,
	})
	require.NoError(t, err)
	return m
}

func newTestEnv(t *testing.T, cfg GateConfig) *testEnv {
	return newTestEnvWithBlacklist(t, cfg, func(now func() time.Time) cache.TokenBlacklist {
		return cache.NewTokenBlacklist(cache.NewMemoryCache(now), logger.NewNop(), now)
	})
}

// newTestEnvWithBlacklist builds every component over the in-memory store and the blacklist backend
// returned by newBackend.
func newTestEnvWithBlacklist(t *testing.T, cfg GateConfig, newBackend func(now func() time.Time) cache.TokenBlacklist) *testEnv {
	t.Helper()

	l := logger.NewNop()
	clock := newTestClock()
	store := repository.NewMemoryStore(clock.Now)
	tokens := newTestManager(t, clock.Now, "access-secret")
	backend := newBackend(clock.Now)

	e := &testEnv{
		clock:    clock,
		store:    store,
		records:  store.RefreshTokens(),
		users:    store.Users(),
		tokens:   tokens,
		hasher:   cheapHasher(),
		recorder: newCountingRecorder(),
	}
	e.issuer = NewIssuer(tokens, e.records, clock.Now, l)
	e.blacklist = NewBlacklist(backend, tokens, l)
	e.locks = cache.NewLocker(cache.NewMemoryCache(clock.Now), testRotationLockTTL, l)
	e.rotator = NewRotator(e.records, e.users, e.issuer, e.locks, e.recorder, l)
	e.revoker = NewRevoker(tokens, e.records, e.blacklist, l)
	e.gate = NewGate(cfg, tokens, e.blacklist, e.records, e.rotator, e.recorder, l)
	e.service = NewService(e.users, e.hasher, e.issuer, e.rotator, tokens, l)
	return e
}

var userSeq int64

func (e *testEnv) createUser(t *testing.T, username, password string) *models.User {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)

	user := &models.User{
		ID:           fmt.Sprintf("user-%d", atomic.AddInt64(&userSeq, 1)),
		DisplayName:  username,
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: hash,
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

// issue signs a user in and returns the pair as the client would hold it.
func (e *testEnv) issue(t *testing.T, user *models.User) *IssuedTokens {
	t.Helper()
	issued, err := e.issuer.Issue(context.Background(), user, ClientInfo{IP: "10.0.0.1", UserAgent: "test"}, &recordingSink{})
	require.NoError(t, err)
	return issued
}

func request(issued *IssuedTokens) Request {
	return Request{
		SessionTokens: SessionTokens{AccessToken: issued.AccessToken, RefreshToken: issued.RefreshToken},
		Client:        ClientInfo{IP: "10.0.0.1", UserAgent: "test"},
	}
}
