package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/cache"
	"github.com/AtoyanMikhail/authgate/internal/config"
	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
	"github.com/AtoyanMikhail/authgate/internal/token"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_RoundTrip(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	alice := e.createUser(t, "alice", "Abcdefg1")
	issued := e.issue(t, alice)
	sink := &recordingSink{}

	id, err := e.gate.VerifyRequest(context.Background(), request(issued), sink)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, id.UserID)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, issued.TokenID, id.RefreshTokenID)
	assert.Equal(t, issued.AccessToken, id.AccessToken)
	assert.False(t, id.Rotated)
	assert.Zero(t, sink.writes)
	assert.Equal(t, 1, e.recorder.decision(OutcomeAuthorized))
}

func TestGate_MissingTokens(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	issued := e.issue(t, e.createUser(t, "alice", "Abcdefg1"))

	tests := []struct {
		name   string
		tokens SessionTokens
	}{
		{name: "none", tokens: SessionTokens{}},
		{name: "access only", tokens: SessionTokens{AccessToken: issued.AccessToken}},
		{name: "refresh only", tokens: SessionTokens{RefreshToken: issued.RefreshToken}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.gate.VerifyRequest(context.Background(), Request{SessionTokens: tt.tokens}, &recordingSink{})
			assert.ErrorIs(t, err, ErrMissingToken)
		})
	}
	assert.Equal(t, len(tests), e.recorder.decision(OutcomeRejected))
}

func TestGate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		build   func(t *testing.T, e *testEnv) Request
		wantErr error
	}{
		{
			name: "blacklisted access token",
			build: func(t *testing.T, e *testEnv) Request {
				issued := e.issue(t, e.createUser(t, "alice", "Abcdefg1"))
				require.NoError(t, e.blacklist.Add(context.Background(), issued.AccessToken))
				return request(issued)
			},
			wantErr: ErrRevokedToken,
		},
		{
			name: "expired refresh dominates a fresh access token",
			build: func(t *testing.T, e *testEnv) Request {
				alice := e.createUser(t, "alice", "Abcdefg1")
				issued := e.issue(t, alice)
				stale, _, err := e.tokens.SignRefresh(alice.ID, issued.TokenID, token.Fingerprint(issued.AccessToken),
					e.clock.Now().Add(-testRefreshTTL-time.Second))
				require.NoError(t, err)
				req := request(issued)
				req.RefreshToken = stale
				return req
			},
			wantErr: ErrExpiredRefresh,
		},
		{
			name: "refresh token signed with the access secret",
			build: func(t *testing.T, e *testEnv) Request {
				issued := e.issue(t, e.createUser(t, "alice", "Abcdefg1"))
				req := request(issued)
				req.RefreshToken = issued.AccessToken
				return req
			},
			wantErr: ErrExpiredRefresh,
		},
		{
			name: "access token from another issuer",
			build: func(t *testing.T, e *testEnv) Request {
				alice := e.createUser(t, "alice", "Abcdefg1")
				issued := e.issue(t, alice)
				foreign := newTestManager(t, e.clock.Now, "other-access-secret")
				forged, _, err := foreign.SignAccess(token.AccessSubject{UserID: alice.ID}, issued.TokenID, e.clock.Now())
				require.NoError(t, err)
				req := request(issued)
				req.AccessToken = forged
				return req
			},
			wantErr: ErrMalformedToken,
		},
		{
			name: "tokens of different users",
			build: func(t *testing.T, e *testEnv) Request {
				alice := e.issue(t, e.createUser(t, "alice", "Abcdefg1"))
				bob := e.issue(t, e.createUser(t, "bob", "Abcdefg1"))
				return Request{SessionTokens: SessionTokens{AccessToken: alice.AccessToken, RefreshToken: bob.RefreshToken}}
			},
			wantErr: ErrUserMismatch,
		},
		{
			name: "fresh access with a rotated refresh token",
			build: func(t *testing.T, e *testEnv) Request {
				issued := e.issue(t, e.createUser(t, "alice", "Abcdefg1"))
				_, err := e.service.Refresh(context.Background(), issued.RefreshToken, ClientInfo{}, &recordingSink{})
				require.NoError(t, err)
				return request(issued)
			},
			wantErr: ErrRevokedToken,
		},
		{
			name: "fresh access of a session ended by logout-all elsewhere",
			build: func(t *testing.T, e *testEnv) Request {
				alice := e.createUser(t, "alice", "Abcdefg1")
				laptop := e.issue(t, alice)
				phone := e.issue(t, alice)
				ok, err := e.revoker.LogoutAll(context.Background(), request(phone).SessionTokens, &recordingSink{})
				require.NoError(t, err)
				require.True(t, ok)
				return request(laptop)
			},
			wantErr: ErrRevokedToken,
		},
		{
			name: "fresh access whose refresh record was purged",
			build: func(t *testing.T, e *testEnv) Request {
				issued := e.issue(t, e.createUser(t, "alice", "Abcdefg1"))
				require.NoError(t, e.records.Delete(context.Background(), issued.TokenID))
				return request(issued)
			},
			wantErr: ErrExpiredRefresh,
		},
		{
			name: "expired access with a consumed refresh token",
			build: func(t *testing.T, e *testEnv) Request {
				issued := e.issue(t, e.createUser(t, "alice", "Abcdefg1"))
				require.NoError(t, e.records.Revoke(context.Background(), issued.TokenID))
				e.clock.Advance(testAccessTTL + time.Minute)
				return request(issued)
			},
			wantErr: ErrRevokedToken,
		},
		{
			name: "expired access whose user was deleted",
			build: func(t *testing.T, e *testEnv) Request {
				alice := e.createUser(t, "alice", "Abcdefg1")
				issued := e.issue(t, alice)
				e.store.DeleteUser(alice.ID)
				e.clock.Advance(testAccessTTL + time.Minute)
				return request(issued)
			},
			wantErr: ErrUserGone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, GateConfig{})
			req := tt.build(t, e)
			sink := &recordingSink{}

			id, err := e.gate.VerifyRequest(context.Background(), req, sink)
			assert.Nil(t, id)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsUnauthorized(err))
			assert.Empty(t, sink.access)
			assert.Equal(t, 1, e.recorder.decision(OutcomeRejected))
		})
	}
}

func TestGate_TransparentRotation(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	alice := e.createUser(t, "alice", "Abcdefg1")
	issued := e.issue(t, alice)
	ctx := context.Background()

	e.clock.Advance(testAccessTTL + time.Minute)
	sink := &recordingSink{}

	id, err := e.gate.VerifyRequest(ctx, request(issued), sink)
	require.NoError(t, err)
	assert.True(t, id.Rotated)
	assert.Equal(t, alice.ID, id.UserID)
	assert.NotEqual(t, issued.AccessToken, id.AccessToken)
	assert.NotEqual(t, issued.TokenID, id.RefreshTokenID)
	assert.Equal(t, id.AccessToken, sink.access, "new access token goes out in the response")
	assert.NotEmpty(t, sink.refresh)
	assert.Equal(t, 1, e.recorder.decision(OutcomeRotated))

	// the replacement pair works without another rotation
	next, err := e.gate.VerifyRequest(ctx, Request{SessionTokens: SessionTokens{
		AccessToken:  sink.access,
		RefreshToken: sink.refresh,
	}}, &recordingSink{})
	require.NoError(t, err)
	assert.False(t, next.Rotated)

	// the original pair is spent
	_, err = e.gate.VerifyRequest(ctx, request(issued), &recordingSink{})
	assert.ErrorIs(t, err, ErrRevokedToken)
	_, err = e.service.Refresh(ctx, issued.RefreshToken, ClientInfo{}, &recordingSink{})
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestGate_Fingerprint(t *testing.T) {
	tests := []struct {
		name    string
		enforce bool
		pair    bool
		wantErr error
	}{
		{name: "unenforced, mismatched pair", enforce: false, pair: false},
		{name: "unenforced, matching pair", enforce: false, pair: true},
		{name: "enforced, mismatched pair", enforce: true, pair: false, wantErr: ErrFingerprintMismatch},
		{name: "enforced, matching pair", enforce: true, pair: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, GateConfig{EnforceFingerprint: tt.enforce})
			alice := e.createUser(t, "alice", "Abcdefg1")
			first := e.issue(t, alice)
			second := e.issue(t, alice)

			req := request(first)
			if !tt.pair {
				req.RefreshToken = second.RefreshToken
			}

			id, err := e.gate.VerifyRequest(context.Background(), req, &recordingSink{})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, alice.ID, id.UserID)
		})
	}
}

type unavailableUsers struct {
	models.UserRepository
}

func (unavailableUsers) GetByID(context.Context, string) (*models.User, error) {
	return nil, errors.New("connection refused")
}

func TestGate_RotationInfrastructureFailureIsUnauthorized(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	issued := e.issue(t, e.createUser(t, "alice", "Abcdefg1"))
	rotator := NewRotator(e.records, unavailableUsers{e.users}, e.issuer, e.locks, e.recorder, logger.NewNop())
	gate := NewGate(GateConfig{}, e.tokens, e.blacklist, e.records, rotator, e.recorder, logger.NewNop())

	e.clock.Advance(testAccessTTL + time.Minute)
	sink := &recordingSink{}

	id, err := gate.VerifyRequest(context.Background(), request(issued), sink)
	assert.Nil(t, id)
	assert.ErrorIs(t, err, ErrRotationFailed)
	assert.True(t, IsUnauthorized(err))
	assert.Zero(t, sink.writes)
	assert.Equal(t, 1, e.recorder.decision(OutcomeRejected))
	assert.Equal(t, 1, e.recorder.rotation(RotationFailed))

	record, err := e.records.GetByID(context.Background(), issued.TokenID)
	require.NoError(t, err)
	assert.False(t, record.Revoked, "the session survives for a retry")
}

type failingBlacklist struct{}

func (failingBlacklist) BlacklistToken(context.Context, string, time.Time) error {
	return errors.New("blacklist down")
}

func (failingBlacklist) IsTokenBlacklisted(context.Context, string) (bool, error) {
	return false, errors.New("blacklist down")
}

func TestGate_BlacklistFailureIsNotAnAuthDecision(t *testing.T) {
	e := newTestEnvWithBlacklist(t, GateConfig{}, func(func() time.Time) cache.TokenBlacklist {
		return failingBlacklist{}
	})
	issued := e.issue(t, e.createUser(t, "alice", "Abcdefg1"))

	_, err := e.gate.VerifyRequest(context.Background(), request(issued), &recordingSink{})
	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
	assert.Equal(t, 1, e.recorder.decision(OutcomeError))
}

func TestGate_BlacklistSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	redisCfg := config.RedisConfig{Addr: mr.Addr()}
	newRedisBlacklist := func(now func() time.Time) cache.TokenBlacklist {
		c, err := cache.NewRedisCache(redisCfg, logger.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return cache.NewTokenBlacklist(c, logger.NewNop(), now)
	}

	e := newTestEnvWithBlacklist(t, GateConfig{}, newRedisBlacklist)
	issued := e.issue(t, e.createUser(t, "alice", "Abcdefg1"))
	ctx := context.Background()

	ok, err := e.revoker.Logout(ctx, SessionTokens{AccessToken: issued.AccessToken, RefreshToken: issued.RefreshToken}, &recordingSink{})
	require.NoError(t, err)
	require.True(t, ok)

	// a new process: fresh redis connection, fresh blacklist and gate over the same durable state
	blacklist := NewBlacklist(newRedisBlacklist(e.clock.Now), e.tokens, logger.NewNop())
	restarted := NewGate(GateConfig{}, e.tokens, blacklist, e.records, e.rotator, nil, logger.NewNop())

	_, err = restarted.VerifyRequest(ctx, request(issued), &recordingSink{})
	assert.ErrorIs(t, err, ErrRevokedToken)

	listed, err := blacklist.IsBlacklisted(ctx, issued.AccessToken)
	require.NoError(t, err)
	assert.True(t, listed)

	mr.FastForward(testAccessTTL)
	e.clock.Advance(testAccessTTL)

	listed, err = blacklist.IsBlacklisted(ctx, issued.AccessToken)
	require.NoError(t, err)
	assert.False(t, listed, "entries leave the blacklist at the token's own exp")
}

func TestGate_VerifyHandshake(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	alice := e.createUser(t, "alice", "Abcdefg1")
	issued := e.issue(t, alice)
	ctx := context.Background()

	session, err := e.gate.VerifyHandshake(ctx, issued.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, &Session{UserID: alice.ID, RefreshTokenID: issued.TokenID}, session)

	_, err = e.gate.VerifyHandshake(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = e.gate.VerifyHandshake(ctx, issued.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredRefresh)

	require.NoError(t, e.records.Revoke(ctx, issued.TokenID))
	_, err = e.gate.VerifyHandshake(ctx, issued.RefreshToken)
	assert.ErrorIs(t, err, ErrRevokedToken)

	other := e.issue(t, alice)
	e.clock.Advance(testRefreshTTL + time.Second)
	_, err = e.gate.VerifyHandshake(ctx, other.RefreshToken)
	assert.ErrorIs(t, err, ErrExpiredRefresh)
}
