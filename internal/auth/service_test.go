package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Register(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	ctx := context.Background()
	sink := &recordingSink{}

	issued, err := e.service.Register(ctx, RegisterInput{
		DisplayName: " Alice ",
		Email:       " Alice@Example.COM ",
		Username:    "alice",
		Password:    "Abcdefg1",
	}, ClientInfo{IP: "10.0.0.1"}, sink)
	require.NoError(t, err)
	assert.EqualValues(t, 900, issued.ExpiresIn)
	assert.Equal(t, "Bearer", issued.TokenType)
	assert.Equal(t, issued.RefreshToken, sink.refresh)

	user, err := e.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)
	assert.Equal(t, issued.UserID, user.ID)
	assert.NotEqual(t, "Abcdefg1", user.PasswordHash)

	ok, err := e.hasher.Verify("Abcdefg1", user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.service.Register(ctx, RegisterInput{
		DisplayName: "Impostor",
		Email:       "ALICE@example.com",
		Username:    "alice2",
		Password:    "Abcdefg1",
	}, ClientInfo{}, &recordingSink{})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestService_Login(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	ctx := context.Background()
	_, err := e.service.Register(ctx, RegisterInput{
		DisplayName: "Alice", Email: "alice@example.com", Username: "alice", Password: "Abcdefg1",
	}, ClientInfo{}, &recordingSink{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		creds   Credentials
		wantErr error
	}{
		{name: "by username", creds: Credentials{Username: "alice", Password: "Abcdefg1"}},
		{name: "by email", creds: Credentials{Email: "Alice@example.com", Password: "Abcdefg1"}},
		{name: "wrong password", creds: Credentials{Username: "alice", Password: "nope"}, wantErr: ErrInvalidCredentials},
		{name: "unknown user", creds: Credentials{Username: "bob", Password: "Abcdefg1"}, wantErr: ErrInvalidCredentials},
		{name: "no identifier", creds: Credentials{Password: "Abcdefg1"}, wantErr: ErrMissingCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			issued, err := e.service.Login(ctx, tt.creds, ClientInfo{}, sink)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, sink.writes)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, issued.AccessToken)
			assert.Equal(t, issued.RefreshToken, sink.refresh)
		})
	}
}

func TestService_Refresh(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	alice := e.createUser(t, "alice", "Abcdefg1")
	issued := e.issue(t, alice)
	ctx := context.Background()

	_, err := e.service.Refresh(ctx, "", ClientInfo{}, &recordingSink{})
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = e.service.Refresh(ctx, "garbage", ClientInfo{}, &recordingSink{})
	assert.ErrorIs(t, err, ErrExpiredRefresh)

	e.clock.Advance(time.Hour)
	sink := &recordingSink{}
	rotated, err := e.service.Refresh(ctx, issued.RefreshToken, ClientInfo{}, sink)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, rotated.UserID)
	assert.Equal(t, rotated.RefreshToken, sink.refresh)

	_, err = e.service.Refresh(ctx, issued.RefreshToken, ClientInfo{}, &recordingSink{})
	assert.ErrorIs(t, err, ErrRevokedToken)

	e.clock.Advance(testRefreshTTL)
	_, err = e.service.Refresh(ctx, rotated.RefreshToken, ClientInfo{}, &recordingSink{})
	assert.ErrorIs(t, err, ErrExpiredRefresh)
}

func TestService_Me(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	alice := e.createUser(t, "alice", "Abcdefg1")
	ctx := context.Background()

	user, err := e.service.Me(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.PasswordHash)

	e.store.DeleteUser(alice.ID)
	_, err = e.service.Me(ctx, alice.ID)
	assert.ErrorIs(t, err, ErrUserGone)
}
