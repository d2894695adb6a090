package auth

import (
	"context"
	"testing"

	"github.com/AtoyanMikhail/authgate/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_Issue(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	alice := e.createUser(t, "alice", "Abcdefg1")
	sink := &recordingSink{}

	issued, err := e.issuer.Issue(context.Background(), alice, ClientInfo{IP: "192.0.2.7", UserAgent: "curl/8"}, sink)
	require.NoError(t, err)

	assert.Equal(t, "Bearer", issued.TokenType)
	assert.EqualValues(t, 900, issued.ExpiresIn)
	assert.Equal(t, issued.RefreshToken, sink.refresh)
	assert.Equal(t, testRefreshTTL, sink.refreshMaxAge)
	assert.Empty(t, sink.access, "issuing does not touch the auth header")

	access, err := e.tokens.ParseAccess(issued.AccessToken, true)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, access.Subject)
	assert.Equal(t, issued.TokenID, access.Data)
	assert.Equal(t, "alice", access.Username)
	assert.Equal(t, "alice@example.com", access.Email)

	refresh, err := e.tokens.ParseRefresh(issued.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, issued.TokenID, refresh.ID)
	assert.Equal(t, alice.ID, refresh.Subject)
	assert.Equal(t, token.Fingerprint(issued.AccessToken), refresh.Fingerprint)

	record, err := e.records.GetByID(context.Background(), issued.TokenID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, record.UserID)
	assert.Equal(t, "192.0.2.7", record.IssuedIP)
	assert.Equal(t, "curl/8", record.UserAgent)
	assert.Equal(t, e.clock.Now().Add(testRefreshTTL), record.ExpiresAt)
	assert.False(t, record.Revoked)
}

func TestIssuer_UniqueTokenIDs(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	alice := e.createUser(t, "alice", "Abcdefg1")

	first := e.issue(t, alice)
	second := e.issue(t, alice)
	assert.NotEqual(t, first.TokenID, second.TokenID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestIssuer_PersistFailureWritesNothing(t *testing.T) {
	e := newTestEnv(t, GateConfig{})
	alice := e.createUser(t, "alice", "Abcdefg1")
	e.issuer.newID = func() string { return "fixed" }

	e.issue(t, alice)

	sink := &recordingSink{}
	_, err := e.issuer.Issue(context.Background(), alice, ClientInfo{}, sink)
	assert.ErrorContains(t, err, "failed to persist refresh token")
	assert.Zero(t, sink.writes)
}
