package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/repository"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
	"github.com/AtoyanMikhail/authgate/internal/token"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID         string
	Username       string
	Email          string
	RefreshTokenID string
	// AccessToken is the token the request is authorized with, the replacement one after a rotation.
	AccessToken string
	Rotated     bool
}

// Session is what a WebSocket connection is bound to after its handshake.
type Session struct {
	UserID         string `json:"userId"`
	RefreshTokenID string `json:"refreshTokenId"`
}

// Request carries the credentials extracted by the transport.
type Request struct {
	SessionTokens
	Client ClientInfo
}

// SessionVerifier is shared by the HTTP middleware and the WebSocket handshake.
type SessionVerifier interface {
	VerifyRequest(ctx context.Context, req Request, sink ResponseSink) (*Identity, error)
	VerifyHandshake(ctx context.Context, refreshToken string) (*Session, error)
}

type GateConfig struct {
	// EnforceFingerprint rejects requests whose refresh token was not issued together with the
	// presented access token.
	EnforceFingerprint bool
}

type Gate struct {
	cfg       GateConfig
	tokens    *token.Manager
	blacklist *Blacklist
	records   models.RefreshTokenRepository
	rotator   *Rotator
	recorder  Recorder
	l         logger.Logger
}

var _ SessionVerifier = (*Gate)(nil)

func NewGate(
	cfg GateConfig,
	tokens *token.Manager,
	blacklist *Blacklist,
	records models.RefreshTokenRepository,
	rotator *Rotator,
	recorder Recorder,
	l logger.Logger,
) *Gate {
	return &Gate{
		cfg:       cfg,
		tokens:    tokens,
		blacklist: blacklist,
		records:   records,
		rotator:   rotator,
		recorder:  orNop(recorder),
		l:         l,
	}
}

// VerifyRequest authenticates a protected request. An expired but otherwise valid access token is
// rotated transparently: the new access token goes to sink and is returned in the Identity.
func (g *Gate) VerifyRequest(ctx context.Context, req Request, sink ResponseSink) (*Identity, error) {
	id, err := g.verify(ctx, req, sink)
	switch {
	case err == nil && id.Rotated:
		g.recorder.GateDecision(OutcomeRotated)
	case err == nil:
		g.recorder.GateDecision(OutcomeAuthorized)
	case IsUnauthorized(err):
		g.recorder.GateDecision(OutcomeRejected)
		g.l.Warn("Request rejected by auth gate",
			logger.String("reason", err.Error()),
			logger.String("ip", req.Client.IP))
	default:
		g.recorder.GateDecision(OutcomeError)
		g.l.Error("Auth gate failed", logger.Error(err))
	}
	return id, err
}

func (g *Gate) verify(ctx context.Context, req Request, sink ResponseSink) (*Identity, error) {
	if req.AccessToken == "" || req.RefreshToken == "" {
		return nil, ErrMissingToken
	}

	listed, err := g.blacklist.IsBlacklisted(ctx, req.AccessToken)
	if err != nil {
		return nil, err
	}
	if listed {
		return nil, fmt.Errorf("%w: access token blacklisted", ErrRevokedToken)
	}

	refresh, err := g.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExpiredRefresh, err)
	}

	access, err := g.tokens.ParseAccess(req.AccessToken, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if access.Subject != refresh.Subject {
		return nil, ErrUserMismatch
	}

	if g.cfg.EnforceFingerprint && refresh.Fingerprint != token.Fingerprint(req.AccessToken) {
		return nil, ErrFingerprintMismatch
	}

	if err := g.checkRecord(ctx, refresh); err != nil {
		return nil, err
	}

	id, err := g.checkFreshness(req.AccessToken, refresh.ID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrExpiredToken) {
		return nil, err
	}

	issued, err := g.rotator.Rotate(ctx, refresh.ID, refresh.Subject, req.Client, sink)
	if err != nil {
		if IsUnauthorized(err) {
			return nil, err
		}
		g.l.Error("Transparent rotation failed", logger.String("token_id", refresh.ID), logger.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}
	sink.SetAccessToken(issued.AccessToken)

	id, err = g.checkFreshness(issued.AccessToken, issued.TokenID)
	if err != nil {
		return nil, err
	}
	id.Rotated = true
	return id, nil
}

func (g *Gate) checkFreshness(accessToken, refreshTokenID string) (*Identity, error) {
	claims, err := g.tokens.ParseAccess(accessToken, true)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: access token verification failed: %v", ErrMalformedToken, err)
	}
	return &Identity{
		UserID:         claims.Subject,
		Username:       claims.Username,
		Email:          claims.Email,
		RefreshTokenID: refreshTokenID,
		AccessToken:    accessToken,
	}, nil
}

// VerifyHandshake authenticates a WebSocket upgrade from the refresh token alone. The token must be
// valid and its record still active.
func (g *Gate) VerifyHandshake(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrMissingToken
	}

	claims, err := g.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExpiredRefresh, err)
	}

	if err := g.checkRecord(ctx, claims); err != nil {
		return nil, err
	}

	return &Session{UserID: claims.Subject, RefreshTokenID: claims.ID}, nil
}

// checkRecord requires the stored record of a refresh token to exist, be unrevoked and belong to the
// token's subject.
func (g *Gate) checkRecord(ctx context.Context, claims *token.RefreshClaims) error {
	record, err := g.records.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: no record %s", ErrExpiredRefresh, claims.ID)
		}
		return err
	}
	if record.Revoked {
		return fmt.Errorf("%w: refresh token %s", ErrRevokedToken, claims.ID)
	}
	if record.UserID != claims.Subject {
		return fmt.Errorf("%w: record owner differs from token subject", ErrUserMismatch)
	}
	return nil
}
