package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
	"github.com/AtoyanMikhail/authgate/internal/token"
	"github.com/google/uuid"
)

const TokenTypeBearer = "Bearer"

// ResponseSink is where the transport lets the auth flows write client-side session state.
type ResponseSink interface {
	SetRefreshCookie(refreshToken string, maxAge time.Duration)
	ClearRefreshCookie()
	SetAccessToken(accessToken string)
	ClearAccessToken()
}

// ClientInfo describes the caller a refresh token is issued to.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type TokenResponse struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64 // seconds
}

// IssuedTokens is a freshly minted pair whose refresh record is already persisted.
type IssuedTokens struct {
	TokenResponse
	RefreshToken string
	TokenID      string
	UserID       string
}

type Issuer struct {
	tokens  *token.Manager
	records models.RefreshTokenRepository
	now     func() time.Time
	newID   func() string
	l       logger.Logger
}

func NewIssuer(tokens *token.Manager, records models.RefreshTokenRepository, now func() time.Time, l logger.Logger) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		tokens:  tokens,
		records: records,
		now:     now,
		newID:   uuid.NewString,
		l:       l,
	}
}

// Issue mints a token pair for user, persists the refresh record and writes the refresh cookie.
func (i *Issuer) Issue(ctx context.Context, user *models.User, client ClientInfo, sink ResponseSink) (*IssuedTokens, error) {
	issued, err := i.mint(ctx, user, client)
	if err != nil {
		return nil, err
	}
	sink.SetRefreshCookie(issued.RefreshToken, i.tokens.RefreshTTL())
	return issued, nil
}

// mint signs and persists a pair without touching the response.
func (i *Issuer) mint(ctx context.Context, user *models.User, client ClientInfo) (*IssuedTokens, error) {
	tokenID := i.newID()
	issuedAt := i.now()

	access, _, err := i.tokens.SignAccess(token.AccessSubject{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}, tokenID, issuedAt)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := i.tokens.SignRefresh(user.ID, tokenID, token.Fingerprint(access), issuedAt)
	if err != nil {
		return nil, err
	}

	record := &models.RefreshToken{
		ID:        tokenID,
		UserID:    user.ID,
		IssuedIP:  client.IP,
		UserAgent: client.UserAgent,
		ExpiresAt: refreshExp,
	}
	if err := i.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}

	i.l.Debug("Token pair issued",
		logger.String("user_id", user.ID),
		logger.String("token_id", tokenID))

	return &IssuedTokens{
		TokenResponse: TokenResponse{
			AccessToken: access,
			TokenType:   TokenTypeBearer,
			ExpiresIn:   int64(i.tokens.AccessTTL() / time.Second),
		},
		RefreshToken: refresh,
		TokenID:      tokenID,
		UserID:       user.ID,
	}, nil
}
