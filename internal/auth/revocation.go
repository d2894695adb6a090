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

// SessionTokens are the raw credentials a client presented.
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
}

type Revoker struct {
	tokens    *token.Manager
	records   models.RefreshTokenRepository
	blacklist *Blacklist
	l         logger.Logger
}

func NewRevoker(tokens *token.Manager, records models.RefreshTokenRepository, blacklist *Blacklist, l logger.Logger) *Revoker {
	return &Revoker{tokens: tokens, records: records, blacklist: blacklist, l: l}
}

// Logout ends the session of the presented refresh token. An expired refresh token counts as an
// already finished session. Client state is cleared whenever a refresh token was presented.
func (r *Revoker) Logout(ctx context.Context, tokens SessionTokens, sink ResponseSink) (bool, error) {
	claims, done, err := r.begin(ctx, tokens, sink)
	if err != nil || done {
		return err == nil, err
	}

	if err := r.records.Revoke(ctx, claims.ID); err != nil {
		if errors.Is(err, repository.ErrTokenNotActive) {
			r.l.Debug("Refresh token already inactive at logout", logger.String("token_id", claims.ID))
			return true, nil
		}
		return false, err
	}

	r.l.Info("User logged out",
		logger.String("user_id", claims.Subject),
		logger.String("token_id", claims.ID))
	return true, nil
}

// LogoutAll revokes every active refresh record of the user owning the presented refresh token.
func (r *Revoker) LogoutAll(ctx context.Context, tokens SessionTokens, sink ResponseSink) (bool, error) {
	claims, done, err := r.begin(ctx, tokens, sink)
	if err != nil || done {
		return err == nil, err
	}

	n, err := r.records.RevokeAllByUserID(ctx, claims.Subject)
	if err != nil {
		return false, err
	}

	r.l.Info("User logged out of all sessions",
		logger.String("user_id", claims.Subject),
		logger.Int64("revoked", n))
	return true, nil
}

// begin runs the steps shared by both logouts. done reports that the logout already succeeded
// without a refresh record to revoke.
func (r *Revoker) begin(ctx context.Context, tokens SessionTokens, sink ResponseSink) (*token.RefreshClaims, bool, error) {
	if tokens.RefreshToken == "" {
		return nil, false, fmt.Errorf("%w: refresh token", ErrMissingToken)
	}

	defer func() {
		sink.ClearRefreshCookie()
		sink.ClearAccessToken()
	}()

	if tokens.AccessToken != "" {
		if err := r.blacklist.Add(ctx, tokens.AccessToken); err != nil {
			r.l.Warn("Failed to blacklist access token at logout", logger.Error(err))
		}
	}

	claims, err := r.tokens.ParseRefresh(tokens.RefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, false, nil
}
