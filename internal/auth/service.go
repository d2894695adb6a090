package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/repository"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
	"github.com/AtoyanMikhail/authgate/internal/token"
	"github.com/google/uuid"
)

type RegisterInput struct {
	DisplayName string
	Email       string
	Username    string
	Password    string
}

// Service implements the public auth endpoints on top of the validator, issuer and rotator.
type Service struct {
	users     models.UserRepository
	hasher    PasswordHasher
	validator *CredentialValidator
	issuer    *Issuer
	rotator   *Rotator
	tokens    *token.Manager
	newID     func() string
	l         logger.Logger
}

func NewService(
	users models.UserRepository,
	hasher PasswordHasher,
	issuer *Issuer,
	rotator *Rotator,
	tokens *token.Manager,
	l logger.Logger,
) *Service {
	return &Service{
		users:     users,
		hasher:    hasher,
		validator: NewCredentialValidator(users, hasher, l),
		issuer:    issuer,
		rotator:   rotator,
		tokens:    tokens,
		newID:     uuid.NewString,
		l:         l,
	}
}

// Register creates the user and signs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput, client ClientInfo, sink ResponseSink) (*IssuedTokens, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           s.newID(),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Email:        NormalizeEmail(in.Email),
		Username:     strings.TrimSpace(in.Username),
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.l.Info("User registered", logger.String("user_id", user.ID))
	return s.issuer.Issue(ctx, user.WithoutPassword(), client, sink)
}

// Login checks the credentials and issues a new session. Unknown identifiers and wrong passwords both
// fail with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, creds Credentials, client ClientInfo, sink ResponseSink) (*IssuedTokens, error) {
	result, err := s.validator.Validate(ctx, creds)
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		s.l.Warn("Login failed",
			logger.String("reason", result.Status.String()),
			logger.String("ip", client.IP))
		return nil, ErrInvalidCredentials
	}

	return s.issuer.Issue(ctx, result.User, client, sink)
}

// Refresh rotates the presented refresh token into a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo, sink ResponseSink) (*IssuedTokens, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token", ErrMissingToken)
	}

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExpiredRefresh, err)
	}

	return s.rotator.Rotate(ctx, claims.ID, claims.Subject, client, sink)
}

// Me returns the profile of an authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserGone
		}
		return nil, err
	}
	return user.WithoutPassword(), nil
}
