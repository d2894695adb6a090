package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/repository"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
)

type CredentialStatus int

const (
	CredentialsMatch CredentialStatus = iota
	CredentialsNotFound
	CredentialsInvalidPassword
)

func (s CredentialStatus) String() string {
	switch s {
	case CredentialsMatch:
		return "match"
	case CredentialsNotFound:
		return "not_found"
	case CredentialsInvalidPassword:
		return "invalid_password"
	default:
		return "unknown"
	}
}

// CredentialResult is the outcome of a credential check. User is set only for CredentialsMatch and
// never carries the password hash.
type CredentialResult struct {
	Status CredentialStatus
	User   *models.User
}

func (r CredentialResult) OK() bool { return r.Status == CredentialsMatch }

// Credentials identify a user by email or, when email is empty, by username.
type Credentials struct {
	Email    string
	Username string
	Password string
}

type CredentialValidator struct {
	users  models.UserRepository
	hasher PasswordHasher
	l      logger.Logger
}

func NewCredentialValidator(users models.UserRepository, hasher PasswordHasher, l logger.Logger) *CredentialValidator {
	return &CredentialValidator{users: users, hasher: hasher, l: l}
}

// NormalizeEmail trims and lowercases an email address before lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks the credentials against the user directory. A missing user or a wrong password is
// a result, not an error; errors are reserved for bad input and directory failures.
func (v *CredentialValidator) Validate(ctx context.Context, creds Credentials) (CredentialResult, error) {
	email := NormalizeEmail(creds.Email)
	username := strings.TrimSpace(creds.Username)

	var (
		user *models.User
		err  error
	)
	switch {
	case email != "":
		user, err = v.users.GetByEmail(ctx, email)
	case username != "":
		user, err = v.users.GetByUsername(ctx, username)
	default:
		return CredentialResult{}, ErrMissingCredentials
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return CredentialResult{Status: CredentialsNotFound}, nil
		}
		return CredentialResult{}, fmt.Errorf("failed to look up user: %w", err)
	}

	ok, err := v.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		v.l.Warn("Stored password hash could not be verified",
			logger.String("user_id", user.ID),
			logger.Error(err))
		return CredentialResult{Status: CredentialsInvalidPassword}, nil
	}
	if !ok {
		return CredentialResult{Status: CredentialsInvalidPassword}, nil
	}

	return CredentialResult{Status: CredentialsMatch, User: user.WithoutPassword()}, nil
}
