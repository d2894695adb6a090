package auth

import (
	"errors"

	"github.com/AtoyanMikhail/authgate/internal/config"
)

var (
	ErrMissingCredentials = errors.New("email or username is required")
	// ErrInvalidCredentials covers both an unknown identifier and a wrong password.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrMissingToken        = errors.New("tokens required")
	ErrMalformedToken      = errors.New("invalid access token")
	ErrExpiredToken        = errors.New("access token expired")
	ErrExpiredRefresh      = errors.New("invalid or expired refresh token")
	ErrRevokedToken        = errors.New("token revoked")
	ErrUserMismatch        = errors.New("user mismatch")
	ErrFingerprintMismatch = errors.New("fingerprint mismatch")
	ErrUserGone            = errors.New("user no longer exists")
	// ErrRotationFailed wraps infrastructure failures of a rotation started by the gate.
	ErrRotationFailed = errors.New("token rotation failed")
	ErrUserExists     = errors.New("user already exists")

	ErrConfigurationMissing = config.ErrConfigurationMissing
)

var unauthorized = []error{
	ErrInvalidCredentials,
	ErrMissingToken,
	ErrMalformedToken,
	ErrExpiredToken,
	ErrExpiredRefresh,
	ErrRevokedToken,
	ErrUserMismatch,
	ErrFingerprintMismatch,
	ErrUserGone,
	ErrRotationFailed,
}

// IsUnauthorized reports whether err is an authentication failure that the transport answers with a
// generic 401. Storage and infrastructure errors are not.
func IsUnauthorized(err error) bool {
	for _, target := range unauthorized {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
