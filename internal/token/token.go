// Package token signs and parses the access/refresh JWT pair and links the two by fingerprint.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired is returned when the signature is fine but exp has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers everything else: bad signature, wrong algorithm, unparsable token, bad claims.
	ErrInvalid = errors.New("invalid token")
)

// FingerprintLength is the number of hex characters kept from the signature digest.
const FingerprintLength = 16

// AccessClaims are carried by the short-lived access token. Data holds the id of the paired refresh token.
type AccessClaims struct {
	Data     string `json:"data"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by the long-lived refresh token, signed with its own secret.
type RefreshClaims struct {
	Fingerprint string `json:"fingerprint"`
	jwt.RegisteredClaims
}

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Now           func() time.Time
}

type Manager struct {
	cfg Config
}

// NewManager validates the signing configuration once so that per-call signing never fails on it.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("access token secret is empty")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh token secret is empty")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg}, nil
}

func (m *Manager) AccessTTL() time.Duration  { return m.cfg.AccessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

// AccessSubject is the identity material that goes into an access token.
type AccessSubject struct {
	UserID   string
	Username string
	Email    string
}

// SignAccess mints an access token bound to the refresh token id tokenID.
func (m *Manager) SignAccess(sub AccessSubject, tokenID string, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(m.cfg.AccessTTL)
	claims := AccessClaims{
		Data:     tokenID,
		Username: sub.Username,
		Email:    sub.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// SignRefresh mints a refresh token with jti tokenID, linked to the access token by fingerprint.
func (m *Manager) SignRefresh(userID, tokenID, fingerprint string, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(m.cfg.RefreshTTL)
	claims := RefreshClaims{
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies the access token signature. Expiry is only enforced when verifyExpiry is set;
// with it unset the claims of an expired but authentic token are returned.
func (m *Manager) ParseAccess(raw string, verifyExpiry bool) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(raw, claims, m.cfg.AccessSecret, verifyExpiry); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	return claims, nil
}

// ParseRefresh verifies the refresh token signature and expiry.
func (m *Manager) ParseRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(raw, claims, m.cfg.RefreshSecret, true); err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing jti or subject", ErrInvalid)
	}
	return claims, nil
}

func (m *Manager) parse(raw string, claims jwt.Claims, secret []byte, verifyExpiry bool) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.cfg.Now),
	}
	if verifyExpiry {
		options = append(options, jwt.WithExpirationRequired())
	} else {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	_, err := jwt.NewParser(options...).ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
}

// Fingerprint hashes the signature segment of a signed access token and keeps the first
// FingerprintLength hex characters. A token without three segments hashes the empty string, so every
// malformed token shares one fingerprint; callers only fingerprint tokens they have verified.
func Fingerprint(accessToken string) string {
	var signature string
	if parts := strings.Split(accessToken, "."); len(parts) == 3 {
		signature = parts[2]
	}
	sum := sha256.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}
