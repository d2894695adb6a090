package models

import "time"

// RefreshToken is the server-side record of one issued refresh token. ID is the token's jti.
// Once Revoked is set it is never cleared.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	IssuedIP  string     `db:"issued_ip" json:"issued_ip"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Active reports whether the record can still back a session at the given instant.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
