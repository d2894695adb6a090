package models

import "time"

type User struct {
	ID           string    `db:"id" json:"id"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	Email        string    `db:"email" json:"email"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// WithoutPassword returns a copy safe to hand out of the credential check.
func (u User) WithoutPassword() *User {
	u.PasswordHash = ""
	return &u
}
