package repository

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint (email, username, token id) is violated.
	ErrDuplicate = errors.New("record already exists")
	// ErrTokenNotActive is returned by Revoke when there is no unrevoked record with that id.
	ErrTokenNotActive = errors.New("refresh token not found or already revoked")
)
