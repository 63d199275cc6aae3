// Package uuid issues time-ordered identifiers for database rows.
// UUID v7 sorts by creation time, which keeps SQLite primary-key indexes append-mostly.
package uuid

import "github.com/google/uuid"

// NewV7 returns a new UUID v7 in canonical string form. If the v7 clock
// source fails it falls back to a random v4 so callers never see an error.
func NewV7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
