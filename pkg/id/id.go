package id

import "github.com/google/uuid"

// New mints a new random (version 4) identifier, used for task IDs,
// subscription IDs, and request correlation IDs.
func New() string {
	return uuid.New().String()
}

// Valid reports whether s parses as a UUID, regardless of version.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
