package utils

import "github.com/google/uuid"

// NewID generates a random UUID string
func NewID() string {
	return uuid.NewString()
}

// IsValidID reports whether s parses as a UUID
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
