package util

import (
	"github.com/google/uuid"
)

// GenUUID generates a random UUID string.
func GenUUID() string {
	return uuid.New().String()
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
