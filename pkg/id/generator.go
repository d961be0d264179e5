package id

import (
	"github.com/google/uuid"
)

// Generate generates a new unique ID.
func Generate() string {
	return uuid.New().String()
}

// GenerateShort generates a shorter unique ID (first 8 chars of UUID).
func GenerateShort() string {
	return uuid.New().String()[:8]
}

// ResultID generates an output identifier for ops that do not name one.
func ResultID() string {
	return "r-" + GenerateShort()
}

// Prefixed generates a short ID tagged with the given kind, e.g. "task-1a2b3c4d".
func Prefixed(kind string) string {
	return kind + "-" + GenerateShort()
}
