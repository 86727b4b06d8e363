package uid

import (
	"strings"

	"github.com/google/uuid"
)

// MaxLength bounds identifiers accepted from clients.
const MaxLength = 64

// New generates a new unique identifier.
func New() string {
	return uuid.New().String()
}

// Sanitize returns id if it is a short printable token a client may supply
// (for example as X-Request-ID), or a fresh identifier otherwise.
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxLength {
		return New()
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return New()
		}
	}
	return id
}
