package erp

import (
	"strings"

	"github.com/google/uuid"
)

// PlaceholderPrefix marks identifiers assigned on the device before the backend issued a name.
const PlaceholderPrefix = "LOCAL-"

// NewPlaceholder returns a fresh placeholder identifier.
func NewPlaceholder() string {
	return PlaceholderPrefix + uuid.NewString()
}

// IsPlaceholder reports whether id was assigned locally.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}
