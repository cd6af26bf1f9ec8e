package protocol

import "github.com/google/uuid"

// NewID returns a fresh connection or room identifier.
func NewID() string {
	return uuid.NewString()
}

// ShortID is NewID trimmed to its first group, used for room ids that end up in channel names.
func ShortID() string {
	id := uuid.New()
	return id.String()[:8]
}
