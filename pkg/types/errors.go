package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidEntityID       = errors.New("invalid entity ID")
	ErrUnknownEntityType     = errors.New("unknown entity type")
	ErrInvalidRelevanceScore = errors.New("relevance score must be non-negative")
)
