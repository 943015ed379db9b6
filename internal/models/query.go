package models

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery is wrapped by every SearchQuery validation error.
var ErrInvalidQuery = errors.New("invalid query")

// SearchQuery represents a search request. Either Query or Vector must be set; when
// Keyword is true the keyword index is searched instead of the vector index.
type SearchQuery struct {
	Query   string    `json:"query"`
	Vector  []float32 `json:"vector,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Keyword bool      `json:"keyword,omitempty"`
}

// Validate checks the query and clamps Limit to [1, maxLimit], using defaultLimit when unset.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	if q.Query == "" && len(q.Vector) == 0 {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if q.Keyword && q.Query == "" {
		return fmt.Errorf("%w: keyword search requires query text", ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}
