package models

import "strings"

const (
	// DefaultSearchLimit is the number of results returned when a query does not set one.
	DefaultSearchLimit = 5
	// MaxSearchLimit caps the number of results a single query may request.
	MaxSearchLimit = 50
)

// SearchQuery asks for the chunks of one client's documents that best match Query.
type SearchQuery struct {
	ClientID string `json:"client_id"`
	Query    string `json:"query"`
	Limit    int    `json:"limit,omitempty"`
}

// Validate ensures the query names a client and normalizes the limit into [1, maxLimit].
// An empty query string is valid: it vectorizes to a zero vector and scores every chunk 0.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	q.ClientID = strings.TrimSpace(q.ClientID)
	if q.ClientID == "" {
		return ErrClientRequired
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultSearchLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxSearchLimit
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}
