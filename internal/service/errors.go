package service

import "errors"

// Error taxonomy for user-facing flows. Handlers map these to HTTP statuses
// with errors.Is; webhook sub-actions never surface them as non-2xx.
var (
	// ErrUnauthorized covers bad or missing credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation covers unknown plans, bad intervals and missing fields.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound covers missing users, unbound customers and absent records.
	ErrNotFound = errors.New("not found")
	// ErrUpstream covers failed billing provider calls.
	ErrUpstream = errors.New("billing provider request failed")
)
