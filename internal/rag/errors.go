package rag

import "errors"

// Pipeline errors. Callers map these onto transport status codes.
var (
	// ErrInvalidInput indicates a malformed request (empty question,
	// missing user, or a conversation ID that is not a UUID).
	ErrInvalidInput = errors.New("invalid input")

	// ErrClientNotFound indicates the user has no client profile, so
	// there is no report corpus to query.
	ErrClientNotFound = errors.New("client not found")

	// ErrUpstream wraps failures of a dependency the pipeline cannot
	// degrade around: embedding, answer generation, or the database.
	ErrUpstream = errors.New("upstream failure")
)
