package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrSessionNotFound is returned when a session identifier has no matching record
	ErrSessionNotFound = goerr.New("session not found")

	// ErrSessionClosed is returned when a turn targets a closed session and the
	// orchestrator is configured to reject it
	ErrSessionClosed = goerr.New("session is closed")

	// ErrPassageNotFound is returned when a passage identifier is not indexed
	ErrPassageNotFound = goerr.New("passage not found")

	// ErrEncodingFailure is returned when the embedding step rejects its input
	ErrEncodingFailure = goerr.New("encoding failure")

	// ErrDimensionMismatch is returned when a vector does not match the index dimension
	ErrDimensionMismatch = goerr.New("vector dimension mismatch")

	// ErrServiceUnavailable is returned when the retrieval backend cannot be reached
	ErrServiceUnavailable = goerr.New("retrieval service unavailable")

	// ErrValidation is returned for malformed input
	ErrValidation = goerr.New("validation error")
)
