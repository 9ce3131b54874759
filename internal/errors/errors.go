package errors

import (
	"errors"
)

// Sentinel errors for the failure categories the components surface.
var (
	// ErrUpstream - calendar or store call failed outright (network, auth, quota)
	ErrUpstream = errors.New("upstream unavailable")

	// ErrMalformedDocument - a vault file failed to parse its frontmatter
	ErrMalformedDocument = errors.New("malformed document")

	// ErrNotFound - resource not found (expired sessions also read as not found)
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput - caller supplied invalid parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict - conflicting concurrent operation (vault lock held, busy index)
	ErrConflict = errors.New("conflict")

	// ErrTransient - transient error, safe to retry with backoff
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)
