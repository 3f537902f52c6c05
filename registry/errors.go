package registry

import "errors"

// Sentinel errors for registry operations. Callers own retries; the registry
// never retries on their behalf.
var (
	ErrNotFound            = errors.New("agent not found")
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrUnavailable         = errors.New("registry unavailable")
)
