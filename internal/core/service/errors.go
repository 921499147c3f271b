package service

import "errors"

var (
	// ErrCapacityExhausted means no free port remains in the configured
	// range. Retryable from the caller's point of view, not an internal
	// failure.
	ErrCapacityExhausted = errors.New("no free port in configured range")

	// ErrInvalidPort means the caller asked for a port outside the
	// configured range. A caller mistake, not a capacity condition.
	ErrInvalidPort = errors.New("requested port outside configured range")

	// ErrPrivilegeSetup means the instance rejected the tenant user
	// installation. The partially-created container has already been
	// torn down when this is returned.
	ErrPrivilegeSetup = errors.New("tenant user setup rejected by instance")

	// ErrReadinessTimeout means the instance never answered the readiness
	// probe before the deadline. Same cleanup path as ErrPrivilegeSetup.
	ErrReadinessTimeout = errors.New("instance not ready before deadline")
)
