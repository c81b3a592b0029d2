package domain

import "errors"

// Sentinel errors shared across services. Handlers map these onto HTTP
// status codes; repositories wrap driver errors into them.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
	ErrCapacityExceeded = errors.New("timeslot capacity exceeded")
	ErrProviderFailure  = errors.New("payment provider failure")
)
