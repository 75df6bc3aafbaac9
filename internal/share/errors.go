package share

import (
	"errors"
)

var (
	// ErrUnauthorized is returned when the viewer holds no live grant.
	// Unknown owners get the same error so owners cannot be enumerated.
	ErrUnauthorized = errors.New("unauthorized access or access expired")

	// ErrNoPayload is returned when access is allowed but the owner has not
	// stored a location yet
	ErrNoPayload = errors.New("no encrypted location data found")

	// ErrNoGrant is returned when revoking a grant that is not live
	ErrNoGrant = errors.New("no active grant")

	// ErrSearchUnavailable is returned when no places index is configured
	ErrSearchUnavailable = errors.New("places search is not configured")

	// ErrHistoryUnavailable is returned when access history is disabled
	ErrHistoryUnavailable = errors.New("access history is not enabled")
)

// ErrInvalidInput is returned for missing or out-of-range request fields
type ErrInvalidInput struct {
	Field  string
	Reason string
}

func (e ErrInvalidInput) Error() string {
	if e.Reason == "" {
		return "invalid input: " + e.Field
	}
	return "invalid input: " + e.Field + ": " + e.Reason
}

func missing(field string) error {
	return ErrInvalidInput{Field: field, Reason: "missing"}
}
