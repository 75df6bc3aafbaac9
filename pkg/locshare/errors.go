package locshare

import (
	"errors"

	"github.com/amaydixit11/locvault/internal/share"
	"github.com/amaydixit11/locvault/pkg/crypto"
)

var (
	// ErrUnauthorized is returned when the viewer holds no live grant
	ErrUnauthorized = share.ErrUnauthorized

	// ErrNoPayload is returned when the owner has not stored a location yet
	ErrNoPayload = share.ErrNoPayload

	// ErrNoGrant is returned when revoking a grant that is not live
	ErrNoGrant = share.ErrNoGrant

	// ErrSearchUnavailable is returned when no places index is loaded
	ErrSearchUnavailable = share.ErrSearchUnavailable

	// ErrHistoryUnavailable is returned when the access log is disabled
	ErrHistoryUnavailable = share.ErrHistoryUnavailable

	// ErrPassphraseMismatch is returned by New when the passphrase differs
	// from the one the data directory was created with
	ErrPassphraseMismatch = crypto.ErrPassphraseMismatch

	// ErrCipherMismatch is returned by New when LOCVAULT_KDF or LOCVAULT_CIPHER
	// differs from the setting the data directory was created with
	ErrCipherMismatch = crypto.ErrCipherMismatch
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

// convertError converts internal errors to public error types
func convertError(err error) error {
	if err == nil {
		return nil
	}

	// Convert share.ErrInvalidInput to public ErrInvalidInput
	var invalid share.ErrInvalidInput
	if errors.As(err, &invalid) {
		return ErrInvalidInput{Field: invalid.Field, Reason: invalid.Reason}
	}

	return err
}
