package storage

import (
	"github.com/amaydixit11/locvault/pkg/crypto"
)

// PayloadStore holds the most recent encrypted payload for each owner.
// Put overwrites; only the latest payload of an owner is ever retrievable.
// Stores only ever see sealed payloads, never plaintext.
type PayloadStore interface {
	// Put stores the payload for owner, replacing any previous one
	Put(owner string, payload *crypto.EncryptedPayload) error

	// Get retrieves the latest payload for owner
	// Returns ErrNotFound if the owner has none
	Get(owner string) (*crypto.EncryptedPayload, error)

	// Delete removes the owner's payload
	Delete(owner string) error

	// Count returns the number of owners with a stored payload
	Count() (int, error)

	// Close releases all resources
	Close() error
}

// ErrNotFound is returned when an owner has no stored payload
type ErrNotFound struct {
	Owner string
}

func (e ErrNotFound) Error() string {
	return "payload not found for owner: " + e.Owner
}

func clonePayload(p *crypto.EncryptedPayload) *crypto.EncryptedPayload {
	return &crypto.EncryptedPayload{
		Salt:       append([]byte(nil), p.Salt...),
		Nonce:      append([]byte(nil), p.Nonce...),
		Tag:        append([]byte(nil), p.Tag...),
		Ciphertext: append([]byte{}, p.Ciphertext...),
	}
}
