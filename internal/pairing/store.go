// Package pairing persists the identities of devices that completed a
// handshake with the correct PIN.
package pairing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Device is one accepted peer.
type Device struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name"`
	PairedAt    time.Time `json:"paired_at"`
}

// Store is the lookup-or-insert capability the handshake needs.
// Implementations must be safe for concurrent use.
type Store interface {
	// Pair records identity if it is not already paired. It reports whether
	// a new entry was created; an existing entry is returned unchanged.
	Pair(identity, displayName string) (Device, bool, error)
	Lookup(identity string) (Device, bool, error)
	List() ([]Device, error)
	Remove(identity string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

var ErrEmptyIdentity = errors.New("pairing: empty identity")

// Open returns the store for backend rooted at path.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendJSON:
		return NewFileStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("pairing: unknown backend %q", backend)
	}
}

func validIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return ErrEmptyIdentity
	}
	return nil
}
