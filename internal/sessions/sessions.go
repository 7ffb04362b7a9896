// Package sessions persists per-sender conversation state so a restart
// does not drop people back to the root menu mid-flow. The payload is an
// opaque JSON blob owned by the router.
package sessions

import "errors"

// ErrNotFound is returned by Load when the sender has no stored session.
var ErrNotFound = errors.New("session not found")

// Store is the persistence contract for router sessions.
type Store interface {
	// Load returns the stored payload for a sender id.
	Load(waid string) ([]byte, error)
	// Save upserts the payload for a sender id.
	Save(waid string, payload []byte) error
	// Clear removes the sender's session, if any.
	Clear(waid string) error
	// Close releases backend resources.
	Close() error
}
