// Package current holds the single shared "what driver is live right now"
// slot that the server's handshake handler, the upgrade ingress, and the
// httpserve byte server all read and write without talking to each other
// directly.
package current

import (
	"sync/atomic"

	"github.com/atsika/driverhub/digest"
	"github.com/atsika/driverhub/wire"
)

// Driver is an immutable snapshot of the currently published driver
// artifact. A new upload replaces the pointer in the Slot wholesale; nothing
// ever mutates a Driver in place.
type Driver struct {
	Info  wire.DriverInfo
	Bytes []byte // full artifact bytes, for inline fetch and httpserve
	URI   string // non-empty to direct clients to fetch out-of-band instead
}

// Digest is shorthand for Info.Digest.
func (d *Driver) Digest() digest.Digest { return d.Info.Digest }

// Slot is a lock-free single-writer-many-reader holder for the current
// Driver.
type Slot struct {
	ptr atomic.Pointer[Driver]
}

// NewSlot returns an empty Slot; Load returns nil until the first Store.
func NewSlot() *Slot { return &Slot{} }

// Load returns the current Driver, or nil if none has been published yet.
func (s *Slot) Load() *Driver { return s.ptr.Load() }

// Store atomically publishes a new current Driver.
func (s *Slot) Store(d *Driver) { s.ptr.Store(d) }
