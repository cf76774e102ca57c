// Package host defines the boundary between driverhub and the
// windowing/GPU front end that actually drives a tick/draw loop. The front
// end itself is out of scope; this package only describes the interface a
// loaded driver's graphics entry points are wired through.
package host

import "unsafe"

// Engine is implemented by the windowing/GPU front end and supplies the
// opaque pointers a loaded driver's graphics entry points receive. It has no
// tick, draw or resize methods, and this package has no update channel;
// NullEngine below is the only implementation driverhub ships.
type Engine interface {
	// Factory returns the opaque pointer handed to a driver's gfx_setup.
	Factory() unsafe.Pointer
	// Target returns the opaque render-target pointer handed to gfx_draw
	// for the frame currently being rendered.
	Target() unsafe.Pointer
}

// NullEngine is a headless Engine for server-side or test processes that
// load drivers only to relay them, never to render.
type NullEngine struct{}

func (NullEngine) Factory() unsafe.Pointer { return nil }
func (NullEngine) Target() unsafe.Pointer  { return nil }
