// Package loader sequences the hot-swap of a running driver for a new one
// fetched over the wire: dlopen the new one and run its setup, publish it
// atomically as Current, tear the old one down, and only then initialize
// the new one's graphics surface.
//
// A swap that fails during the new driver's setup leaves the old driver
// running untouched; a driver is only torn down once its replacement's
// setup has succeeded.
package loader

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/atsika/driverhub/abi"
	"github.com/atsika/driverhub/digest"
	"github.com/atsika/driverhub/internal/obs"
)

// Driver bundles a loaded shared library with its initialized boxes and the
// comms endpoint the net pump and control handler read and write. Once
// constructed, only gfx changes: Loader.Swap sets it once, after the
// previous driver is retired. Only Loader.Swap and Loader.Close ever retire
// a Driver.
type Driver struct {
	Digest digest.Digest
	Comms  *abi.Comms

	lib *abi.Library
	box *abi.DriverBox
	gfx *abi.GfxBox
}

// HasGfx reports whether this driver initialized a graphics surface.
func (d *Driver) HasGfx() bool { return d.gfx != nil }

// Loader owns the single currently-active Driver and performs hot-swaps.
type Loader struct {
	log     *zap.Logger
	factory unsafe.Pointer // opaque host graphics factory, or nil if headless

	mu      sync.Mutex // serializes Swap/Close against each other
	current atomic.Pointer[Driver]
}

// New creates a Loader with no driver loaded yet; the first Swap populates
// current. factory may be nil for a headless host that never initializes a
// graphics surface.
func New(log *zap.Logger, factory unsafe.Pointer) *Loader {
	return &Loader{log: log, factory: factory}
}

// Current returns the presently active driver, or nil before the first
// successful Swap.
func (l *Loader) Current() *Driver {
	return l.current.Load()
}

// open dlopens path and runs setup, returning a driver with no graphics
// surface yet. gfx_setup is deliberately not called here: it must not run
// until the previous driver has been fully retired (see Swap), matching the
// original implementation's resolution of this same ordering question. On
// any failure partway through, everything already initialized is unwound.
func (l *Loader) open(path string, d digest.Digest) (_ *Driver, err error) {
	lib, err := abi.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "loader: open library"), obs.Driver)
	}
	defer func() {
		if err != nil {
			_ = lib.Close()
		}
	}()

	comms := abi.NewComms(l.log)
	box, err := abi.Setup(lib, comms)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "loader: driver setup"), obs.Driver)
	}

	return &Driver{Digest: d, Comms: comms, lib: lib, box: box}, nil
}

// gfxSetup initializes next's graphics surface in place, if the loader has a
// factory and next's library exports the full gl_* set. Called only once
// next's predecessor has been fully retired.
func (l *Loader) gfxSetup(next *Driver) error {
	if l.factory == nil || !next.lib.HasGfx() {
		return nil
	}
	gfx, err := abi.GfxSetup(next.lib, next.box, l.factory)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "loader: driver gfx setup"), obs.Driver)
	}
	next.gfx = gfx
	return nil
}

// retire tears down a driver fully: gfx_cleanup (if initialized), then
// teardown, then dlclose. Order matters: symbols must not be called after
// their library is closed, and gfx state must not outlive the driver box it
// was derived from.
func (l *Loader) retire(d *Driver) {
	if d == nil {
		return
	}
	if d.gfx != nil {
		abi.GfxCleanup(d.lib, d.gfx)
	}
	abi.Teardown(d.lib, d.box, d.Comms)
	if err := d.lib.Close(); err != nil && l.log != nil {
		l.log.Warn("loader: dlclose failed", zap.Error(err), zap.String("digest", d.Digest.String()))
	}
}

// Swap loads the driver at path and, if setup succeeds, retires whatever
// driver was previously current before initializing the new one's graphics
// surface: gfx_setup on the incoming driver never runs until the outgoing
// driver's gfx_cleanup and teardown have both completed. If setup fails, the
// previous driver keeps running and Swap returns the error. If gfx_setup
// fails (after the previous driver is already gone), the new driver is torn
// down too and Current becomes nil, mirroring the original implementation's
// handling of a driver that fails to initialize its graphics surface.
func (l *Loader) Swap(path string, d digest.Digest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := l.open(path, d)
	if err != nil {
		return errors.Wrapf(err, "loader: swap to %s", d.Short())
	}

	prev := l.current.Swap(next)
	l.retire(prev)

	if err := l.gfxSetup(next); err != nil {
		l.retire(next)
		l.current.Swap(nil)
		return errors.Wrapf(err, "loader: swap to %s", d.Short())
	}

	if l.log != nil {
		l.log.Info("loader: driver swapped", zap.String("digest", d.Short()), zap.Bool("gfx", next.HasGfx()))
	}
	return nil
}

// Close retires the current driver, if any. Intended for process shutdown.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.current.Swap(nil)
	l.retire(prev)
}
