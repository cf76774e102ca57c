package abi

/*
#include <stdint.h>

typedef struct driver_callbacks driver_callbacks;

typedef uint32_t (*driver_version_fn)(void);
typedef void*     (*driver_setup_fn)(driver_callbacks*);
typedef driver_callbacks* (*driver_teardown_fn)(void*);
typedef void*     (*driver_gfx_setup_fn)(void*, void*);
typedef void      (*driver_gfx_update_fn)(void*);
typedef void      (*driver_gfx_draw_fn)(void*, void*);
typedef void      (*driver_gfx_cleanup_fn)(void*);

static uint32_t call_version(void *fn) {
	return ((driver_version_fn)fn)();
}
static void *call_setup(void *fn, driver_callbacks *cbs) {
	return ((driver_setup_fn)fn)(cbs);
}
static driver_callbacks *call_teardown(void *fn, void *box) {
	return ((driver_teardown_fn)fn)(box);
}
static void *call_gfx_setup(void *fn, void *box, void *factory) {
	return ((driver_gfx_setup_fn)fn)(box, factory);
}
static void call_gfx_update(void *fn, void *gfx) {
	((driver_gfx_update_fn)fn)(gfx);
}
static void call_gfx_draw(void *fn, void *gfx, void *target) {
	((driver_gfx_draw_fn)fn)(gfx, target);
}
static void call_gfx_cleanup(void *fn, void *gfx) {
	((driver_gfx_cleanup_fn)fn)(gfx);
}
*/
import "C"

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// DriverBox is the opaque handle a setup call returns; it is passed back
// unmodified to gl_setup and to teardown. gl_update, gl_draw and gl_cleanup
// receive only the GfxBox, not the DriverBox.
type DriverBox struct{ ptr unsafe.Pointer }

// GfxBox is the opaque handle a gl_setup call returns.
type GfxBox struct{ ptr unsafe.Pointer }

// Version calls the driver's version entry point.
func Version(lib *Library) uint32 {
	return uint32(C.call_version(lib.version))
}

// Setup calls setup(callbacks) and returns the opaque driver box.
// comms must stay alive for as long as the returned box is in use: the
// driver will invoke comms' callbacks from inside its own threads at any
// point up until teardown.
func Setup(lib *Library, comms *Comms) (*DriverBox, error) {
	cbs := comms.Callbacks()
	box := C.call_setup(lib.setup, cbs)
	if box == nil {
		comms.FreeCallbacks(cbs)
		return nil, errors.New("abi: setup returned null box")
	}
	return &DriverBox{ptr: box}, nil
}

// Teardown calls teardown(box) and frees the callback table it hands back.
// Must be called exactly once per successful Setup, and only after any gfx
// box derived from it has already been cleaned up.
func Teardown(lib *Library, box *DriverBox, comms *Comms) {
	cbs := C.call_teardown(lib.teardown, box.ptr)
	comms.FreeCallbacks(cbs)
}

// GfxSetup calls gl_setup(box, factory). factory is an opaque pointer into
// the host's graphics factory; its concrete shape is owned by the host
// package and never interpreted here.
func GfxSetup(lib *Library, box *DriverBox, factory unsafe.Pointer) (*GfxBox, error) {
	if !lib.HasGfx() {
		return nil, errors.New("abi: driver does not export a gfx surface")
	}
	gfx := C.call_gfx_setup(lib.gfxSetup, box.ptr, factory)
	if gfx == nil {
		return nil, errors.New("abi: gl_setup returned null box")
	}
	return &GfxBox{ptr: gfx}, nil
}

// GfxUpdate calls gl_update(gfx) once per host tick.
func GfxUpdate(lib *Library, gfx *GfxBox) {
	C.call_gfx_update(lib.gfxUpd, gfx.ptr)
}

// GfxDraw calls gl_draw(gfx, target) once per host frame.
func GfxDraw(lib *Library, gfx *GfxBox, target unsafe.Pointer) {
	C.call_gfx_draw(lib.gfxDraw, gfx.ptr, target)
}

// GfxCleanup calls gl_cleanup(gfx). Must run before Teardown.
func GfxCleanup(lib *Library, gfx *GfxBox) {
	C.call_gfx_cleanup(lib.gfxClean, gfx.ptr)
}
