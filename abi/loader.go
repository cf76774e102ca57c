package abi

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// ErrSymbolNotFound is wrapped around dlsym failures.
var ErrSymbolNotFound = errors.New("abi: symbol not found in driver library")

// Library is a dlopen'd shared object together with the C-ABI symbols a
// driver is required to export. Symbols are resolved once at Open and cached
// for the lifetime of the Library; the handle must outlive every symbol
// pointer taken from it; Close invalidates all of them together, which is
// why Library bundles handle and symbols rather than exposing either alone.
type Library struct {
	mu     sync.Mutex
	handle unsafe.Pointer // dlopen handle; nil once closed
	path   string

	version  unsafe.Pointer
	setup    unsafe.Pointer
	teardown unsafe.Pointer
	gfxSetup unsafe.Pointer
	gfxUpd   unsafe.Pointer
	gfxDraw  unsafe.Pointer
	gfxClean unsafe.Pointer
}

// requiredSymbols are resolved eagerly so a malformed driver fails at Open
// rather than at first use. These are the exact bare (non-prefixed) C-ABI
// names a driver build must export.
var requiredSymbols = []string{
	"version",
	"setup",
	"teardown",
}

// optionalSymbols are resolved if present; a driver with no graphical
// surface may omit them.
var optionalSymbols = []string{
	"gl_setup",
	"gl_update",
	"gl_draw",
	"gl_cleanup",
}

// Open dlopens the shared library at path (RTLD_NOW|RTLD_LOCAL, so a bad
// relocation fails immediately rather than on first call) and resolves its
// required and optional entry points.
func Open(path string) (*Library, error) {
	if err := preflight(path); err != nil {
		return nil, err
	}

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	C.dlerror() // clear any pending error
	h := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if h == nil {
		return nil, errors.Newf("abi: dlopen %s: %s", path, C.GoString(C.dlerror()))
	}

	lib := &Library{handle: h, path: path}

	syms := map[string]*unsafe.Pointer{
		"version":    &lib.version,
		"setup":      &lib.setup,
		"teardown":   &lib.teardown,
		"gl_setup":   &lib.gfxSetup,
		"gl_update":  &lib.gfxUpd,
		"gl_draw":    &lib.gfxDraw,
		"gl_cleanup": &lib.gfxClean,
	}

	for _, name := range requiredSymbols {
		ptr, err := lib.lookup(name)
		if err != nil {
			C.dlclose(h)
			return nil, err
		}
		*syms[name] = ptr
	}
	for _, name := range optionalSymbols {
		if ptr, err := lib.lookup(name); err == nil {
			*syms[name] = ptr
		}
	}
	return lib, nil
}

func (l *Library) lookup(name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	C.dlerror()
	ptr := C.dlsym(l.handle, cname)
	if ptr == nil {
		if errmsg := C.dlerror(); errmsg != nil {
			return nil, errors.Wrapf(ErrSymbolNotFound, "%s: %s", name, C.GoString(errmsg))
		}
	}
	return ptr, nil
}

// HasGfx reports whether the library exports the full graphics entry-point
// set.
func (l *Library) HasGfx() bool {
	return l.gfxSetup != nil && l.gfxUpd != nil && l.gfxDraw != nil && l.gfxClean != nil
}

// Path returns the filesystem path this Library was opened from.
func (l *Library) Path() string { return l.path }

// Close dlcloses the underlying handle. Callers must guarantee no symbol
// from this Library is still reachable by the driver (i.e. teardown/
// gfx_cleanup have already run) before calling Close.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == nil {
		return nil
	}
	if rc := C.dlclose(l.handle); rc != 0 {
		return errors.Newf("abi: dlclose %s: %s", l.path, C.GoString(C.dlerror()))
	}
	l.handle = nil
	return nil
}
