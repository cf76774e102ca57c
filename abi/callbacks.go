// Package abi implements the stable C-linkage boundary between the host
// process and a loaded driver shared library: dynamic loading via dlopen,
// the host->driver callback table, and the packet-ownership bookkeeping
// that lets the host validate frees and detect leaks.
package abi

/*
#include <stdlib.h>
#include <stdint.h>

typedef struct driver_callbacks {
	uintptr_t ctx;
	uint8_t*  (*alloc_fn)(uintptr_t ctx, int32_t len);
	void      (*free_fn)(uintptr_t ctx, uint8_t *ptr, int32_t len);
	int32_t   (*send_fn)(uintptr_t ctx, uint8_t *ptr, int32_t len);
	int32_t   (*control_write_fn)(uintptr_t ctx, uint8_t *ptr, int32_t len);
	int32_t   (*try_recv_fn)(uintptr_t ctx, uint8_t **out);
} driver_callbacks;

extern uint8_t* goAlloc(uintptr_t ctx, int32_t len);
extern void goFree(uintptr_t ctx, uint8_t *ptr, int32_t len);
extern int32_t goSend(uintptr_t ctx, uint8_t *ptr, int32_t len);
extern int32_t goControlWrite(uintptr_t ctx, uint8_t *ptr, int32_t len);
extern int32_t goTryRecv(uintptr_t ctx, uint8_t **out);

static driver_callbacks *new_driver_callbacks(uintptr_t ctx) {
	driver_callbacks *cbs = (driver_callbacks *)malloc(sizeof(driver_callbacks));
	if (cbs == NULL) {
		return NULL;
	}
	cbs->ctx = ctx;
	cbs->alloc_fn = goAlloc;
	cbs->free_fn = goFree;
	cbs->send_fn = goSend;
	cbs->control_write_fn = goControlWrite;
	cbs->try_recv_fn = goTryRecv;
	return cbs;
}
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"unsafe"

	"go.uber.org/zap"
)

// leakWatermark is the number of outstanding (unfreed) packets above which
// the host warns that the driver may be leaking.
const leakWatermark = 32

// Comms is the host-side endpoint of the bidirectional channel pair
// connecting a loaded driver to the client's net thread: outbound frames the
// driver sends (To the server), inbound frames delivered to the driver (From
// the server), and an out-of-band control channel for UpControl directives.
type Comms struct {
	log *zap.Logger

	outbound chan []byte // driver -> server, drained by the net pump
	inbound  chan []byte // server -> driver, filled by the net pump
	control  chan []byte // driver -> host loader, out-of-band directives

	mu      sync.Mutex
	packets map[uintptr][]byte // address -> allocated (but not-yet-freed) buffer
	handle  cgo.Handle
}

// NewComms creates a Comms with fixed channel buffers: 256 frames each for
// inbound and outbound traffic and 16 for control directives. send_fn and
// control_write_fn return -1 instead of blocking when their channel is full;
// Deliver blocks until try_recv has drained room in the inbound buffer.
func NewComms(log *zap.Logger) *Comms {
	c := &Comms{
		log:      log,
		outbound: make(chan []byte, 256),
		inbound:  make(chan []byte, 256),
		control:  make(chan []byte, 16),
		packets:  make(map[uintptr][]byte),
	}
	c.handle = cgo.NewHandle(c)
	return c
}

// Callbacks builds the C-ABI callback table to pass into the driver's
// setup() entry point. The returned pointer is owned by the driver until it
// is handed back at teardown(); call FreeCallbacks on that returned pointer.
func (c *Comms) Callbacks() *C.driver_callbacks {
	return C.new_driver_callbacks(C.uintptr_t(c.handle))
}

// FreeCallbacks releases the callback struct returned by teardown() and
// releases the cgo handle backing ctx. Must be called exactly once, after
// the driver can no longer invoke any of its callbacks.
func (c *Comms) FreeCallbacks(cbs *C.driver_callbacks) {
	if cbs != nil {
		C.free(unsafe.Pointer(cbs))
	}
	c.handle.Delete()
}

// Deliver enqueues a server-sent frame for the driver's try_recv to consume.
func (c *Comms) Deliver(b []byte) {
	c.inbound <- b
}

// Outbound returns the channel of frames the driver has sent via send_fn,
// to be written to the server connection in enqueue order.
func (c *Comms) Outbound() <-chan []byte { return c.outbound }

// Control returns the channel of UpControl-encoded directives the driver has
// written via control_write_fn.
func (c *Comms) Control() <-chan []byte { return c.control }

func commsFromCtx(ctx C.uintptr_t) *Comms {
	return cgo.Handle(ctx).Value().(*Comms)
}

//export goAlloc
func goAlloc(ctx C.uintptr_t, length C.int32_t) *C.uint8_t {
	c := commsFromCtx(ctx)
	if length <= 0 {
		return nil
	}
	ptr := C.malloc(C.size_t(length))
	if ptr == nil {
		return nil
	}
	buf := unsafe.Slice((*byte)(ptr), int(length))

	c.mu.Lock()
	c.packets[uintptr(ptr)] = buf
	outstanding := len(c.packets)
	c.mu.Unlock()

	if outstanding > leakWatermark && c.log != nil {
		c.log.Warn("driver has many outstanding packets, possible leak",
			zap.Int("outstanding", outstanding), zap.Int("watermark", leakWatermark))
	}
	return (*C.uint8_t)(ptr)
}

//export goFree
func goFree(ctx C.uintptr_t, ptr *C.uint8_t, length C.int32_t) {
	c := commsFromCtx(ctx)
	addr := uintptr(unsafe.Pointer(ptr))

	c.mu.Lock()
	_, known := c.packets[addr]
	if known {
		delete(c.packets, addr)
	}
	c.mu.Unlock()

	if !known {
		// Freeing an address the host never allocated/delivered is an ABI
		// violation severe enough that continuing would risk corrupting the
		// host's heap; abort rather than silently ignore it.
		panic("abi: free of unknown packet address")
	}
	C.free(unsafe.Pointer(ptr))
}

//export goSend
func goSend(ctx C.uintptr_t, ptr *C.uint8_t, length C.int32_t) C.int32_t {
	c := commsFromCtx(ctx)
	if length <= 0 {
		return -1
	}
	buf := append([]byte(nil), unsafe.Slice((*byte)(ptr), int(length))...)

	c.mu.Lock()
	delete(c.packets, uintptr(unsafe.Pointer(ptr)))
	c.mu.Unlock()
	C.free(unsafe.Pointer(ptr))

	select {
	case c.outbound <- buf:
		return 0
	default:
		return -1
	}
}

//export goControlWrite
func goControlWrite(ctx C.uintptr_t, ptr *C.uint8_t, length C.int32_t) C.int32_t {
	c := commsFromCtx(ctx)
	if length <= 0 {
		return -1
	}
	buf := append([]byte(nil), unsafe.Slice((*byte)(ptr), int(length))...)

	c.mu.Lock()
	delete(c.packets, uintptr(unsafe.Pointer(ptr)))
	c.mu.Unlock()
	C.free(unsafe.Pointer(ptr))

	select {
	case c.control <- buf:
		return 0
	default:
		return -1
	}
}

//export goTryRecv
func goTryRecv(ctx C.uintptr_t, out **C.uint8_t) C.int32_t {
	c := commsFromCtx(ctx)
	select {
	case msg := <-c.inbound:
		ptr := C.malloc(C.size_t(len(msg)))
		if ptr == nil {
			return -1
		}
		dst := unsafe.Slice((*byte)(ptr), len(msg))
		copy(dst, msg)

		c.mu.Lock()
		c.packets[uintptr(ptr)] = dst
		c.mu.Unlock()

		*out = (*C.uint8_t)(ptr)
		return C.int32_t(len(msg))
	default:
		return 0
	}
}
