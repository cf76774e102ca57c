package abi

/*
#include <stdint.h>
*/
import "C"

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAllocFreeRoundtrip(t *testing.T) {
	c := NewComms(zap.NewNop())
	ctx := C.uintptr_t(c.handle)

	ptr := goAlloc(ctx, 16)
	require.NotNil(t, ptr)
	require.Len(t, c.packets, 1)

	goFree(ctx, ptr, 16)
	require.Len(t, c.packets, 0)
}

func TestFreeUnknownPacketPanics(t *testing.T) {
	c := NewComms(zap.NewNop())
	ctx := C.uintptr_t(c.handle)

	ptr := goAlloc(ctx, 8)
	goFree(ctx, ptr, 8)

	require.Panics(t, func() {
		goFree(ctx, ptr, 8) // double free of an already-released address
	})
}

func TestSendDeliversToOutbound(t *testing.T) {
	c := NewComms(zap.NewNop())
	ctx := C.uintptr_t(c.handle)

	ptr := goAlloc(ctx, 5)
	rc := goSend(ctx, ptr, 5)
	require.EqualValues(t, 0, rc)

	select {
	case msg := <-c.Outbound():
		require.Len(t, msg, 5)
	default:
		t.Fatal("expected a frame on the outbound channel")
	}
}

func TestTryRecvDrainsInbound(t *testing.T) {
	c := NewComms(zap.NewNop())
	ctx := C.uintptr_t(c.handle)

	c.Deliver([]byte("hello"))

	var out *C.uint8_t
	n := goTryRecv(ctx, &out)
	require.EqualValues(t, 5, n)
	require.NotNil(t, out)
	goFree(ctx, out, n)
}

func TestTryRecvEmptyReturnsZero(t *testing.T) {
	c := NewComms(zap.NewNop())
	ctx := C.uintptr_t(c.handle)

	var out *C.uint8_t
	n := goTryRecv(ctx, &out)
	require.EqualValues(t, 0, n)
}
