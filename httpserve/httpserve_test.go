package httpserve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atsika/driverhub/current"
	"github.com/atsika/driverhub/digest"
	"github.com/atsika/driverhub/wire"
)

func TestServesMatchingDigest(t *testing.T) {
	slot := current.NewSlot()
	bytes := []byte("driver bytes")
	d := digest.Of(bytes)
	slot.Store(&current.Driver{Info: wire.DriverInfo{Len: uint64(len(bytes)), Digest: d}, Bytes: bytes})

	h := New(zap.NewNop(), slot)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/"+d.String(), nil)
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, bytes, rec.Body.Bytes())
}

func TestRejectsMismatchedDigest(t *testing.T) {
	slot := current.NewSlot()
	bytes := []byte("driver bytes")
	slot.Store(&current.Driver{Info: wire.DriverInfo{Len: uint64(len(bytes)), Digest: digest.Of(bytes)}, Bytes: bytes})

	h := New(zap.NewNop(), slot)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/"+digest.Of([]byte("other")).String(), nil)
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectsNonGet(t *testing.T) {
	h := New(zap.NewNop(), current.NewSlot())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/deadbeef", nil)
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectsMalformedPath(t *testing.T) {
	h := New(zap.NewNop(), current.NewSlot())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/not-hex", nil)
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
