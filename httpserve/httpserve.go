// Package httpserve implements the out-of-band HTTP byte server a Welcome's
// non-empty URI points clients at: GET /<hex-digest> serves the currently
// published driver's bytes if the requested digest matches, or 404s.
package httpserve

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/atsika/driverhub/current"
	"github.com/atsika/driverhub/digest"
)

// Handler serves driver bytes out of the shared current-driver slot. It
// never re-reads from disk per request: the bytes it serves are whatever
// the slot held at request time, which is exactly what the matching Welcome
// announced to the client.
type Handler struct {
	log  *zap.Logger
	slot *current.Slot
}

// New builds a Handler reading from slot.
func New(log *zap.Logger, slot *current.Slot) *Handler {
	return &Handler{log: log, slot: slot}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	hex := r.URL.Path
	if len(hex) > 0 && hex[0] == '/' {
		hex = hex[1:]
	}
	want, err := digest.Parse(hex)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	drv := h.slot.Load()
	if drv == nil || drv.Digest() != want {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(drv.Bytes)))
	if _, err := w.Write(drv.Bytes); err != nil {
		h.log.Debug("httpserve: write response failed", zap.Error(err))
	}
}
