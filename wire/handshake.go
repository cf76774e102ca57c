package wire

import "github.com/atsika/driverhub/digest"

// HelloKind discriminates the client's first message on a new connection.
type HelloKind uint8

const (
	// HelloNewbie means the client has no cached driver at all.
	HelloNewbie HelloKind = iota
	// HelloCached means the client has a cached driver and may want an update.
	HelloCached
	// HelloOneshot means the client statically links a driver and refuses
	// any replacement; it only wants to know whether its digest is stale.
	HelloOneshot
)

// Hello is the client's first message on a new connection, before any
// driver is loaded.
type Hello struct {
	Kind   HelloKind
	Digest digest.Digest // set for HelloCached and HelloOneshot
}

func (h *Hello) marshal(buf []byte) []byte {
	buf = appendByte(buf, byte(h.Kind))
	switch h.Kind {
	case HelloCached, HelloOneshot:
		buf = append(buf, h.Digest[:]...)
	}
	return buf
}

func (h *Hello) unmarshal(c *cursor) error {
	kind, err := c.byte()
	if err != nil {
		return err
	}
	h.Kind = HelloKind(kind)
	switch h.Kind {
	case HelloCached, HelloOneshot:
		b, err := c.take(digest.Len)
		if err != nil {
			return err
		}
		copy(h.Digest[:], b)
	}
	return nil
}

// WelcomeKind discriminates the server's response to Hello.
type WelcomeKind uint8

const (
	// WelcomeCurrent means the client's cached digest already matches.
	WelcomeCurrent WelcomeKind = iota
	// WelcomeObsolete means an Oneshot client's digest is no longer
	// current; the session should terminate.
	WelcomeObsolete
	// WelcomeDownload means the client should fetch from URI and verify
	// against Info. An empty URI is the inline sentinel: read Info.Len
	// bytes off the same connection next, rather than fetching out of band.
	WelcomeDownload
)

// Welcome is the server's handshake response.
type Welcome struct {
	Kind WelcomeKind
	URI  string
	Info DriverInfo
}

func (w *Welcome) marshal(buf []byte) []byte {
	buf = appendByte(buf, byte(w.Kind))
	if w.Kind == WelcomeDownload {
		buf = appendStringField(buf, w.URI)
		buf = w.Info.marshal(buf)
	}
	return buf
}

func (w *Welcome) unmarshal(c *cursor) error {
	kind, err := c.byte()
	if err != nil {
		return err
	}
	w.Kind = WelcomeKind(kind)
	if w.Kind == WelcomeDownload {
		uri, err := c.stringField()
		if err != nil {
			return err
		}
		w.URI = uri
		if err := w.Info.unmarshal(c); err != nil {
			return err
		}
	}
	return nil
}
