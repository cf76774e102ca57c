// Package wire implements the length-prefixed framed codec used on every
// connection in this system, plus the canonical tagged-union encoding for
// the protocol's fixed message schema (Hello, Welcome, DriverInfo,
// UpRequest, DownResponse, UpControl).
package wire

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/atsika/driverhub/internal/obs"
)

// MaxFrameLen is the largest payload a single frame may carry: the header
// is a 16-bit big-endian length, so 65535 is the hard ceiling.
const MaxFrameLen = 65535

// HeaderSize is the byte length of a frame header.
const HeaderSize = 2

// ErrEmptyFrame is returned when a frame's payload length is zero.
var ErrEmptyFrame = errors.New("wire: zero-length frame")

// ErrFrameTooLarge is returned when a payload exceeds MaxFrameLen.
var ErrFrameTooLarge = errors.New("wire: frame payload exceeds 65535 bytes")

// ErrTrailingBytes is returned by typed decoding when a payload has bytes
// left over after a value was fully decoded; this signals a schema mismatch
// between peers. It is marked as obs.Schema so callers can check either
// sentinel with errors.Is.
var ErrTrailingBytes = errors.Mark(errors.New("wire: trailing bytes after decode"), obs.Schema)

// ReadFrame reads one frame: a 2-byte big-endian length header followed by
// exactly that many bytes. It fails on a short read or a zero-length frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "wire: read frame header")
	}

	length := binary.BigEndian.Uint16(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "wire: read frame payload")
	}
	return payload, nil
}

// WriteFrame writes one frame: a 2-byte big-endian length header followed by
// payload. It fails if payload is empty or exceeds MaxFrameLen.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if len(payload) > MaxFrameLen {
		return errors.Wrapf(ErrFrameTooLarge, "got %d bytes", len(payload))
	}

	var header [HeaderSize]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "wire: write frame header")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "wire: write frame payload")
	}
	return nil
}

// message is implemented by every typed schema value; it knows how to
// append its canonical encoding and how to parse itself back out of a byte
// cursor.
type message interface {
	marshal(buf []byte) []byte
	unmarshal(c *cursor) error
}

// WriteTyped encodes v canonically and writes it as a single frame.
func WriteTyped(w io.Writer, v message) error {
	buf := v.marshal(nil)
	return WriteFrame(w, buf)
}

// ReadTyped reads one frame and decodes it into v, rejecting trailing bytes.
func ReadTyped(r io.Reader, v message) error {
	payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	c := &cursor{buf: payload}
	if err := v.unmarshal(c); err != nil {
		return errors.Mark(errors.Wrap(err, "wire: schema decode"), obs.Schema)
	}
	if !c.empty() {
		return errors.Wrapf(ErrTrailingBytes, "%d bytes left", len(c.buf)-c.pos)
	}
	return nil
}
