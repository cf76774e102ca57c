package wire

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// ErrShortPayload is returned when a payload ends before a schema value
// finishes decoding.
var ErrShortPayload = errors.New("wire: payload too short")

// cursor is a forward-only reader over an in-memory frame payload.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) empty() bool { return c.pos >= len(c.buf) }

func (c *cursor) take(n int) ([]byte, error) {
	if len(c.buf)-c.pos < n {
		return nil, ErrShortPayload
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) byte() (byte, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) uint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *cursor) uint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// bytesField reads a uint32-length-prefixed byte sequence.
func (c *cursor) bytesField() ([]byte, error) {
	n, err := c.uint32()
	if err != nil {
		return nil, err
	}
	return c.take(int(n))
}

func (c *cursor) stringField() (string, error) {
	b, err := c.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func appendByte(buf []byte, b byte) []byte {
	return append(buf, b)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBytesField(buf []byte, b []byte) []byte {
	buf = appendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func appendStringField(buf []byte, s string) []byte {
	return appendBytesField(buf, []byte(s))
}
