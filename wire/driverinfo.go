package wire

import (
	"github.com/atsika/driverhub/digest"
)

// DriverInfo describes one signed artifact: its exact byte length, content
// digest, and the detached signature over its bytes. All three fields must
// agree with the artifact bytes for the artifact to be accepted; see
// artifact.Verify.
type DriverInfo struct {
	Len    uint64
	Digest digest.Digest
	Sig    digest.Signature
}

func (d *DriverInfo) marshal(buf []byte) []byte {
	buf = appendUint64(buf, d.Len)
	buf = append(buf, d.Digest[:]...)
	buf = append(buf, d.Sig[:]...)
	return buf
}

func (d *DriverInfo) unmarshal(c *cursor) error {
	length, err := c.uint64()
	if err != nil {
		return err
	}
	digBytes, err := c.take(digest.Len)
	if err != nil {
		return err
	}
	sigBytes, err := c.take(digest.SigLen)
	if err != nil {
		return err
	}
	d.Len = length
	copy(d.Digest[:], digBytes)
	copy(d.Sig[:], sigBytes)
	return nil
}
