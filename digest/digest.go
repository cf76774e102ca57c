// Package digest provides the fixed-size content hash and detached signature
// primitives used to identify and authenticate driver artifacts.
package digest

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/sha3"
)

// Len is the byte length of a Digest: a 256-bit extendable-output hash.
const Len = 32

// SigLen is the byte length of a detached Ed25519 signature.
const SigLen = ed25519.SignatureSize

// shortHexLen is the number of hex characters shown in Digest.Short().
const shortHexLen = 12

// Digest stores a 256-bit SHAKE128 hash over an artifact's bytes.
type Digest [Len]byte

// Zero is the all-zero digest, used as a sentinel for "no current driver".
var Zero Digest

// Signature stores a detached Ed25519 signature over an artifact's bytes.
type Signature [SigLen]byte

// ErrBadDigest is returned when a string fails to parse as a digest.
var ErrBadDigest = errors.New("digest: malformed hex encoding")

// Of hashes bytes into a Digest. SHAKE128 is an extendable-output function;
// Len bytes of output are read, mirroring the 256-bit digest produced by the
// original artifact pipeline this protocol was modelled on.
func Of(b []byte) Digest {
	var d Digest
	h := sha3.NewShake128()
	h.Write(b)
	if _, err := h.Read(d[:]); err != nil {
		// sha3's XOF Read never errors for an in-memory sponge; a panic here
		// would indicate a broken stdlib, not a caller mistake.
		panic(err)
	}
	return d
}

// String returns the canonical lowercase-hex encoding (64 characters).
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first shortHexLen hex characters, for display.
func (d Digest) Short() string {
	return d.String()[:shortHexLen]
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Zero
}

// Parse decodes a canonical lowercase-hex digest string.
func Parse(s string) (Digest, error) {
	var d Digest
	if len(s) != Len*2 {
		return d, errors.Wrapf(ErrBadDigest, "want %d hex chars, got %d", Len*2, len(s))
	}
	n, err := hex.Decode(d[:], []byte(strings.ToLower(s)))
	if err != nil {
		return d, errors.Wrapf(ErrBadDigest, "%v", err)
	}
	if n != Len {
		return d, errors.Wrapf(ErrBadDigest, "short decode: %d bytes", n)
	}
	return d, nil
}

// String returns the hex encoding of a signature, for diagnostics.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// Sign produces a detached signature over b using sk.
func Sign(sk ed25519.PrivateKey, b []byte) Signature {
	var s Signature
	copy(s[:], ed25519.Sign(sk, b))
	return s
}

// Verify reports whether sig is a valid detached signature over b under pk.
func Verify(pk ed25519.PublicKey, b []byte, sig Signature) bool {
	return ed25519.Verify(pk, b, sig[:])
}
