// Package artifact implements the signed driver artifact pipeline: signing
// a driver build, verifying a fetched one against its published metadata,
// and the on-disk <name>.meta/<name>.bin convention the issuer tool writes.
package artifact

import (
	"bytes"
	"crypto/ed25519"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/atsika/driverhub/digest"
	"github.com/atsika/driverhub/internal/obs"
	"github.com/atsika/driverhub/wire"
)

// InlineMax is the largest artifact that may be transferred inline on the
// handshake connection; larger artifacts must be served via the byte server.
const InlineMax = 100_000_000

// ErrVerification is the kind returned for any artifact check failure: a
// length mismatch, a digest mismatch, or a signature mismatch. It is marked
// as obs.Verification so callers can check either sentinel with errors.Is.
var ErrVerification = errors.Mark(errors.New("artifact: verification failed"), obs.Verification)

// Artifact is a signed driver binary held in memory: its bytes plus the
// metadata describing them. Both halves are immutable once constructed.
type Artifact struct {
	Bytes []byte
	Info  wire.DriverInfo
}

// Sign computes the digest and detached signature of b and returns the
// resulting Artifact. The caller is responsible for persisting it.
func Sign(sk ed25519.PrivateKey, b []byte) Artifact {
	return Artifact{
		Bytes: b,
		Info: wire.DriverInfo{
			Len:    uint64(len(b)),
			Digest: digest.Of(b),
			Sig:    digest.Sign(sk, b),
		},
	}
}

// Signer is satisfied by anything that can produce a detached Ed25519
// signature over b without handing back the raw private key, letting
// callers sign artifacts while keeping key material encapsulated (see
// internal/keys.Signer).
type Signer interface {
	Sign(b []byte) []byte
}

// SignWith is Sign for callers holding a Signer rather than a raw
// ed25519.PrivateKey.
func SignWith(s Signer, b []byte) Artifact {
	var sig digest.Signature
	copy(sig[:], s.Sign(b))
	return Artifact{
		Bytes: b,
		Info: wire.DriverInfo{
			Len:    uint64(len(b)),
			Digest: digest.Of(b),
			Sig:    sig,
		},
	}
}

// Verify checks that b's length, hash, and signature all agree with info
// under the given public key. All three checks must pass or the artifact is
// rejected; any mismatch is reported as ErrVerification.
func Verify(pk ed25519.PublicKey, info wire.DriverInfo, b []byte) error {
	if uint64(len(b)) != info.Len {
		return errors.Wrapf(ErrVerification, "length mismatch: info says %d, got %d", info.Len, len(b))
	}
	got := digest.Of(b)
	if got != info.Digest {
		return errors.Wrapf(ErrVerification, "digest mismatch: info says %s, got %s", info.Digest.Short(), got.Short())
	}
	if !digest.Verify(pk, b, info.Sig) {
		return errors.Wrapf(ErrVerification, "signature invalid for digest %s", info.Digest.Short())
	}
	return nil
}

// Load reads back an Artifact previously written by WriteFiles, verifying
// it against pk before returning it.
func Load(pk ed25519.PublicKey, metaPath, binPath string) (Artifact, error) {
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return Artifact{}, errors.Wrapf(err, "artifact: read metadata %s", metaPath)
	}
	var info wire.DriverInfo
	if err := wire.ReadTyped(bytes.NewReader(metaBytes), &info); err != nil {
		return Artifact{}, errors.Wrapf(ErrVerification, "artifact: decode metadata %s: %v", metaPath, err)
	}

	b, err := os.ReadFile(binPath)
	if err != nil {
		return Artifact{}, errors.Wrapf(err, "artifact: read bytes %s", binPath)
	}

	if err := Verify(pk, info, b); err != nil {
		return Artifact{}, err
	}
	return Artifact{Bytes: b, Info: info}, nil
}

// WriteFiles writes a's metadata as a framed DriverInfo to metaPath and its
// bytes to binPath, the convention the issuer tool uses for <name>.meta and
// <name>.bin.
func WriteFiles(a Artifact, metaPath, binPath string) error {
	var buf bytes.Buffer
	if err := wire.WriteTyped(&buf, &a.Info); err != nil {
		return errors.Wrap(err, "artifact: encode metadata")
	}
	if err := os.WriteFile(metaPath, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "artifact: write metadata %s", metaPath)
	}
	if err := os.WriteFile(binPath, a.Bytes, 0o644); err != nil {
		return errors.Wrapf(err, "artifact: write bytes %s", binPath)
	}
	return nil
}
