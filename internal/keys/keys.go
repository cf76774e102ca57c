// Package keys implements passphrase-encrypted storage for the issuer's
// long-lived Ed25519 signing key. Plaintext key material exists only inside
// the issuer process: it is decrypted on load (and verified by a round-trip
// sign/verify), used for signing, and zeroized when Signer.Zeroize is called.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. N is the CPU/memory cost factor; these values match
// the interactive-login-strength profile recommended alongside scrypt.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// ErrWrongPassphrase is returned when decryption fails, almost always
// because the wrong passphrase was supplied.
var ErrWrongPassphrase = errors.New("keys: decryption failed (wrong passphrase?)")

// Signer holds a decrypted Ed25519 keypair in memory.
type Signer struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Generate creates a fresh Ed25519 keypair.
func Generate() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "keys: generate keypair")
	}
	return &Signer{Public: pub, private: priv}, nil
}

// Sign signs b with the held private key.
func (s *Signer) Sign(b []byte) []byte {
	return ed25519.Sign(s.private, b)
}

// Zeroize overwrites the in-memory private key. Callers should defer this
// immediately after obtaining a Signer.
func (s *Signer) Zeroize() {
	for i := range s.private {
		s.private[i] = 0
	}
}

// Seal encrypts the signer's private key under a passphrase-derived key and
// returns the ciphertext blob to persist to disk. The format is
// [salt(16)][nonce(12)][len(4) big-endian][ciphertext+tag].
func Seal(s *Signer, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "keys: read salt")
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, errors.Wrap(err, "keys: derive key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "keys: build cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "keys: build gcm")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "keys: read nonce")
	}

	sealed := gcm.Seal(nil, nonce, s.private, nil)

	out := make([]byte, 0, saltLen+len(nonce)+4+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	out = append(out, lenBuf[:]...)
	out = append(out, sealed...)
	return out, nil
}

// Open decrypts a blob written by Seal, and verifies it by round-tripping a
// sign/verify before returning the Signer.
func Open(blob []byte, passphrase string) (*Signer, error) {
	if len(blob) < saltLen+12+4 {
		return nil, errors.Wrap(ErrWrongPassphrase, "keys: truncated blob")
	}
	salt := blob[:saltLen]
	rest := blob[saltLen:]

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, errors.Wrap(err, "keys: derive key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "keys: build cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "keys: build gcm")
	}

	nonceLen := gcm.NonceSize()
	if len(rest) < nonceLen+4 {
		return nil, errors.Wrap(ErrWrongPassphrase, "keys: truncated blob")
	}
	nonce := rest[:nonceLen]
	length := binary.BigEndian.Uint32(rest[nonceLen : nonceLen+4])
	ciphertext := rest[nonceLen+4:]
	if uint32(len(ciphertext)) != length {
		return nil, errors.Wrap(ErrWrongPassphrase, "keys: length field mismatch")
	}

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(ErrWrongPassphrase, err.Error())
	}

	priv := ed25519.PrivateKey(plain)
	pub := priv.Public().(ed25519.PublicKey)

	// Verify by round-trip: a key loaded from disk must actually produce
	// signatures that the matching public key accepts.
	probe := []byte("driverhub key integrity probe")
	if !ed25519.Verify(pub, probe, ed25519.Sign(priv, probe)) {
		return nil, errors.New("keys: loaded key failed round-trip sign/verify")
	}

	return &Signer{Public: pub, private: priv}, nil
}

// Fingerprint renders pub as a did:key-style identifier (the multicodec
// ed25519-pub prefix, base58btc-encoded) for operators to cross-check out of
// band; it never appears on the wire, only in startup logs.
func Fingerprint(pub ed25519.PublicKey) string {
	buf := make([]byte, 2+len(pub))
	buf[0] = 0xed
	buf[1] = 0x01
	copy(buf[2:], pub)
	return "did:key:z" + base58.Encode(buf)
}

// SaveFile writes a sealed blob to path with owner-only permissions.
func SaveFile(path string, blob []byte) error {
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return errors.Wrapf(err, "keys: write %s", path)
	}
	return nil
}

// LoadFile reads a sealed blob from path.
func LoadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "keys: read %s", path)
	}
	return b, nil
}
