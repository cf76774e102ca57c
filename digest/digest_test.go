package digest

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func sample() Digest {
	var d Digest
	for i := range d {
		d[i] = 0x33
	}
	d[1] = 0x55
	d[12] = 0x23
	d[Len-2] = 0xf0
	return d
}

func TestDeterministic(t *testing.T) {
	b := []byte("hello driver")
	require.Equal(t, Of(b), Of(b))
}

func TestHexRoundtrip(t *testing.T) {
	d := sample()
	s := d.String()
	require.Len(t, s, Len*2)

	parsed, err := Parse(s)
	require.NoError(t, err)
	require.Equal(t, d, parsed)
}

func TestShort(t *testing.T) {
	d := sample()
	require.Equal(t, d.String()[:12], d.Short())
	require.Len(t, d.Short(), 12)
}

func TestParseRejectsBadLength(t *testing.T) {
	_, err := Parse("0000")
	require.ErrorIs(t, err, ErrBadDigest)
}

func TestParseRejectsBadHex(t *testing.T) {
	bad := "000000000000000000000000000000000000000000000000000000000000000x"[:Len*2]
	_, err := Parse(bad)
	require.ErrorIs(t, err, ErrBadDigest)
}

func TestSignVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	b := []byte("driver bytes")
	sig := Sign(priv, b)
	require.True(t, Verify(pub, b, sig))
	require.False(t, Verify(pub, []byte("tampered"), sig))
}
