package client

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atsika/driverhub/loader"
)

func testKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}

func TestNewRequiresAddr(t *testing.T) {
	_, err := New(zap.NewNop(), loader.New(zap.NewNop(), nil))
	require.Error(t, err)
}

func TestNewRequiresIssuerKey(t *testing.T) {
	_, err := New(zap.NewNop(), loader.New(zap.NewNop(), nil), WithAddr("127.0.0.1:9999"))
	require.Error(t, err)
}

func TestNewSucceedsWithRequiredOptions(t *testing.T) {
	pub, _ := testKeypair(t)
	c, err := New(zap.NewNop(), loader.New(zap.NewNop(), nil),
		WithAddr("127.0.0.1:9999"), WithIssuerKey(pub))
	require.NoError(t, err)
	require.Equal(t, StateConnecting, c.State())
}

func TestStateStringer(t *testing.T) {
	require.Equal(t, "pumping", StatePumping.String())
	require.Equal(t, "terminated", StateTerminated.String())
}
