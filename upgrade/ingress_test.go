package upgrade

import (
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atsika/driverhub/artifact"
	"github.com/atsika/driverhub/current"
	"github.com/atsika/driverhub/digest"
	"github.com/atsika/driverhub/wire"
)

type fakeBroadcaster struct {
	published chan *current.Driver
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{published: make(chan *current.Driver, 1)}
}

func (f *fakeBroadcaster) PublishUpgrade(d *current.Driver) { f.published <- d }

func TestHandleUploadPublishesVerifiedArtifact(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	slot := current.NewSlot()
	bcast := newFakeBroadcaster()
	ig := New(zap.NewNop(), slot, bcast, pub, "")

	client, serverConn := net.Pipe()
	go ig.handleUpload(serverConn)

	a := artifact.Sign(priv, []byte("a fresh driver build"))
	require.NoError(t, wire.WriteTyped(client, &a.Info))
	go func() {
		_, _ = client.Write(a.Bytes)
	}()

	select {
	case drv := <-bcast.published:
		require.Equal(t, a.Info.Digest, drv.Digest())
		require.Equal(t, a.Bytes, drv.Bytes)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for publish")
	}

	require.NotNil(t, slot.Load())
	require.Equal(t, a.Info.Digest, slot.Load().Digest())
}

func TestResolveURINoHTTPBaseStaysInline(t *testing.T) {
	ig := New(zap.NewNop(), current.NewSlot(), newFakeBroadcaster(), nil, "")
	info := wire.DriverInfo{Len: artifact.InlineMax + 1, Digest: digest.Of([]byte("oversized"))}
	require.Empty(t, ig.resolveURI(info))
}

func TestResolveURIUnderThresholdStaysInline(t *testing.T) {
	ig := New(zap.NewNop(), current.NewSlot(), newFakeBroadcaster(), nil, "http://localhost:2003")
	info := wire.DriverInfo{Len: artifact.InlineMax, Digest: digest.Of([]byte("exactly at limit"))}
	require.Empty(t, ig.resolveURI(info))
}

func TestResolveURIOverThresholdPointsAtByteServer(t *testing.T) {
	ig := New(zap.NewNop(), current.NewSlot(), newFakeBroadcaster(), nil, "http://localhost:2003")
	d := digest.Of([]byte("oversized"))
	info := wire.DriverInfo{Len: artifact.InlineMax + 1, Digest: d}
	require.Equal(t, "http://localhost:2003/"+d.String(), ig.resolveURI(info))
}

func TestHandleUploadRejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	slot := current.NewSlot()
	bcast := newFakeBroadcaster()
	ig := New(zap.NewNop(), slot, bcast, pub, "")

	client, serverConn := net.Pipe()
	go ig.handleUpload(serverConn)

	a := artifact.Sign(otherPriv, []byte("untrusted build"))
	require.NoError(t, wire.WriteTyped(client, &a.Info))
	go func() {
		_, _ = client.Write(a.Bytes)
	}()

	select {
	case <-bcast.published:
		t.Fatal("should not publish an artifact signed by an untrusted key")
	case <-time.After(100 * time.Millisecond):
	}
	require.Nil(t, slot.Load())
}
