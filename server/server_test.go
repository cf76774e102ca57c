package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atsika/driverhub/current"
	"github.com/atsika/driverhub/digest"
	"github.com/atsika/driverhub/wire"
)

func driverFixture() *current.Driver {
	bytes := []byte("a native driver, allegedly")
	d := digest.Of(bytes)
	return &current.Driver{
		Info:  wire.DriverInfo{Len: uint64(len(bytes)), Digest: d},
		Bytes: bytes,
	}
}

func TestBuildWelcomeNoDriverIsObsolete(t *testing.T) {
	s := New(zap.NewNop(), current.NewSlot())
	w := s.buildWelcome(&wire.Hello{Kind: wire.HelloNewbie}, nil)
	require.Equal(t, wire.WelcomeObsolete, w.Kind)
}

func TestBuildWelcomeNewbieAlwaysDownloads(t *testing.T) {
	s := New(zap.NewNop(), current.NewSlot())
	drv := driverFixture()
	w := s.buildWelcome(&wire.Hello{Kind: wire.HelloNewbie}, drv)
	require.Equal(t, wire.WelcomeDownload, w.Kind)
	require.Equal(t, drv.Info, w.Info)
}

func TestBuildWelcomeCachedMatchIsCurrent(t *testing.T) {
	s := New(zap.NewNop(), current.NewSlot())
	drv := driverFixture()
	w := s.buildWelcome(&wire.Hello{Kind: wire.HelloCached, Digest: drv.Digest()}, drv)
	require.Equal(t, wire.WelcomeCurrent, w.Kind)
}

func TestBuildWelcomeCachedMismatchDownloads(t *testing.T) {
	s := New(zap.NewNop(), current.NewSlot())
	drv := driverFixture()
	w := s.buildWelcome(&wire.Hello{Kind: wire.HelloCached, Digest: digest.Of([]byte("stale"))}, drv)
	require.Equal(t, wire.WelcomeDownload, w.Kind)
}

func TestBuildWelcomeOneshotMatchIsCurrent(t *testing.T) {
	s := New(zap.NewNop(), current.NewSlot())
	drv := driverFixture()
	w := s.buildWelcome(&wire.Hello{Kind: wire.HelloOneshot, Digest: drv.Digest()}, drv)
	require.Equal(t, wire.WelcomeCurrent, w.Kind)
}

func TestBuildWelcomeOneshotMismatchIsObsolete(t *testing.T) {
	s := New(zap.NewNop(), current.NewSlot())
	drv := driverFixture()
	w := s.buildWelcome(&wire.Hello{Kind: wire.HelloOneshot, Digest: digest.Of([]byte("stale"))}, drv)
	require.Equal(t, wire.WelcomeObsolete, w.Kind)
}

// A oneshot client statically links its driver; a stale digest means it must
// be retired rather than offered a download it has no way to apply.
func TestBuildWelcomeOneshotScenarioD(t *testing.T) {
	s := New(zap.NewNop(), current.NewSlot())
	drv := &current.Driver{
		Info: wire.DriverInfo{Digest: digest.Of([]byte("01..ef fixture"))},
	}
	w := s.buildWelcome(&wire.Hello{Kind: wire.HelloOneshot, Digest: digest.Zero}, drv)
	require.Equal(t, wire.WelcomeObsolete, w.Kind)
}

func TestHandleConnInlineHandshake(t *testing.T) {
	slot := current.NewSlot()
	slot.Store(driverFixture())
	s := New(zap.NewNop(), slot)

	client, serverConn := net.Pipe()
	go s.handleConn(serverConn)

	require.NoError(t, wire.WriteTyped(client, &wire.Hello{Kind: wire.HelloNewbie}))

	welcome := &wire.Welcome{}
	require.NoError(t, wire.ReadTyped(client, welcome))
	require.Equal(t, wire.WelcomeDownload, welcome.Kind)
	require.Empty(t, welcome.URI)

	raw := make([]byte, welcome.Info.Len)
	_, err := readFull(client, raw)
	require.NoError(t, err)
	require.Equal(t, []byte("a native driver, allegedly"), raw)

	require.NoError(t, wire.WriteTyped(client, &wire.UpRequest{Kind: wire.UpRequestBye}))
	client.Close()

	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
