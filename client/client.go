// Package client drives the driver-fetching connection to a driverhub
// server: handshake, initial (or cached) fetch, and the steady-state pump
// that relays application frames between the loaded driver and the server
// while watching for a pushed upgrade.
package client

import (
	"context"
	"crypto/ed25519"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/atsika/driverhub/artifact"
	"github.com/atsika/driverhub/digest"
	"github.com/atsika/driverhub/internal/obs"
	"github.com/atsika/driverhub/loader"
	"github.com/atsika/driverhub/store"
	"github.com/atsika/driverhub/wire"
)

// rootName is the store root under which the currently-cached driver's
// digest is published, so a restart can send Hello::Cached instead of
// re-downloading an identical driver.
const rootName = "current"

// Client owns the connection lifecycle to a single driverhub server.
type Client struct {
	cfg   *Config
	log   *zap.Logger
	store *store.Store // nil when running without persistence (oneshot-only)
	ld    *loader.Loader

	state          atomic.Int32
	reconnectTries int
}

// New builds a Client. ld is the loader the client swaps fetched drivers
// into; it may be shared with other subsystems (e.g. a host tick loop
// reading ld.Current() for rendering).
func New(log *zap.Logger, ld *loader.Loader, opts ...Option) (*Client, error) {
	cfg := applyConfig(opts)
	if cfg.addr == "" {
		return nil, errors.New("client: WithAddr is required")
	}
	if len(cfg.issuerKey) != ed25519.PublicKeySize {
		return nil, errors.New("client: WithIssuerKey is required")
	}

	var st *store.Store
	if cfg.storeDir != "" && !cfg.oneshot {
		var err error
		st, err = store.Open(cfg.storeDir)
		if err != nil {
			return nil, errors.Wrap(err, "client: open store")
		}
	}

	c := &Client{cfg: cfg, log: log, store: st, ld: ld}
	c.state.Store(int32(StateConnecting))
	return c, nil
}

// State returns the client's current lifecycle phase.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
	c.log.Debug("client: state transition", zap.Stringer("state", s))
}

// Run connects, handshakes, fetches, and pumps, reconnecting with the
// configured backoff on a dropped connection. It returns when ctx is
// canceled, when the server tells the client its cached driver is
// permanently obsolete, or when more consecutive connections fail than the
// configured reconnect attempts allow; the last two leave the client in
// StateTerminated, a non-recoverable end state.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.runOnce(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, errTerminated) {
			c.setState(StateTerminated)
			return err
		}

		c.setState(StateReconnecting)
		c.reconnectTries++
		if c.reconnectTries > c.cfg.reconnectAttempts {
			c.setState(StateTerminated)
			return errors.Wrap(err, "client: exhausted reconnect attempts")
		}

		c.log.Info("client: reconnecting after dropped connection",
			zap.Error(err), zap.Int("attempt", c.reconnectTries), zap.Int("max", c.cfg.reconnectAttempts))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.reconnectDelay):
		}
	}
}

var errTerminated = errors.New("client: server declared this driver permanently obsolete")

func (c *Client) runOnce(ctx context.Context) error {
	c.setState(StateConnecting)
	dialer := net.Dialer{Timeout: c.cfg.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.addr)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "client: dial"), obs.Io)
	}
	defer conn.Close()

	c.setState(StateHandshaking)
	welcome, err := c.handshake(conn)
	if err != nil {
		return err
	}

	if err := c.handleWelcome(conn, welcome); err != nil {
		return err
	}

	c.reconnectTries = 0
	c.setState(StatePumping)
	return c.pump(ctx, conn)
}

func (c *Client) cachedDigest() (digest.Digest, bool) {
	if c.store == nil {
		return digest.Zero, false
	}
	d, ok, err := c.store.Root(rootName)
	if err != nil || !ok {
		return digest.Zero, false
	}
	return d, true
}

func (c *Client) handshake(conn net.Conn) (*wire.Welcome, error) {
	hello := &wire.Hello{}
	switch {
	case c.cfg.oneshot:
		hello.Kind = wire.HelloOneshot
	default:
		if d, ok := c.cachedDigest(); ok {
			hello.Kind = wire.HelloCached
			hello.Digest = d
		} else {
			hello.Kind = wire.HelloNewbie
		}
	}

	if err := wire.WriteTyped(conn, hello); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "client: write hello"), obs.Io)
	}

	welcome := &wire.Welcome{}
	if err := wire.ReadTyped(conn, welcome); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "client: read welcome"), obs.Io)
	}
	return welcome, nil
}

// handleWelcome resolves a Welcome into a loaded driver: Current reuses the
// cached bytes, Obsolete terminates the session permanently, Download fetches
// (inline or out-of-band) and verifies before swapping the driver in.
func (c *Client) handleWelcome(conn net.Conn, w *wire.Welcome) error {
	switch w.Kind {
	case wire.WelcomeCurrent:
		d, ok := c.cachedDigest()
		if !ok {
			return errors.New("client: server says Current but no cached driver on disk")
		}
		return c.swapFromStore(d)

	case wire.WelcomeObsolete:
		return errTerminated

	case wire.WelcomeDownload:
		return c.fetchAndSwap(conn, w.URI, w.Info)

	default:
		return errors.Newf("client: unknown welcome kind %d", w.Kind)
	}
}

func (c *Client) swapFromStore(d digest.Digest) error {
	if c.store == nil {
		return errors.New("client: no store configured, cannot load cached driver")
	}
	return c.ld.Swap(c.store.Path(d), d)
}

// fetchAndSwap retrieves driver bytes per uri's inline/out-of-band
// convention (see wire.Welcome doc), verifies them against info, persists
// them (unless running oneshot), and hot-swaps the loader.
func (c *Client) fetchAndSwap(conn net.Conn, uri string, info wire.DriverInfo) error {
	c.setState(StateFetching)

	var raw []byte
	var err error
	if uri == "" {
		raw = make([]byte, info.Len)
		if _, err = io.ReadFull(conn, raw); err != nil {
			return errors.Wrap(err, "client: inline fetch")
		}
	} else {
		raw, err = c.fetchHTTP(uri)
		if err != nil {
			return err
		}
	}

	if err := artifact.Verify(c.cfg.issuerKey, info, raw); err != nil {
		return errors.Wrap(err, "client: verify fetched driver")
	}

	path, d, err := c.persist(raw, info)
	if err != nil {
		return err
	}
	return c.ld.Swap(path, d)
}

func (c *Client) fetchHTTP(uri string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.Wrap(err, "client: build fetch request")
	}
	resp, err := c.cfg.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "client: fetch driver")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("client: fetch driver: unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// persist saves raw to the content-addressed store and publishes it as the
// current root, or (with no store configured, e.g. pure oneshot mode) writes
// it to a scratch temp file purely so the loader has a path to dlopen.
func (c *Client) persist(raw []byte, info wire.DriverInfo) (path string, d digest.Digest, err error) {
	d = digest.Of(raw)
	if d != info.Digest {
		return "", digest.Zero, errors.New("client: fetched bytes digest does not match announced digest")
	}

	if c.store != nil {
		if d, err = c.store.Save(raw); err != nil {
			return "", digest.Zero, errors.Wrap(err, "client: save fetched driver")
		}
		if err = c.store.SetRoot(rootName, d); err != nil {
			return "", digest.Zero, errors.Wrap(err, "client: publish current root")
		}
		return c.store.Path(d), d, nil
	}

	f, err := os.CreateTemp("", "driverhub-oneshot-*.so")
	if err != nil {
		return "", digest.Zero, errors.Wrap(err, "client: create scratch driver file")
	}
	defer f.Close()
	if _, err := f.Write(raw); err != nil {
		return "", digest.Zero, errors.Wrap(err, "client: write scratch driver file")
	}
	return filepath.Clean(f.Name()), d, nil
}

// pump relays frames between the connection and the currently loaded
// driver's comms until the connection errors out or ctx is canceled. A
// dropped read/write here surfaces as a plain error to runOnce, which feeds
// the reconnect backoff in Run; it is never itself a terminal condition.
func (c *Client) pump(ctx context.Context, conn net.Conn) error {
	drv := c.ld.Current()
	if drv == nil {
		return errors.New("client: pump called with no driver loaded")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErrCh := make(chan error, 1)
	go func() { readErrCh <- c.pumpReads(conn, drv) }()

	writeErrCh := make(chan error, 1)
	go func() { writeErrCh <- c.pumpWrites(ctx, conn, drv) }()

	select {
	case err := <-readErrCh:
		cancel()
		<-writeErrCh
		return err
	case err := <-writeErrCh:
		conn.Close() // unblock the concurrent read
		<-readErrCh
		return err
	case <-ctx.Done():
		conn.Close()
		<-readErrCh
		<-writeErrCh
		return ctx.Err()
	}
}

func (c *Client) pumpReads(conn net.Conn, drv *loader.Driver) error {
	for {
		resp := &wire.DownResponse{}
		if err := wire.ReadTyped(conn, resp); err != nil {
			return errors.Mark(errors.Wrap(err, "client: read down-response"), obs.Io)
		}
		switch resp.Kind {
		case wire.DownResponsePong:
			c.log.Debug("client: pong", zap.Uint32("seq", resp.Pong))
		case wire.DownResponseProposeUpgrade:
			c.log.Info("client: server proposed an upgrade", zap.String("digest", resp.Info.Digest.Short()))
			if err := c.fetchAndSwap(conn, resp.URI, resp.Info); err != nil {
				return errors.Wrap(err, "client: apply proposed upgrade")
			}
			drv = c.ld.Current()
		case wire.DownResponseApp:
			drv.Comms.Deliver(resp.App)
		default:
			return errors.Newf("client: unknown down-response kind %d", resp.Kind)
		}
	}
}

func (c *Client) pumpWrites(ctx context.Context, conn net.Conn, drv *loader.Driver) error {
	ticker := time.NewTicker(c.cfg.pingInterval)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-drv.Comms.Outbound():
			if !ok {
				return errors.Mark(errors.New("client: driver outbound channel closed"), obs.BrokenComms)
			}
			req := &wire.UpRequest{Kind: wire.UpRequestApp, App: frame}
			if err := wire.WriteTyped(conn, req); err != nil {
				return errors.Mark(errors.Wrap(err, "client: write app frame"), obs.Io)
			}

		case <-drv.Comms.Control():
			// The driver asked to fetch a different asset out-of-band. This
			// build has no upgrade-ingress client wired up; log and drop.
			c.log.Warn("client: driver issued a control directive, no ingress client wired")

		case <-ticker.C:
			seq++
			req := &wire.UpRequest{Kind: wire.UpRequestPing, Ping: seq}
			if err := wire.WriteTyped(conn, req); err != nil {
				return errors.Mark(errors.Wrap(err, "client: write ping"), obs.Io)
			}
		}
	}
}
