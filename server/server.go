// Package server accepts client connections, performs the handshake against
// the currently published driver, and relays ping/app traffic and pushed
// upgrades to every connected client.
package server

import (
	"context"
	"net"
	"sync"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atsika/driverhub/current"
	"github.com/atsika/driverhub/internal/obs"
	"github.com/atsika/driverhub/wire"
)

// clientEntry is the server's bookkeeping for one connected client: its
// address for logging, and an outbox other goroutines (broadcast, ping
// replies) enqueue onto instead of writing the connection directly.
type clientEntry struct {
	id        string
	addr      string
	conn      net.Conn
	outbox    chan *wire.DownResponse
	closeOnce sync.Once
}

func (c *clientEntry) closeOutbox() {
	c.closeOnce.Do(func() { close(c.outbox) })
}

// Server accepts connections on a listening socket and serves the driver
// published in slot to each of them.
type Server struct {
	cfg  *Config
	log  *zap.Logger
	slot *current.Slot

	mu      sync.Mutex
	clients map[string]*clientEntry
}

// New builds a Server bound to slot, the shared current-driver publication
// point. slot is typically also wired into an upgrade.Ingress so that
// uploads there become visible here without any direct coupling.
func New(log *zap.Logger, slot *current.Slot, opts ...Option) *Server {
	return &Server{
		cfg:     applyConfig(opts),
		log:     log,
		slot:    slot,
		clients: make(map[string]*clientEntry),
	}
}

// ListenAndServe listens on cfg's address and serves connections until ctx
// is canceled or a fatal accept error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return errors.Mark(errors.Wrapf(err, "server: listen on %s", s.cfg.addr), obs.AlreadyRunning)
		}
		return errors.Wrapf(err, "server: listen on %s", s.cfg.addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from an already-bound listener until ctx is
// canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "server: accept")
		}
		go s.handleConn(conn)
	}
}

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) register(c *clientEntry) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	s.log.Info("server: client connected", zap.String("client", c.id), zap.String("addr", c.addr))
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	s.log.Info("server: client disconnected", zap.String("client", id))
}

// PublishUpgrade announces d to every connected client by enqueuing a
// ProposeUpgrade onto each client's outbox. A client whose outbox is full is
// assumed wedged and reaped (its connection closed) rather than allowed to
// back-pressure the broadcast for everyone else.
func (s *Server) PublishUpgrade(d *current.Driver) {
	s.mu.Lock()
	targets := make([]*clientEntry, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	msg := &wire.DownResponse{Kind: wire.DownResponseProposeUpgrade, URI: d.URI, Info: d.Info}
	for _, c := range targets {
		select {
		case c.outbox <- msg:
		default:
			s.log.Warn("server: client outbox full, dropping connection", zap.String("client", c.id))
			s.reap(c)
		}
	}
}

func (s *Server) reap(c *clientEntry) {
	s.unregister(c.id)
	c.closeOutbox()
	c.conn.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	hello := &wire.Hello{}
	if err := wire.ReadTyped(conn, hello); err != nil {
		s.log.Debug("server: read hello failed", zap.Error(err))
		return
	}

	drv := s.slot.Load()
	welcome := s.buildWelcome(hello, drv)
	if err := wire.WriteTyped(conn, welcome); err != nil {
		s.log.Debug("server: write welcome failed", zap.Error(err))
		return
	}

	if welcome.Kind == wire.WelcomeDownload && welcome.URI == "" {
		if _, err := conn.Write(drv.Bytes); err != nil {
			s.log.Debug("server: inline driver write failed", zap.Error(err))
			return
		}
	}
	if welcome.Kind == wire.WelcomeObsolete {
		return
	}

	id := uuid.New().String()
	entry := &clientEntry{id: id, addr: conn.RemoteAddr().String(), conn: conn, outbox: make(chan *wire.DownResponse, s.cfg.outboxCapacity)}
	s.register(entry)
	defer s.unregister(id)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for msg := range entry.outbox {
			if err := wire.WriteTyped(conn, msg); err != nil {
				s.log.Debug("server: write to client failed", zap.String("client", id), zap.Error(err))
				conn.Close()
				return
			}
		}
	}()

	if err := s.readLoop(conn, entry); err != nil {
		if errors.Is(err, obs.GracefulDisconnect) {
			s.log.Debug("server: client said bye", zap.String("client", id))
		} else {
			s.log.Debug("server: session ended", zap.String("client", id), zap.Error(err))
		}
	}
	entry.closeOutbox()
	<-writeDone
}

// buildWelcome compares the client's claimed state against the currently
// published driver. A Newbie hello always gets Download. A Cached hello
// gets Current if the digests match, Download if they don't. An Oneshot
// hello behaves like Cached except on a mismatch it gets Obsolete instead of
// Download: a oneshot client statically links its driver and cannot accept a
// replacement, so a stale digest simply means its build is no longer
// current, not that it should fetch one. Obsolete is also the verdict when
// the server has no driver to offer at all.
func (s *Server) buildWelcome(hello *wire.Hello, drv *current.Driver) *wire.Welcome {
	if drv == nil {
		return &wire.Welcome{Kind: wire.WelcomeObsolete}
	}
	switch hello.Kind {
	case wire.HelloCached:
		if hello.Digest == drv.Digest() {
			return &wire.Welcome{Kind: wire.WelcomeCurrent}
		}
		return &wire.Welcome{Kind: wire.WelcomeDownload, URI: drv.URI, Info: drv.Info}
	case wire.HelloOneshot:
		if hello.Digest == drv.Digest() {
			return &wire.Welcome{Kind: wire.WelcomeCurrent}
		}
		return &wire.Welcome{Kind: wire.WelcomeObsolete}
	case wire.HelloNewbie:
		return &wire.Welcome{Kind: wire.WelcomeDownload, URI: drv.URI, Info: drv.Info}
	default:
		return &wire.Welcome{Kind: wire.WelcomeObsolete}
	}
}

// readLoop returns obs.GracefulDisconnect when the peer sends Bye, and a
// wrapped read error otherwise (including plain EOF on an abrupt close).
func (s *Server) readLoop(conn net.Conn, entry *clientEntry) error {
	for {
		req := &wire.UpRequest{}
		if err := wire.ReadTyped(conn, req); err != nil {
			return errors.Mark(errors.Wrap(err, "server: read up-request"), obs.Io)
		}
		switch req.Kind {
		case wire.UpRequestPing:
			select {
			case entry.outbox <- &wire.DownResponse{Kind: wire.DownResponsePong, Pong: req.Ping}:
			default:
			}
		case wire.UpRequestBye:
			return errors.Mark(errors.New("server: client said bye"), obs.GracefulDisconnect)
		case wire.UpRequestApp:
			// Peer-to-peer app routing between clients is not part of this
			// distribution protocol; app frames a client sends are not
			// echoed anywhere by the server.
		}
	}
}
