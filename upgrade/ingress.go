// Package upgrade implements the ingress the issuer CLI pushes a new driver
// artifact through: accept one connection, read a framed DriverInfo plus
// the artifact bytes, verify them, publish the new current driver, and
// announce it to every connected client.
package upgrade

import (
	"context"
	"crypto/ed25519"
	"io"
	"net"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atsika/driverhub/artifact"
	"github.com/atsika/driverhub/current"
	"github.com/atsika/driverhub/wire"
)

// Broadcaster is the subset of server.Server's surface the ingress needs;
// kept as an interface here so upgrade never imports server (server already
// imports current, and ingress only needs to publish, not accept clients).
type Broadcaster interface {
	PublishUpgrade(d *current.Driver)
}

// Ingress listens for issuer uploads on a separate address from the main
// client-facing server.
type Ingress struct {
	log       *zap.Logger
	slot      *current.Slot
	bcast     Broadcaster
	issuerKey ed25519.PublicKey

	// httpBase is the client-reachable base URL of the byte server (e.g.
	// "http://localhost:2003"), or "" if no byte server is configured. An
	// artifact larger than artifact.InlineMax is published with a URI under
	// this base instead of being offered inline.
	httpBase string
}

// New builds an Ingress. issuerKey authenticates uploaded artifacts before
// they are ever published to clients. httpBase is the base URL of the byte
// server that oversized artifacts are served from; pass "" if none is
// running (oversized artifacts then fall back to the inline path, which the
// client's handshake connection will carry for however long that takes).
func New(log *zap.Logger, slot *current.Slot, bcast Broadcaster, issuerKey ed25519.PublicKey, httpBase string) *Ingress {
	return &Ingress{log: log, slot: slot, bcast: bcast, issuerKey: issuerKey, httpBase: httpBase}
}

// ListenAndServe listens on addr and handles uploads until ctx is canceled.
func (ig *Ingress) ListenAndServe(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "upgrade: listen on %s", addr)
	}
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
			return errors.Wrap(err, "upgrade: accept")
		}
		go ig.handleUpload(conn)
	}
}

// handleUpload reads one DriverInfo frame followed by exactly Info.Len raw
// bytes, verifies them against issuerKey, and on success publishes the
// result as the new current driver and broadcasts a ProposeUpgrade.
func (ig *Ingress) handleUpload(conn net.Conn) {
	defer conn.Close()
	pushID := uuid.New().String()

	var info wire.DriverInfo
	if err := wire.ReadTyped(conn, &info); err != nil {
		ig.log.Warn("upgrade: read driver info failed", zap.String("push", pushID), zap.Error(err))
		return
	}

	raw := make([]byte, info.Len)
	if _, err := io.ReadFull(conn, raw); err != nil {
		ig.log.Warn("upgrade: read artifact bytes failed", zap.String("push", pushID), zap.Error(err))
		return
	}

	if err := artifact.Verify(ig.issuerKey, info, raw); err != nil {
		ig.log.Warn("upgrade: rejected artifact, failed verification", zap.String("push", pushID), zap.Error(err))
		return
	}

	uri := ig.resolveURI(info)
	drv := &current.Driver{Info: info, Bytes: raw, URI: uri}
	ig.slot.Store(drv)
	ig.bcast.PublishUpgrade(drv)
	ig.log.Info("upgrade: published new driver",
		zap.String("push", pushID), zap.String("digest", info.Digest.Short()), zap.Uint64("len", info.Len), zap.String("uri", uri))
}

// resolveURI decides whether info's artifact should be offered inline
// (empty URI) or fetched from the byte server: anything over
// artifact.InlineMax goes through the byte server, and anything up to and
// including artifact.InlineMax is offered inline. With no byte server
// configured, every artifact is offered inline regardless of size.
func (ig *Ingress) resolveURI(info wire.DriverInfo) string {
	if ig.httpBase == "" || info.Len <= artifact.InlineMax {
		return ""
	}
	return ig.httpBase + "/" + info.Digest.String()
}
