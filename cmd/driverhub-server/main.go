package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/atsika/driverhub/current"
	"github.com/atsika/driverhub/httpserve"
	"github.com/atsika/driverhub/internal/keys"
	"github.com/atsika/driverhub/internal/obs"
	"github.com/atsika/driverhub/server"
	"github.com/atsika/driverhub/upgrade"
)

func main() {
	addrFlag := flag.String("addr", ":7420", "Client-facing listen address")
	upgradeAddrFlag := flag.String("upgrade-addr", "127.0.0.1:7421", "Upgrade ingress listen address")
	httpAddrFlag := flag.String("http-addr", "", "If set, also serve fetched-by-URI bytes on this address")
	httpPublicAddrFlag := flag.String("http-public-addr", "", "Host:port clients use to reach the byte server; defaults to -http-addr")
	issuerKeyFlag := flag.String("issuer-key", "", "Hex-encoded Ed25519 public key authorized to push new drivers")
	devFlag := flag.Bool("dev", false, "Use development (console) logging instead of JSON")
	flag.Usage = printUsage
	flag.Parse()

	log, err := obs.New(*devFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *issuerKeyFlag == "" {
		obs.Fatal(1, fmt.Errorf("main: -issuer-key is required"))
	}
	keyBytes, err := hex.DecodeString(*issuerKeyFlag)
	if err != nil || len(keyBytes) != ed25519.PublicKeySize {
		obs.Fatal(1, fmt.Errorf("main: -issuer-key must be a %d-byte hex string", ed25519.PublicKeySize))
	}
	issuerKey := ed25519.PublicKey(keyBytes)
	log.Info("main: trusting issuer key", zap.String("fingerprint", keys.Fingerprint(issuerKey)))

	httpBase := ""
	if *httpAddrFlag != "" {
		public := *httpPublicAddrFlag
		if public == "" {
			public = *httpAddrFlag
		}
		httpBase = "http://" + public
	}

	slot := current.NewSlot()
	srv := server.New(log, slot, server.WithAddr(*addrFlag))
	ig := upgrade.New(log, slot, srv, issuerKey, httpBase)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 3)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	go func() { errCh <- ig.ListenAndServe(ctx, *upgradeAddrFlag) }()

	if *httpAddrFlag != "" {
		h := httpserve.New(log, slot)
		httpSrv := &http.Server{Addr: *httpAddrFlag, Handler: h}
		go func() { errCh <- httpSrv.ListenAndServe() }()
		go func() {
			<-ctx.Done()
			httpSrv.Close()
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("main: shutting down")
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			if errors.Is(err, obs.AlreadyRunning) {
				obs.Fatal(2, err)
			}
			obs.Fatal(1, err)
		}
	}
}

func printUsage() {
	fmt.Println("driverhub-server - serve driver artifacts to connected clients")
	fmt.Println("Usage:")
	fmt.Println("  driverhub-server -issuer-key <hex> [-addr :7420] [-upgrade-addr host:port] [-http-addr host:port] [-http-public-addr host:port] [-dev]")
}
