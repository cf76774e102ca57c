package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atsika/driverhub/client"
	"github.com/atsika/driverhub/host"
	"github.com/atsika/driverhub/internal/obs"
	"github.com/atsika/driverhub/loader"
)

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:7420", "Server address to connect to")
	issuerKeyFlag := flag.String("issuer-key", "", "Hex-encoded Ed25519 public key to verify fetched drivers against")
	storeDirFlag := flag.String("store", "", "Content-addressed store directory for caching fetched drivers")
	oneshotFlag := flag.Bool("oneshot", false, "Always fetch fresh; never read or write the store")
	reconnectDelayFlag := flag.Duration("reconnect-delay", 2*time.Second, "Delay between reconnect attempts")
	reconnectAttemptsFlag := flag.Int("reconnect-attempts", 3, "Max consecutive reconnect attempts before giving up")
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

	ld := loader.New(log, host.NullEngine{}.Factory())

	c, err := client.New(log, ld,
		client.WithAddr(*addrFlag),
		client.WithIssuerKey(issuerKey),
		client.WithStoreDir(*storeDirFlag),
		client.WithOneshot(*oneshotFlag),
		client.WithReconnectPolicy(*reconnectDelayFlag, *reconnectAttemptsFlag),
	)
	if err != nil {
		obs.Fatal(1, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		obs.Fatal(1, err)
	}
}

func printUsage() {
	fmt.Println("driverhub-client - connect to a server and run its published driver")
	fmt.Println("Usage:")
	fmt.Println("  driverhub-client -issuer-key <hex> [-addr host:port] [-store <dir>] [-oneshot] [-dev]")
}
