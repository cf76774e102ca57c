package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"

	"golang.org/x/term"

	"github.com/atsika/driverhub/artifact"
	"github.com/atsika/driverhub/internal/keys"
	"github.com/atsika/driverhub/internal/obs"
	"github.com/atsika/driverhub/wire"
)

func main() {
	keyFlag := flag.String("key", "issuer.key", "Path to the sealed issuer private key")
	driverFlag := flag.String("driver", "", "Path to the driver shared library to sign and push")
	addrFlag := flag.String("addr", "127.0.0.1:7421", "Upgrade ingress address to push to")
	metaFlag := flag.String("write-meta", "", "If set, also write a <path>.meta/<path>.bin pair alongside pushing")
	flag.Usage = printUsage
	flag.Parse()

	if *driverFlag == "" {
		fatalf("-driver is required")
	}

	blob, err := keys.LoadFile(*keyFlag)
	if err != nil {
		fatalf("load key: %v", err)
	}
	passphrase, err := readPassphrase("Passphrase: ")
	if err != nil {
		fatalf("read passphrase: %v", err)
	}
	signer, err := keys.Open(blob, passphrase)
	if err != nil {
		fatalf("unseal key: %v", err)
	}
	defer signer.Zeroize()
	fmt.Printf("signing as %s\n", keys.Fingerprint(signer.Public))

	raw, err := os.ReadFile(*driverFlag)
	if err != nil {
		fatalf("read driver: %v", err)
	}

	a := artifact.SignWith(signer, raw)

	if *metaFlag != "" {
		if err := artifact.WriteFiles(a, *metaFlag+".meta", *metaFlag+".bin"); err != nil {
			fatalf("write artifact files: %v", err)
		}
	}

	conn, err := net.Dial("tcp", *addrFlag)
	if err != nil {
		fatalf("dial upgrade ingress: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteTyped(conn, &a.Info); err != nil {
		fatalf("write driver info: %v", err)
	}
	if _, err := conn.Write(a.Bytes); err != nil {
		fatalf("write driver bytes: %v", err)
	}

	fmt.Printf("pushed driver %s (%d bytes)\n", a.Info.Digest.Short(), len(a.Bytes))
}

func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	return line, err
}

func fatalf(format string, args ...any) {
	obs.Fatal(1, fmt.Errorf(format, args...))
}

func printUsage() {
	fmt.Println("driverhub-issuer - sign and push a new driver build")
	fmt.Println("Usage:")
	fmt.Println("  driverhub-issuer -driver <path/to/libdriver.so> [-key issuer.key] [-addr host:port] [-write-meta path]")
}
