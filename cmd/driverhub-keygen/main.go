package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/atsika/driverhub/internal/keys"
)

func main() {
	outFlag := flag.String("out", "issuer.key", "Path to write the sealed private key")
	flag.Usage = printUsage
	flag.Parse()

	passphrase, err := readPassphrase("Passphrase: ")
	if err != nil {
		fatalf("read passphrase: %v", err)
	}
	confirm, err := readPassphrase("Confirm passphrase: ")
	if err != nil {
		fatalf("read passphrase: %v", err)
	}
	if passphrase != confirm {
		fatalf("passphrases did not match")
	}

	signer, err := keys.Generate()
	if err != nil {
		fatalf("generate keypair: %v", err)
	}
	defer signer.Zeroize()

	blob, err := keys.Seal(signer, passphrase)
	if err != nil {
		fatalf("seal private key: %v", err)
	}
	if err := keys.SaveFile(*outFlag, blob); err != nil {
		fatalf("write key file: %v", err)
	}

	fmt.Printf("wrote %s\n", *outFlag)
	fmt.Printf("public key: %x\n", []byte(signer.Public))
	fmt.Printf("fingerprint: %s\n", keys.Fingerprint(signer.Public))
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
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("driverhub-keygen - generate a sealed issuer signing key")
	fmt.Println("Usage:")
	fmt.Println("  driverhub-keygen [-out <path>]")
}
