// Package obs provides the structured logger used across server, client,
// and upgrade components, plus the stderr cause-chain renderer used by the
// cmd/ binaries on fatal exit.
package obs

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style logger, or a development one with
// human-friendly console output when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	return zap.NewProduction()
}

// Fatal writes err's full cause chain to stderr ("caused by:" lines beneath
// the top-level message, per this system's error reporting convention) and
// exits the process with code. A nil err is a programming mistake and
// panics rather than silently exiting 0.
func Fatal(code int, err error) {
	if err == nil {
		panic("obs.Fatal called with nil error")
	}
	fmt.Fprintln(os.Stderr, err.Error())
	if chain := causeChain(err); len(chain) > 1 {
		for _, line := range chain[1:] {
			fmt.Fprintf(os.Stderr, "caused by: %s\n", line)
		}
	}
	if bt := errors.GetSafeDetails(err); len(bt.SafeDetails) > 0 {
		fmt.Fprintln(os.Stderr, "backtrace:")
		for _, d := range bt.SafeDetails {
			fmt.Fprintln(os.Stderr, d)
		}
	}
	os.Exit(code)
}

// causeChain walks err's Unwrap chain, collecting each level's message.
// Wrappers that only add a stack trace repeat their cause's message; such a
// repeat of the previous entry is skipped.
func causeChain(err error) []string {
	var chain []string
	for err != nil {
		if msg := err.Error(); len(chain) == 0 || chain[len(chain)-1] != msg {
			chain = append(chain, msg)
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		next := u.Unwrap()
		if next == nil {
			break
		}
		err = next
	}
	return chain
}
