package obs

import "github.com/cockroachdb/errors"

// Error kinds surfaced across this system, checked with errors.Is regardless
// of how much context has been wrapped around them. Each is a plain exported
// sentinel rather than a custom type, matching the way cockroachdb/errors
// keeps Is-chains intact through Wrap/Wrapf.
var (
	// BrokenComms covers a broken channel or pipe between sub-components
	// (e.g. a closed driver comms channel).
	BrokenComms = errors.New("obs: broken communication channel")

	// GracefulDisconnect marks an expected Bye from a peer; never logged as
	// an error.
	GracefulDisconnect = errors.New("obs: graceful disconnect")

	// AlreadyRunning marks an address-in-use failure at bind time.
	AlreadyRunning = errors.New("obs: another instance is already listening")

	// Verification marks a hash, signature, length, or metadata-decode
	// failure in the artifact pipeline.
	Verification = errors.New("obs: artifact verification failed")

	// Schema marks a framed payload that failed to decode or left trailing
	// bytes behind.
	Schema = errors.New("obs: schema decode failure")

	// Io marks a transport-level failure.
	Io = errors.New("obs: i/o failure")

	// Driver marks a setup/teardown failure or other ABI violation.
	Driver = errors.New("obs: driver failure")
)
