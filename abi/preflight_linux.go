//go:build linux

package abi

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// preflight checks path is readable and executable before handing it to
// dlopen, so a permissions problem is reported as a plain I/O error rather
// than dlopen's comparatively opaque failure string.
func preflight(path string) error {
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return errors.Wrapf(err, "abi: %s is not readable/executable", path)
	}
	return nil
}
