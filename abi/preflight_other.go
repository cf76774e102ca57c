//go:build !linux

package abi

// preflight is a no-op on platforms without the unix access(2) syscall
// wired up; dlopen's own error reporting covers permission failures there.
func preflight(path string) error { return nil }
