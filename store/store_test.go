package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atsika/driverhub/digest"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveIsContentAddressedAndIdempotent(t *testing.T) {
	s := newStore(t)
	b := []byte("driver bytes")

	d1, err := s.Save(b)
	require.NoError(t, err)
	require.Equal(t, digest.Of(b), d1)
	require.True(t, s.Has(d1))

	d2, err := s.Save(b)
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	got, err := s.Load(d1)
	require.NoError(t, err)
	require.Equal(t, b, got)
}

func TestSetRootAndResolve(t *testing.T) {
	s := newStore(t)
	b := []byte("v1")
	d, err := s.Save(b)
	require.NoError(t, err)

	require.NoError(t, s.SetRoot("current", d))

	got, ok, err := s.Root("current")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, d, got)
}

func TestRootMissingReturnsNotOK(t *testing.T) {
	s := newStore(t)
	_, ok, err := s.Root("nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRootRejectsPathSeparators(t *testing.T) {
	s := newStore(t)
	_, _, err := s.Root("a/b")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestRootDetectsCorruptSymlink(t *testing.T) {
	s := newStore(t)
	// Point the symlink somewhere that doesn't match ../o/<hex>.
	bad := filepath.Join(s.roots, "broken")
	require.NoError(t, os.Symlink("/etc/passwd", bad))

	_, _, err := s.Root("broken")
	require.ErrorIs(t, err, ErrCorruptRoot)
}

func TestSetRootOverwritesExisting(t *testing.T) {
	s := newStore(t)
	d1, err := s.Save([]byte("v1"))
	require.NoError(t, err)
	d2, err := s.Save([]byte("v2"))
	require.NoError(t, err)

	require.NoError(t, s.SetRoot("current", d1))
	require.NoError(t, s.SetRoot("current", d2))

	got, ok, err := s.Root("current")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, d2, got)
}
