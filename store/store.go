// Package store implements the content-addressed, on-disk artifact
// repository: objects keyed by digest under o/, and symbolic root names
// under r/ that point at an object via a relative symlink.
package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/atsika/driverhub/digest"
)

// ErrCorruptRoot is returned when a root symlink's target doesn't have the
// expected shape "../o/<64-hex>".
var ErrCorruptRoot = errors.New("store: root symlink is corrupt")

// ErrInvalidName is returned when a root name contains a path separator.
var ErrInvalidName = errors.New("store: root name must not contain a path separator")

// objDir and rootDir are the two subdirectories of a Store's root.
const (
	objDir  = "o"
	rootDir = "r"
)

// Store is a content-addressed repository rooted at a directory containing
// o/ (objects by hex digest) and r/ (symbolic roots).
type Store struct {
	root  string
	objs  string
	roots string
}

// Open creates (if necessary) and returns a Store rooted at dir.
func Open(dir string) (*Store, error) {
	objs := filepath.Join(dir, objDir)
	roots := filepath.Join(dir, rootDir)
	for _, d := range []string{objs, roots} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errors.Wrapf(err, "store: mkdir %s", d)
		}
	}
	return &Store{root: dir, objs: objs, roots: roots}, nil
}

// Path returns the on-disk path an object with digest d would be stored at,
// whether or not it currently exists.
func (s *Store) Path(d digest.Digest) string {
	return filepath.Join(s.objs, d.String())
}

// Has reports whether an object with digest d is present.
func (s *Store) Has(d digest.Digest) bool {
	_, err := os.Stat(s.Path(d))
	return err == nil
}

// Save hashes bytes, writes them to the store keyed by that hash, and
// returns the digest. Save is idempotent: re-saving identical bytes yields
// the same digest and is a no-op if the object is already present. Writes go
// through a temp file, fsync, and rename so that partial writes are never
// visible under the final path.
func (s *Store) Save(b []byte) (digest.Digest, error) {
	d := digest.Of(b)
	final := s.Path(d)
	if _, err := os.Stat(final); err == nil {
		return d, nil
	}

	tmp, err := os.CreateTemp(s.objs, ".tmp-*")
	if err != nil {
		return d, errors.Wrap(err, "store: create temp object")
	}
	tmpName := tmp.Name()
	// Best-effort cleanup if anything below fails before the rename.
	succeeded := false
	defer func() {
		if !succeeded {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return d, errors.Wrap(err, "store: write temp object")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return d, errors.Wrap(err, "store: fsync temp object")
	}
	if err := tmp.Close(); err != nil {
		return d, errors.Wrap(err, "store: close temp object")
	}
	if err := os.Rename(tmpName, final); err != nil {
		return d, errors.Wrap(err, "store: rename object into place")
	}
	succeeded = true
	return d, nil
}

// Load reads back the bytes stored under digest d.
func (s *Store) Load(d digest.Digest) ([]byte, error) {
	b, err := os.ReadFile(s.Path(d))
	if err != nil {
		return nil, errors.Wrapf(err, "store: load object %s", d.Short())
	}
	return b, nil
}

// OpenObject returns a reader over the bytes stored under digest d, for callers
// that want to stream rather than load the whole artifact into memory.
func (s *Store) OpenObject(d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(d))
	if err != nil {
		return nil, errors.Wrapf(err, "store: open object %s", d.Short())
	}
	return f, nil
}

// SetRoot writes (or replaces) a symlink r/<name> pointing at o/<hex(digest)>.
// name must not contain a path separator.
func (s *Store) SetRoot(name string, d digest.Digest) error {
	if err := validateRootName(name); err != nil {
		return err
	}
	link := filepath.Join(s.roots, name)
	target := filepath.Join("..", objDir, d.String())

	tmpLink := link + ".tmp"
	_ = os.Remove(tmpLink)
	if err := os.Symlink(target, tmpLink); err != nil {
		return errors.Wrapf(err, "store: symlink root %q", name)
	}
	if err := os.Rename(tmpLink, link); err != nil {
		_ = os.Remove(tmpLink)
		return errors.Wrapf(err, "store: publish root %q", name)
	}
	return nil
}

// Root resolves a symbolic root name to the digest it currently points at.
// It returns (digest.Zero, false, nil) if no such root exists, and ErrCorruptRoot
// if the symlink's shape doesn't match "../o/<hex>".
func (s *Store) Root(name string) (digest.Digest, bool, error) {
	if err := validateRootName(name); err != nil {
		return digest.Zero, false, err
	}
	link := filepath.Join(s.roots, name)

	target, err := os.Readlink(link)
	if err != nil {
		if os.IsNotExist(err) {
			return digest.Zero, false, nil
		}
		return digest.Zero, false, errors.Wrapf(err, "store: read root %q", name)
	}

	parts := strings.Split(filepath.ToSlash(target), "/")
	if len(parts) != 3 || parts[0] != ".." || parts[1] != objDir {
		return digest.Zero, false, errors.Wrapf(ErrCorruptRoot, "root %q -> %q", name, target)
	}

	d, err := digest.Parse(parts[2])
	if err != nil {
		return digest.Zero, false, errors.Wrapf(ErrCorruptRoot, "root %q has bad hex: %v", name, err)
	}
	return d, true, nil
}

func validateRootName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return nil
}
