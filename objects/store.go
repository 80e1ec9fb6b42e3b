// Package objects is the content-addressed object store: immutable file
// bodies keyed by their own SHA-256, laid out under a two-level hex
// fan-out to bound per-directory entries.
package objects

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru"

	"github.com/fractyl/fractyl/hash"
	"github.com/fractyl/fractyl/types"
)

const copyBufferSize = 8192

// presenceCacheSize bounds the LRU of digests recently verified on disk.
// A scan of a tree with many identical bodies probes the same object
// repeatedly; the cache turns those probes into map hits.
const presenceCacheSize = 65536

// Store maps digests to immutable file bodies on disk.
// Writes are idempotent: identical content lands at the identical path,
// so concurrent puts race benignly. Objects are never modified or
// deleted by the store.
type Store struct {
	dir     string
	present *lru.Cache
}

// New creates a Store rooted at dir (the repository's objects/ directory),
// creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create objects dir %s: %w", dir, err)
	}
	present, err := lru.New(presenceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init presence cache: %w", err)
	}
	return &Store{dir: dir, present: present}, nil
}

// Path returns the on-disk path for a digest: objects/<aa>/<rest-62>.
func (s *Store) Path(d hash.Digest) string {
	hex := d.Hex()
	return filepath.Join(s.dir, hex[:2], hex[2:])
}

// Exists probes the filesystem for the object.
func (s *Store) Exists(d hash.Digest) bool {
	if s.present.Contains(d) {
		return true
	}
	info, err := os.Stat(s.Path(d))
	ok := err == nil && info.Mode().IsRegular()
	if ok {
		s.present.Add(d, struct{}{})
	}
	return ok
}

// PutFile hashes the file at src and stores its body, returning the digest.
// If the object already exists the body is not copied again.
func (s *Store) PutFile(src string) (hash.Digest, error) {
	d, err := hash.File(src)
	if err != nil {
		return d, err
	}
	if s.Exists(d) {
		return d, nil
	}
	if err := s.writeFrom(d, func(w io.Writer) error {
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck
		buf := make([]byte, copyBufferSize)
		_, err = io.CopyBuffer(w, f, buf)
		return err
	}); err != nil {
		return d, err
	}
	return d, nil
}

// PutBytes stores an in-memory buffer, returning its digest.
func (s *Store) PutBytes(data []byte) (hash.Digest, error) {
	d := hash.Bytes(data)
	if s.Exists(d) {
		return d, nil
	}
	if err := s.writeFrom(d, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return d, err
	}
	return d, nil
}

// Get reads the whole object body into memory.
func (s *Store) Get(d hash.Digest) ([]byte, error) {
	data, err := os.ReadFile(s.Path(d)) //nolint:gosec // path derived from digest
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s: %w", d.Hex(), types.ErrNotFound)
		}
		return nil, fmt.Errorf("read object %s: %w", d.Hex(), err)
	}
	return data, nil
}

// Open returns a streaming reader over the object body.
func (s *Store) Open(d hash.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s: %w", d.Hex(), types.ErrNotFound)
		}
		return nil, fmt.Errorf("open object %s: %w", d.Hex(), err)
	}
	return f, nil
}

// RestoreFile stream-copies the object body to dest, overwriting any
// existing file.
func (s *Store) RestoreFile(d hash.Digest, dest string) error {
	src, err := s.Open(d)
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(out, src, buf); err != nil {
		out.Close()      //nolint:errcheck,gosec
		_ = os.Remove(dest) // drop the partial file
		return fmt.Errorf("restore %s to %s: %w", d.Hex(), dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	return nil
}

// writeFrom creates the fan-out directory and streams the body into place,
// removing the partial file on write failure.
func (s *Store) writeFrom(d hash.Digest, fill func(io.Writer) error) error {
	target := s.Path(d)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create fan-out dir for %s: %w", d.Hex(), err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create object %s: %w", d.Hex(), err)
	}
	if err := fill(out); err != nil {
		out.Close() //nolint:errcheck,gosec
		_ = os.Remove(target)
		return fmt.Errorf("write object %s: %w", d.Hex(), err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(target)
		return fmt.Errorf("close object %s: %w", d.Hex(), err)
	}
	s.present.Add(d, struct{}{})
	return nil
}
