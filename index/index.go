// Package index models one snapshot's logical contents: an ordered set of
// (path, digest, mode, size, mtime) entries with a binary codec. The
// serialized form is itself stored as an object; its digest is what a
// snapshot record points at.
package index

import (
	"github.com/fractyl/fractyl/hash"
)

// Entry describes one regular file relative to the repository root.
// Paths are forward-slash separated and unique within an index.
type Entry struct {
	Path   string
	Digest hash.Digest
	Mode   uint32
	Size   uint64
	Mtime  int64
}

// Index is an ordered sequence of entries. Iteration order is the
// insertion order produced by the scanner; equality of snapshots does
// not depend on it.
type Index struct {
	entries []Entry
	byPath  map[string]int
}

// New returns an empty index.
func New() *Index {
	return &Index{byPath: make(map[string]int)}
}

// Len returns the entry count.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Entries returns the backing slice in insertion order. Callers must not
// mutate it.
func (ix *Index) Entries() []Entry {
	return ix.entries
}

// Find returns the entry for path, if present.
func (ix *Index) Find(path string) (Entry, bool) {
	i, ok := ix.byPath[path]
	if !ok {
		return Entry{}, false
	}
	return ix.entries[i], true
}

// Add inserts e, updating in place when the path already exists.
func (ix *Index) Add(e Entry) {
	if i, ok := ix.byPath[e.Path]; ok {
		ix.entries[i] = e
		return
	}
	ix.byPath[e.Path] = len(ix.entries)
	ix.entries = append(ix.entries, e)
}

// AddDirect appends e without a duplicate check. Scanner fast path: the
// traversal guarantees path uniqueness.
func (ix *Index) AddDirect(e Entry) {
	ix.byPath[e.Path] = len(ix.entries)
	ix.entries = append(ix.entries, e)
}

// Remove deletes the entry for path, preserving the order of the rest.
func (ix *Index) Remove(path string) bool {
	i, ok := ix.byPath[path]
	if !ok {
		return false
	}
	ix.entries = append(ix.entries[:i], ix.entries[i+1:]...)
	delete(ix.byPath, path)
	for j := i; j < len(ix.entries); j++ {
		ix.byPath[ix.entries[j].Path] = j
	}
	return true
}

// EqualOrdered reports whether both indices carry the same paths and
// digests in the same order. The scanner is deterministic for a given
// strategy, so this is the cheap first-line comparison.
func (ix *Index) EqualOrdered(other *Index) bool {
	if ix.Len() != other.Len() {
		return false
	}
	for i, e := range ix.entries {
		o := other.entries[i]
		if e.Path != o.Path || e.Digest != o.Digest {
			return false
		}
	}
	return true
}

// EqualUnordered compares paths and digests as sets. Fallback for when a
// strategy switch reordered entries without changing contents.
func (ix *Index) EqualUnordered(other *Index) bool {
	if ix.Len() != other.Len() {
		return false
	}
	for _, e := range ix.entries {
		o, ok := other.Find(e.Path)
		if !ok || o.Digest != e.Digest {
			return false
		}
	}
	return true
}
