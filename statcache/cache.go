// Package statcache persists per-branch file-stat metadata and digest
// hints so a scan can classify files as unchanged without rehashing them.
// The on-disk form is a packed binary table, memory-mapped on load; the
// path-keyed lookup table is rebuilt in memory.
package statcache

import (
	"time"

	"github.com/fractyl/fractyl/hash"
)

// Status classifies a file against its cached stat record.
type Status int

const (
	// StatusUnchanged: a record exists and mtime_sec, size, inode, and
	// mode all match the current stat.
	StatusUnchanged Status = iota
	// StatusChanged: a record exists but at least one field differs.
	StatusChanged
	// StatusNew: no record exists for the path.
	StatusNew
)

// DigestPrefixLen is the stored digest width. The cache keeps only the
// first 20 bytes of the SHA-256; it is a hint layer, and downstream code
// must treat a cached digest as lossy.
const DigestPrefixLen = 20

// FileStat carries the stat fields used for change detection.
type FileStat struct {
	MtimeSec  uint32
	MtimeNsec uint32
	CtimeSec  uint32
	CtimeNsec uint32
	Size      uint64
	Inode     uint64
	Device    uint32
	Mode      uint32
	UID       uint32
	GID       uint32
}

// Entry is one cached file record.
type Entry struct {
	FileStat
	DigestPrefix [DigestPrefixLen]byte
	Flags        uint16
	Path         string
}

// Cache is the in-memory form of one branch's stat table.
type Cache struct {
	branch    string
	timestamp uint64
	entries   []Entry
	byPath    map[string]int
}

// New returns an empty cache for branch.
func New(branch string) *Cache {
	return &Cache{
		branch:    branch,
		timestamp: uint64(time.Now().Unix()),
		byPath:    make(map[string]int),
	}
}

// Branch returns the branch the cache was built for.
func (c *Cache) Branch() string {
	return c.branch
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Timestamp returns when the cache was last persisted.
func (c *Cache) Timestamp() time.Time {
	return time.Unix(int64(c.timestamp), 0)
}

// Age returns how old the persisted cache is.
func (c *Cache) Age() time.Duration {
	return time.Since(c.Timestamp())
}

// Paths returns every cached path in table order. The scanner's stat-only
// strategy partitions this slice across its workers.
func (c *Cache) Paths() []string {
	paths := make([]string, len(c.entries))
	for i, e := range c.entries {
		paths[i] = e.Path
	}
	return paths
}

// Find returns the record for path, if present.
func (c *Cache) Find(path string) (Entry, bool) {
	i, ok := c.byPath[path]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Check classifies a file given its current stat.
func (c *Cache) Check(path string, st FileStat) Status {
	e, ok := c.Find(path)
	if !ok {
		return StatusNew
	}
	if e.MtimeSec == st.MtimeSec && e.Size == st.Size && e.Inode == st.Inode && e.Mode == st.Mode {
		return StatusUnchanged
	}
	return StatusChanged
}

// Update inserts or replaces the record for path.
func (c *Cache) Update(path string, st FileStat, d hash.Digest) {
	var e Entry
	e.FileStat = st
	copy(e.DigestPrefix[:], d[:DigestPrefixLen])
	e.Path = path
	if i, ok := c.byPath[path]; ok {
		c.entries[i] = e
		return
	}
	c.byPath[path] = len(c.entries)
	c.entries = append(c.entries, e)
}

// Remove drops the record for path.
func (c *Cache) Remove(path string) {
	i, ok := c.byPath[path]
	if !ok {
		return
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	delete(c.byPath, path)
	for j := i; j < len(c.entries); j++ {
		c.byPath[c.entries[j].Path] = j
	}
}
