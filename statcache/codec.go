package statcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/utils"
)

// On-disk layout (little-endian, packed):
//
//	header: signature u32 "FRAC", version u32 = 1, entry_count u32,
//	        checksum u32 (reserved, zero), branch [16]byte null-padded,
//	        timestamp u64
//	entries: fixed packed records (see entrySize)
//	paths:  path_length bytes per entry, same order
const (
	signature    = 0x46524143 // "FRAC"
	cacheVersion = 1
	headerSize   = 4 + 4 + 4 + 4 + 16 + 8
	branchBytes  = 16
	entrySize    = 4*4 + 8 + 8 + 4*4 + DigestPrefixLen + 2 + 2
	maxCachePath = 4096
)

// Save serializes the cache and writes it atomically. The persisted
// timestamp is refreshed to now.
func (c *Cache) Save(path string) error {
	c.timestamp = uint64(time.Now().Unix())

	var buf bytes.Buffer
	var h [headerSize]byte
	binary.LittleEndian.PutUint32(h[0:], signature)
	binary.LittleEndian.PutUint32(h[4:], cacheVersion)
	binary.LittleEndian.PutUint32(h[8:], uint32(len(c.entries)))
	binary.LittleEndian.PutUint32(h[12:], 0) // checksum reserved
	copy(h[16:16+branchBytes], c.branch)
	binary.LittleEndian.PutUint64(h[32:], c.timestamp)
	buf.Write(h[:])

	for _, e := range c.entries {
		if len(e.Path) == 0 || len(e.Path) > maxCachePath {
			return fmt.Errorf("cache path %q: %w", e.Path, types.ErrInvalidArgs)
		}
		var rec [entrySize]byte
		binary.LittleEndian.PutUint32(rec[0:], e.MtimeSec)
		binary.LittleEndian.PutUint32(rec[4:], e.MtimeNsec)
		binary.LittleEndian.PutUint32(rec[8:], e.CtimeSec)
		binary.LittleEndian.PutUint32(rec[12:], e.CtimeNsec)
		binary.LittleEndian.PutUint64(rec[16:], e.Size)
		binary.LittleEndian.PutUint64(rec[24:], e.Inode)
		binary.LittleEndian.PutUint32(rec[32:], e.Device)
		binary.LittleEndian.PutUint32(rec[36:], e.Mode)
		binary.LittleEndian.PutUint32(rec[40:], e.UID)
		binary.LittleEndian.PutUint32(rec[44:], e.GID)
		copy(rec[48:48+DigestPrefixLen], e.DigestPrefix[:])
		binary.LittleEndian.PutUint16(rec[48+DigestPrefixLen:], uint16(len(e.Path)))
		binary.LittleEndian.PutUint16(rec[48+DigestPrefixLen+2:], e.Flags)
		buf.Write(rec[:])
	}
	for _, e := range c.entries {
		buf.WriteString(e.Path)
	}
	return utils.AtomicWriteFile(path, buf.Bytes(), 0o644)
}

// Load reads the cache file for branch. The file is mapped read-only
// while the in-memory table is rebuilt, then unmapped. A missing,
// truncated, version-mismatched, or wrong-branch file yields an empty
// cache, since the table is a regeneratable hint; only failures to open,
// stat, or map the file are returned as errors.
func Load(path, branch string) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(branch), nil
		}
		return nil, fmt.Errorf("open stat cache %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat cache %s: %w", path, err)
	}
	if info.Size() < headerSize {
		return New(branch), nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("map stat cache %s: %w", path, err)
	}
	defer m.Unmap() //nolint:errcheck

	c, ok := decode(m, branch)
	if !ok {
		return New(branch), nil
	}
	return c, nil
}

func decode(data []byte, branch string) (*Cache, bool) {
	if binary.LittleEndian.Uint32(data[0:]) != signature {
		return nil, false
	}
	if binary.LittleEndian.Uint32(data[4:]) != cacheVersion {
		return nil, false
	}
	count := binary.LittleEndian.Uint32(data[8:])
	stored := string(bytes.TrimRight(data[16:16+branchBytes], "\x00"))
	if stored != truncateBranch(branch) {
		return nil, false
	}

	entriesEnd := headerSize + int(count)*entrySize
	if len(data) < entriesEnd {
		return nil, false
	}

	c := New(branch)
	c.timestamp = binary.LittleEndian.Uint64(data[32:])
	c.entries = make([]Entry, 0, count)

	pathOff := entriesEnd
	for i := 0; i < int(count); i++ {
		rec := data[headerSize+i*entrySize:]
		var e Entry
		e.MtimeSec = binary.LittleEndian.Uint32(rec[0:])
		e.MtimeNsec = binary.LittleEndian.Uint32(rec[4:])
		e.CtimeSec = binary.LittleEndian.Uint32(rec[8:])
		e.CtimeNsec = binary.LittleEndian.Uint32(rec[12:])
		e.Size = binary.LittleEndian.Uint64(rec[16:])
		e.Inode = binary.LittleEndian.Uint64(rec[24:])
		e.Device = binary.LittleEndian.Uint32(rec[32:])
		e.Mode = binary.LittleEndian.Uint32(rec[36:])
		e.UID = binary.LittleEndian.Uint32(rec[40:])
		e.GID = binary.LittleEndian.Uint32(rec[44:])
		copy(e.DigestPrefix[:], rec[48:48+DigestPrefixLen])
		pathLen := int(binary.LittleEndian.Uint16(rec[48+DigestPrefixLen:]))
		e.Flags = binary.LittleEndian.Uint16(rec[48+DigestPrefixLen+2:])

		if pathLen == 0 || pathOff+pathLen > len(data) {
			return nil, false
		}
		e.Path = string(data[pathOff : pathOff+pathLen])
		pathOff += pathLen

		c.byPath[e.Path] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, true
}

// truncateBranch fits a branch name into the fixed header field the way
// the writer does: byte-truncated at 16.
func truncateBranch(branch string) string {
	if len(branch) > branchBytes {
		return branch[:branchBytes]
	}
	return branch
}
