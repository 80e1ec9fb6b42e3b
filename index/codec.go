package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/fractyl/fractyl/hash"
	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/utils"
)

// Binary format (little-endian, packed):
//
//	magic   "FIDX"        4 bytes
//	version u32 = 1
//	count   u32
//	entries: u16 path_len (1..=4096), path bytes, 32-byte digest,
//	         u32 mode, u64 size, i64 mtime
var indexMagic = [4]byte{'F', 'I', 'D', 'X'}

const (
	codecVersion = 1
	maxPathLen   = 4096
)

// Encode serializes the index.
func (ix *Index) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(indexMagic[:])
	writeU32(&buf, codecVersion)
	writeU32(&buf, uint32(len(ix.entries)))

	for _, e := range ix.entries {
		if len(e.Path) == 0 || len(e.Path) > maxPathLen {
			return nil, fmt.Errorf("path %q length %d: %w", e.Path, len(e.Path), types.ErrInvalidArgs)
		}
		writeU16(&buf, uint16(len(e.Path)))
		buf.WriteString(e.Path)
		buf.Write(e.Digest[:])
		writeU32(&buf, e.Mode)
		writeU64(&buf, e.Size)
		writeU64(&buf, uint64(e.Mtime))
	}
	return buf.Bytes(), nil
}

// Decode parses a serialized index.
func Decode(data []byte) (*Index, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != indexMagic {
		return nil, fmt.Errorf("index magic: %w", types.ErrBadFormat)
	}
	version, err := readU32(r)
	if err != nil || version != codecVersion {
		return nil, fmt.Errorf("index version %d: %w", version, types.ErrBadFormat)
	}
	count, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("index count: %w", types.ErrBadFormat)
	}

	ix := New()
	for i := uint32(0); i < count; i++ {
		pathLen, err := readU16(r)
		if err != nil || pathLen == 0 || pathLen > maxPathLen {
			return nil, fmt.Errorf("entry %d path length: %w", i, types.ErrBadFormat)
		}
		pathBuf := make([]byte, pathLen)
		if _, err := io.ReadFull(r, pathBuf); err != nil {
			return nil, fmt.Errorf("entry %d path: %w", i, types.ErrBadFormat)
		}
		var e Entry
		e.Path = string(pathBuf)
		if _, err := io.ReadFull(r, e.Digest[:]); err != nil {
			return nil, fmt.Errorf("entry %d digest: %w", i, types.ErrBadFormat)
		}
		if e.Mode, err = readU32(r); err != nil {
			return nil, fmt.Errorf("entry %d mode: %w", i, types.ErrBadFormat)
		}
		if e.Size, err = readU64(r); err != nil {
			return nil, fmt.Errorf("entry %d size: %w", i, types.ErrBadFormat)
		}
		mtime, err := readU64(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d mtime: %w", i, types.ErrBadFormat)
		}
		e.Mtime = int64(mtime)
		ix.Add(e)
	}
	return ix, nil
}

// Load reads an index file. A missing file yields an empty index.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path) //nolint:gosec // repository-internal path
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}
	if len(data) == 0 {
		return New(), nil
	}
	ix, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	return ix, nil
}

// Save writes the index atomically.
func (ix *Index) Save(path string) error {
	data, err := ix.Encode()
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(path, data, 0o644)
}

// Digest returns the content digest of the serialized index.
func (ix *Index) Digest() (hash.Digest, error) {
	data, err := ix.Encode()
	if err != nil {
		return hash.Digest{}, err
	}
	return hash.Bytes(data), nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

