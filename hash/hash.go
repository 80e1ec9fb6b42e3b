// Package hash provides the SHA-256 content addressing used by the object
// store, the index codec, and the stat cache.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/fractyl/fractyl/types"
)

// Size is the digest width in bytes.
const Size = sha256.Size

// HexSize is the digest width in lowercase hex characters.
const HexSize = Size * 2

// copyBufferSize is the fixed buffer used when streaming file bodies.
const copyBufferSize = 8192

// Digest is a raw 32-byte SHA-256 output.
type Digest [Size]byte

// Hex returns the 64-char lowercase hex form.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 8 hex characters for display.
func (d Digest) Short() string {
	return d.Hex()[:8]
}

// IsZero reports whether the digest is all zero bytes.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Parse converts a 64-char lowercase hex string into a Digest.
func Parse(s string) (Digest, error) {
	var d Digest
	if len(s) != HexSize {
		return d, fmt.Errorf("digest %q: want %d hex chars: %w", s, HexSize, types.ErrBadFormat)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("digest %q: %w", s, types.ErrBadFormat)
	}
	copy(d[:], raw)
	return d, nil
}

// Bytes digests an in-memory byte slice.
func Bytes(data []byte) Digest {
	return sha256.Sum256(data)
}

// File digests a file body as a stream with a fixed-size buffer.
func File(path string) (Digest, error) {
	var d Digest
	f, err := os.Open(path)
	if err != nil {
		return d, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return d, fmt.Errorf("read %s: %w", path, err)
	}
	copy(d[:], h.Sum(nil))
	return d, nil
}
