// Package digest computes the BLAKE3 part tokens issued by destinations that
// have no native entity tag.
package digest

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// Sum returns the hex BLAKE3-256 digest of data.
func Sum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Reader hashes everything read through it.
type Reader struct {
	r io.Reader
	h *blake3.Hasher
	n int64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: blake3.New()}
}

func (d *Reader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		_, _ = d.h.Write(p[:n])
		d.n += int64(n)
	}
	return n, err
}

// Count returns the number of bytes read so far.
func (d *Reader) Count() int64 {
	return d.n
}

// Bytes returns the raw digest of the bytes read so far.
func (d *Reader) Bytes() []byte {
	return d.h.Sum(nil)
}

// Hex returns the hex digest of the bytes read so far.
func (d *Reader) Hex() string {
	return hex.EncodeToString(d.Bytes())
}
