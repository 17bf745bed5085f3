// Package bitstream provides MSB-first bit cursors over byte buffers for
// walking and emitting bit-packed header fields. Reads and writes delegate
// to mp4ff's accumulating-error bit reader and writer; this package adds
// the position bookkeeping (bits consumed, bits remaining, byte alignment)
// that packet parsers need to decide where a structure ends.
package bitstream

import (
	"bytes"
	"errors"

	"github.com/Eyevinn/mp4ff/bits"
)

// ErrOverflow is reported by Reader.Err after a read past the end of data.
var ErrOverflow = errors.New("bitstream: read past end of data")

// maxChunk is the widest single read handed to the underlying reader.
const maxChunk = 32

// Reader reads bits MSB-first from a byte slice. After the first read past
// the end of the data every further read returns zero and Err reports
// ErrOverflow.
type Reader struct {
	data     []byte
	br       *bits.Reader
	bitPos   int
	overflow bool
}

// NewReader returns a Reader positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{
		data: data,
		br:   bits.NewReader(bytes.NewReader(data)),
	}
}

// RemainingBits returns the number of unread bits.
func (r *Reader) RemainingBits() int {
	total := len(r.data) * 8
	if r.bitPos > total {
		return 0
	}
	return total - r.bitPos
}

// BitsConsumed returns the number of bits read so far.
func (r *Reader) BitsConsumed() int {
	return r.bitPos
}

// BytesConsumed returns the number of whole or partial bytes touched so far.
func (r *Reader) BytesConsumed() int {
	return (r.bitPos + 7) / 8
}

// ByteAligned reports whether the cursor sits on a byte boundary.
func (r *Reader) ByteAligned() bool {
	return r.bitPos%8 == 0
}

// Rest returns the unread bytes starting at the next byte boundary.
func (r *Reader) Rest() []byte {
	off := r.BytesConsumed()
	if off >= len(r.data) {
		return nil
	}
	return r.data[off:]
}

// ReadBits reads n bits (n <= 64) and returns them right-aligned.
func (r *Reader) ReadBits(n int) uint64 {
	if n <= 0 || r.overflow {
		return 0
	}
	if n > r.RemainingBits() {
		r.overflow = true
		r.bitPos = len(r.data) * 8
		return 0
	}
	var val uint64
	for n > 0 {
		chunk := n
		if chunk > maxChunk {
			chunk = maxChunk
		}
		val = val<<uint(chunk) | uint64(r.br.Read(chunk))
		r.bitPos += chunk
		n -= chunk
	}
	return val
}

// ReadFlag reads a single bit.
func (r *Reader) ReadFlag() bool {
	return r.ReadBits(1) == 1
}

// SkipBits advances the cursor by n bits.
func (r *Reader) SkipBits(n int) {
	for n > 0 && !r.overflow {
		chunk := n
		if chunk > maxChunk {
			chunk = maxChunk
		}
		r.ReadBits(chunk)
		n -= chunk
	}
}

// AlignToByte skips to the next byte boundary and returns the skipped
// bits and their count. It is a no-op on an aligned cursor.
func (r *Reader) AlignToByte() (value uint64, n int) {
	n = (8 - r.bitPos%8) % 8
	if n == 0 {
		return 0, 0
	}
	return r.ReadBits(n), n
}

// Err returns ErrOverflow after an out-of-range read, otherwise the first
// error seen by the underlying reader.
func (r *Reader) Err() error {
	if r.overflow {
		return ErrOverflow
	}
	return r.br.AccError()
}
