package bitstream

import (
	"bytes"

	"github.com/Eyevinn/mp4ff/bits"
)

// Writer appends bits MSB-first to a bytes.Buffer. Completed bytes land in
// the buffer as soon as they fill, so callers may patch earlier bytes in
// place through the buffer while the writer is byte aligned.
type Writer struct {
	bw     *bits.Writer
	bitPos int
}

// NewWriter returns a Writer appending to buf.
func NewWriter(buf *bytes.Buffer) *Writer {
	return &Writer{bw: bits.NewWriter(buf)}
}

// WriteBits writes the low n bits of v (n <= 64).
func (w *Writer) WriteBits(v uint64, n int) {
	for n > 0 {
		chunk := n
		if chunk > maxChunk {
			chunk = maxChunk
		}
		n -= chunk
		w.bw.Write(uint(v>>uint(n))&(1<<uint(chunk)-1), chunk)
		w.bitPos += chunk
	}
}

// WriteFlag writes a single bit.
func (w *Writer) WriteFlag(f bool) {
	if f {
		w.WriteBits(1, 1)
		return
	}
	w.WriteBits(0, 1)
}

// WriteBytes writes each byte of b as 8 bits.
func (w *Writer) WriteBytes(b []byte) {
	for _, v := range b {
		w.WriteBits(uint64(v), 8)
	}
}

// AlignOnes pads with '1' bits up to the next byte boundary.
func (w *Writer) AlignOnes() {
	if n := (8 - w.bitPos%8) % 8; n > 0 {
		w.WriteBits(1<<uint(n)-1, n)
	}
}

// ByteAligned reports whether the writer sits on a byte boundary.
func (w *Writer) ByteAligned() bool {
	return w.bitPos%8 == 0
}

// BitsWritten returns the number of bits written since creation.
func (w *Writer) BitsWritten() int {
	return w.bitPos
}

// BytesWritten returns the number of whole or partial bytes written.
func (w *Writer) BytesWritten() int {
	return (w.bitPos + 7) / 8
}

// Flush zero-pads and emits a trailing partial byte, then reports the
// first write error, if any.
func (w *Writer) Flush() error {
	if !w.ByteAligned() {
		w.bw.Flush()
		w.bitPos += (8 - w.bitPos%8) % 8
	}
	return w.bw.AccError()
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	return w.bw.AccError()
}
