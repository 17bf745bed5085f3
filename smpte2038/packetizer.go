package smpte2038

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zsiec/st2038/internal/bitstream"
	"github.com/zsiec/st2038/vanc"
)

const defaultPacketizerSize = 4096

// header byte offsets patched by End
const (
	lengthOffset = 4
	ptsOffset    = pesHeaderSize
)

type packetizerState int

const (
	stateUnallocated packetizerState = iota
	stateAllocated
	stateBuilding
)

func (s packetizerState) String() string {
	switch s {
	case stateUnallocated:
		return "unallocated"
	case stateAllocated:
		return "allocated"
	case stateBuilding:
		return "building"
	}
	return fmt.Sprintf("packetizerState(%d)", int(s))
}

// Packetizer accumulates ancillary packets into one SMPTE ST 2038 PES
// packet across a Begin, Append..., End sequence, typically one sequence per
// SDI frame. A Packetizer is not safe for concurrent use; hold one per
// capture goroutine or serialize Begin..End externally.
type Packetizer struct {
	buf      *bytes.Buffer
	w        *bitstream.Writer
	state    packetizerState
	pts      uint64
	lines    int
	finished bool
	initSize int
}

// PacketizerOptInitialSize sets the initial buffer capacity in bytes. The
// buffer grows geometrically past it as lines are appended.
func PacketizerOptInitialSize(n int) func(*Packetizer) {
	return func(p *Packetizer) {
		if n > 0 {
			p.initSize = n
		}
	}
}

// NewPacketizer returns a Packetizer ready for Begin.
func NewPacketizer(opts ...func(*Packetizer)) *Packetizer {
	p := &Packetizer{initSize: defaultPacketizerSize}
	for _, opt := range opts {
		opt(p)
	}
	p.buf = bytes.NewBuffer(make([]byte, 0, p.initSize))
	p.w = bitstream.NewWriter(p.buf)
	p.state = stateAllocated
	return p
}

// Begin starts a new PES packet, discarding the previous one. It writes the
// fixed header with placeholder length and PTS, both patched by End.
func (p *Packetizer) Begin() error {
	if err := p.check(stateAllocated, "begin"); err != nil {
		return err
	}
	p.buf.Reset()
	p.w = bitstream.NewWriter(p.buf)
	p.pts = 0
	p.lines = 0
	p.finished = false

	p.w.WriteBits(startCodePrefix, 24)
	p.w.WriteBits(StreamID, 8)
	p.w.WriteBits(0, 16) // PES_packet_length
	p.w.WriteBits(0x2, 2)
	p.w.WriteBits(0, 2)  // PES_scrambling_control
	p.w.WriteFlag(false) // PES_priority
	p.w.WriteFlag(true)  // data_alignment_indicator
	p.w.WriteFlag(false) // copyright
	p.w.WriteFlag(false) // original_or_copy
	p.w.WriteBits(PTSDTSOnlyPTS, 2)
	p.w.WriteBits(0, 6) // ESCR, ES_rate, DSM_trick_mode, additional_copy_info, PES_CRC, PES_extension
	p.w.WriteBits(ptsFieldSize, 8)
	p.w.WriteBytes(encodePTS(PTSDTSOnlyPTS, 0))
	if err := p.w.Err(); err != nil {
		return fmt.Errorf("smpte2038: write PES header: %w", err)
	}

	p.state = stateBuilding
	return nil
}

// SetPTS sets the presentation time stamp written by End. Only the low 33
// bits are kept.
func (p *Packetizer) SetPTS(pts uint64) error {
	if err := p.check(stateBuilding, "set PTS"); err != nil {
		return err
	}
	p.pts = pts & ptsMask
	return nil
}

// Append serializes one decoded ancillary packet as a line of the PES
// packet under construction. Parity and checksum words are written as
// given; they are not recomputed.
func (p *Packetizer) Append(pkt *vanc.Packet) error {
	if err := p.check(stateBuilding, "append"); err != nil {
		return err
	}
	if pkt == nil {
		return fmt.Errorf("%w: nil packet", ErrMalformedLine)
	}
	l := LineFromVANC(pkt)
	return p.AppendLine(&l)
}

// AppendLine serializes a previously decoded line unchanged. On error the
// buffer is left exactly as it was before the call.
func (p *Packetizer) AppendLine(l *Line) (err error) {
	if err := p.check(stateBuilding, "append"); err != nil {
		return err
	}
	if err := l.validate(); err != nil {
		return err
	}
	mark := p.buf.Len()
	if mark+l.encodedSize()-6 > maxPESPacketLength {
		return fmt.Errorf("%w: %d bytes buffered, line needs %d", ErrPacketTooLarge, mark, l.encodedSize())
	}

	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok || !errors.Is(e, bytes.ErrTooLarge) {
				panic(r)
			}
			p.rewind(mark)
			err = ErrOutOfMemory
		}
	}()

	l.encode(p.w)
	if werr := p.w.Err(); werr != nil {
		p.rewind(mark)
		return fmt.Errorf("smpte2038: write line: %w", werr)
	}
	p.lines++
	return nil
}

// End finalizes the PES packet: it patches PES_packet_length and the PTS
// and returns the finished bytes. The slice aliases the internal buffer
// and stays valid until the next Begin or Close.
func (p *Packetizer) End() ([]byte, error) {
	if err := p.check(stateBuilding, "end"); err != nil {
		return nil, err
	}
	if err := p.w.Flush(); err != nil {
		return nil, fmt.Errorf("smpte2038: flush: %w", err)
	}
	b := p.buf.Bytes()
	binary.BigEndian.PutUint16(b[lengthOffset:], uint16(len(b)-6))
	copy(b[ptsOffset:ptsOffset+ptsFieldSize], encodePTS(PTSDTSOnlyPTS, p.pts))

	p.finished = true
	p.state = stateAllocated
	return b, nil
}

// Bytes returns the packet produced by the last End, or nil if no packet
// has been finished since the last Begin.
func (p *Packetizer) Bytes() []byte {
	if p == nil || p.state != stateAllocated || !p.finished {
		return nil
	}
	return p.buf.Bytes()
}

// Lines returns the number of lines appended since Begin.
func (p *Packetizer) Lines() int {
	if p == nil {
		return 0
	}
	return p.lines
}

// Len returns the number of bytes used in the internal buffer.
func (p *Packetizer) Len() int {
	if p == nil || p.buf == nil {
		return 0
	}
	return p.buf.Len()
}

// Available returns the number of bytes that can be appended before the
// internal buffer has to grow.
func (p *Packetizer) Available() int {
	if p == nil || p.buf == nil {
		return 0
	}
	return p.buf.Available()
}

// Close releases the internal buffer. Every later call fails with
// ErrNotAllocated.
func (p *Packetizer) Close() {
	if p == nil {
		return
	}
	p.buf = nil
	p.w = nil
	p.lines = 0
	p.finished = false
	p.state = stateUnallocated
}

func (p *Packetizer) check(want packetizerState, op string) error {
	if p == nil || p.state == stateUnallocated {
		return ErrNotAllocated
	}
	if p.state != want {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, p.state)
	}
	return nil
}

// rewind drops everything written after mark, which must be byte aligned.
func (p *Packetizer) rewind(mark int) {
	p.buf.Truncate(mark)
	p.w = bitstream.NewWriter(p.buf)
}
