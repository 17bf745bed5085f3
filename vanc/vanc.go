// Package vanc models SMPTE ST 291 ancillary data packets as carried in the
// vertical ancillary space of an SDI signal: 10-bit words whose two most
// significant bits are parity markers over the 8-bit value below them.
//
// A [Packet] keeps every word raw, parity bits included. Use [Strip] before
// treating DID, SDID, data count or user data words as numbers.
package vanc

import (
	"errors"
	"fmt"
	"math/bits"
)

// Ancillary data flag words that open every packet in the classic word layout.
const (
	ADF0 uint16 = 0x000
	ADF1 uint16 = 0x3FF
	ADF2 uint16 = 0x3FF
)

const (
	wordMask   = 0x3FF
	maxLine    = 0x7FF
	maxOffset  = 0xFFF
	maxPayload = 0xFF
)

// Sentinel errors for packet construction and word parsing.
var (
	ErrNoADF          = errors.New("vanc: missing ancillary data flag")
	ErrShortWords     = errors.New("vanc: word sequence shorter than data count")
	ErrInvalidPacket  = errors.New("vanc: invalid packet")
	ErrPayloadTooLong = errors.New("vanc: payload exceeds 255 words")
)

// Packet is one decoded ancillary data packet together with the raster
// position it was found at.
type Packet struct {
	LineNumber       uint16
	HorizontalOffset uint16
	ChromaChannel    bool

	// DID, SDID, DataCount, Payload and Checksum are raw 10-bit words.
	DID       uint16
	SDID      uint16
	DataCount uint16
	Payload   []uint16
	Checksum  uint16
}

// NewPacket builds a packet from 8-bit identifiers and payload bytes,
// applying parity to every word and computing the checksum.
func NewPacket(did, sdid uint8, data []byte) (*Packet, error) {
	if len(data) > maxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(data))
	}
	p := &Packet{
		DID:       Parity(did),
		SDID:      Parity(sdid),
		DataCount: Parity(uint8(len(data))),
		Payload:   make([]uint16, len(data)),
	}
	for i, b := range data {
		p.Payload[i] = Parity(b)
	}
	p.Checksum = Checksum(p.DID, p.SDID, p.DataCount, p.Payload)
	return p, nil
}

// ID returns the parity-stripped DID/SDID pair.
func (p *Packet) ID() Identifier {
	return Identifier{DID: Strip(p.DID), SDID: Strip(p.SDID)}
}

// Name returns the registered name of the packet type, or "" if unknown.
func (p *Packet) Name() string {
	return Lookup(Strip(p.DID), Strip(p.SDID))
}

// Len returns the parity-stripped data count.
func (p *Packet) Len() int {
	return int(Strip(p.DataCount))
}

// Data returns the user data words with parity stripped.
func (p *Packet) Data() []byte {
	out := make([]byte, len(p.Payload))
	for i, w := range p.Payload {
		out[i] = Strip(w)
	}
	return out
}

// ChecksumValid reports whether the stored checksum matches the one
// computed over DID, SDID, data count and payload.
func (p *Packet) ChecksumValid() bool {
	return p.Checksum&wordMask == Checksum(p.DID, p.SDID, p.DataCount, p.Payload)
}

// Validate checks that every field fits its wire width and that the
// payload length agrees with the data count.
func (p *Packet) Validate() error {
	if p.LineNumber > maxLine {
		return fmt.Errorf("%w: line number %d exceeds 11 bits", ErrInvalidPacket, p.LineNumber)
	}
	if p.HorizontalOffset > maxOffset {
		return fmt.Errorf("%w: horizontal offset %d exceeds 12 bits", ErrInvalidPacket, p.HorizontalOffset)
	}
	if p.DID > wordMask || p.SDID > wordMask || p.DataCount > wordMask || p.Checksum > wordMask {
		return fmt.Errorf("%w: header word exceeds 10 bits", ErrInvalidPacket)
	}
	if n := p.Len(); n != len(p.Payload) {
		return fmt.Errorf("%w: data count %d, payload holds %d words", ErrInvalidPacket, n, len(p.Payload))
	}
	for i, w := range p.Payload {
		if w > wordMask {
			return fmt.Errorf("%w: payload word %d exceeds 10 bits", ErrInvalidPacket, i)
		}
	}
	return nil
}

// Strip removes parity bits 9:8 and returns the 8-bit value.
func Strip(w uint16) uint8 {
	return uint8(w)
}

// Parity returns v with SMPTE ST 291 parity applied: bit 8 is even parity
// over bits 7:0 and bit 9 is its inverse.
func Parity(v uint8) uint16 {
	p := uint16(bits.OnesCount8(v) & 1)
	return uint16(v) | p<<8 | (p^1)<<9
}

// ParityValid reports whether the two high bits of w are correct for its
// low 8 bits.
func ParityValid(w uint16) bool {
	return w&wordMask == Parity(Strip(w))
}

// Checksum computes the 9-bit sum of the low 9 bits of DID, SDID, data
// count and payload words, with bit 9 set to the inverse of bit 8.
func Checksum(did, sdid, dc uint16, payload []uint16) uint16 {
	sum := uint32(did&0x1FF) + uint32(sdid&0x1FF) + uint32(dc&0x1FF)
	for _, w := range payload {
		sum += uint32(w & 0x1FF)
	}
	s := uint16(sum & 0x1FF)
	return s | (^s>>8&1)<<9
}

// ParseWords decodes a classic ancillary word sequence: ADF (0x000 0x3FF
// 0x3FF), DID, SDID, data count, user data words and checksum. Raster
// position fields are left zero.
func ParseWords(words []uint16) (*Packet, error) {
	if len(words) < 7 {
		return nil, fmt.Errorf("%w: %d words", ErrShortWords, len(words))
	}
	if words[0]&wordMask != ADF0 || words[1]&wordMask != ADF1 || words[2]&wordMask != ADF2 {
		return nil, ErrNoADF
	}
	p := &Packet{
		DID:       words[3] & wordMask,
		SDID:      words[4] & wordMask,
		DataCount: words[5] & wordMask,
	}
	n := p.Len()
	if len(words) < 7+n {
		return nil, fmt.Errorf("%w: need %d words, have %d", ErrShortWords, 7+n, len(words))
	}
	p.Payload = make([]uint16, n)
	for i := range p.Payload {
		p.Payload[i] = words[6+i] & wordMask
	}
	p.Checksum = words[6+n] & wordMask
	return p, nil
}
