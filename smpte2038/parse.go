package smpte2038

import (
	"fmt"

	"github.com/zsiec/st2038/internal/bitstream"
)

// Parse decodes a complete SMPTE ST 2038 PES packet. It either returns a
// fully populated packet or an error; a failure never yields partial lines.
//
// A nonzero PES_packet_length bounds the payload and must fit in buf. A
// zero length falls back to the end of buf. The line loop stops at the end
// of the payload, at 0xFF stuffing, or when fewer bits remain than a line
// header needs.
//
// Checksums are stored, not enforced; see Line.ChecksumValid.
func Parse(buf []byte) (*Packet, error) {
	if len(buf) < pesHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTooShort, len(buf), pesHeaderSize)
	}
	if buf[0] != 0x00 || buf[1] != 0x00 || buf[2] != 0x01 {
		return nil, fmt.Errorf("%w: % x", ErrInvalidStartCode, buf[:3])
	}
	if buf[3] != StreamID {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedStreamID, buf[3])
	}

	r := bitstream.NewReader(buf)
	p := &Packet{PTS: NoPTS}
	p.PacketStartCodePrefix = uint32(r.ReadBits(24))
	p.StreamID = uint8(r.ReadBits(8))
	p.PESPacketLength = uint16(r.ReadBits(16))

	p.Reserved10 = uint8(r.ReadBits(2))
	p.ScramblingControl = uint8(r.ReadBits(2))
	p.Priority = r.ReadFlag()
	p.DataAlignmentIndicator = r.ReadFlag()
	p.Copyright = r.ReadFlag()
	p.OriginalOrCopy = r.ReadFlag()

	p.PTSDTSFlags = uint8(r.ReadBits(2))
	p.ESCRFlag = r.ReadFlag()
	p.ESRateFlag = r.ReadFlag()
	p.DSMTrickModeFlag = r.ReadFlag()
	p.AdditionalCopyInfoFlag = r.ReadFlag()
	p.CRCFlag = r.ReadFlag()
	p.ExtensionFlag = r.ReadFlag()
	p.HeaderDataLength = uint8(r.ReadBits(8))

	if p.Reserved10 != 0x2 {
		return nil, headerError("marker bits '10'", ErrMalformedHeader)
	}

	end := len(buf)
	if p.PESPacketLength != 0 {
		end = 6 + int(p.PESPacketLength)
		if end > len(buf) {
			return nil, headerError(fmt.Sprintf("PES_packet_length %d exceeds %d buffered bytes",
				p.PESPacketLength, len(buf)-6), ErrTooShort)
		}
	}
	payloadStart := pesHeaderSize + int(p.HeaderDataLength)
	if payloadStart > end {
		return nil, headerError("PES_header_data_length", ErrTooShort)
	}

	if p.HasPTS() {
		if p.HeaderDataLength < ptsFieldSize {
			return nil, headerError("PTS", ErrMalformedHeader)
		}
		prefix, pts, ok := decodePTS(r)
		if !ok {
			return nil, headerError("PTS marker_bit", ErrMalformedHeader)
		}
		p.PTSPrefix = prefix
		p.PTS = pts
	}

	lines, err := parseLines(buf[payloadStart:end])
	if err != nil {
		return nil, err
	}
	p.Lines = lines
	return p, nil
}

// decodePTS reads the 40-bit PTS field: a 4-bit prefix then 33 value bits
// split 3/15/15, each group followed by a marker bit that must be 1.
func decodePTS(r *bitstream.Reader) (prefix uint8, pts uint64, ok bool) {
	prefix = uint8(r.ReadBits(4))
	hi := r.ReadBits(3)
	m1 := r.ReadFlag()
	mid := r.ReadBits(15)
	m2 := r.ReadFlag()
	lo := r.ReadBits(15)
	m3 := r.ReadFlag()
	if r.Err() != nil || !m1 || !m2 || !m3 {
		return 0, 0, false
	}
	return prefix, hi<<30 | mid<<15 | lo, true
}

// encodePTS returns the 5-byte PTS field with the given 4-bit prefix.
func encodePTS(prefix uint8, pts uint64) []byte {
	pts &= ptsMask
	return []byte{
		prefix<<4 | byte(pts>>29)&0x0E | 0x01,
		byte(pts >> 22),
		byte(pts>>14)&0xFE | 0x01,
		byte(pts >> 7),
		byte(pts<<1)&0xFE | 0x01,
	}
}

func parseLines(payload []byte) ([]Line, error) {
	r := bitstream.NewReader(payload)
	var lines []Line
	for r.RemainingBits() >= lineHeaderBits {
		if isStuffing(r.Rest()) {
			break
		}
		l, err := decodeLine(r, len(lines))
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func isStuffing(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return len(b) > 0
}
