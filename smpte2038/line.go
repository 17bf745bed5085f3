package smpte2038

import (
	"fmt"

	"github.com/zsiec/st2038/internal/bitstream"
	"github.com/zsiec/st2038/vanc"
)

// Line is one ancillary data packet as carried inside a SMPTE ST 2038 PES
// payload, tagged with the raster position it was taken from.
//
// DID, SDID, DataCount, UserDataWords and ChecksumWord are raw 10-bit words
// with parity in bits 9:8. The number of user data words is
// vanc.Strip(DataCount), not DataCount itself.
type Line struct {
	Reserved         uint8
	ChromaChannel    bool // c_not_y_channel_flag
	LineNumber       uint16
	HorizontalOffset uint16
	DID              uint16
	SDID             uint16
	DataCount        uint16
	UserDataWords    []uint16
	ChecksumWord     uint16
}

// Count returns the parity-stripped data count.
func (l *Line) Count() int {
	return int(vanc.Strip(l.DataCount))
}

// ChecksumValid reports whether ChecksumWord matches the checksum computed
// over DID, SDID, data count and user data words.
func (l *Line) ChecksumValid() bool {
	return l.ChecksumWord&0x3FF == vanc.Checksum(l.DID, l.SDID, l.DataCount, l.UserDataWords)
}

// Words returns the line as a classic ancillary word sequence: ADF
// (0x000 0x3FF 0x3FF), DID, SDID, data count, user data words, checksum.
// The result is a fresh slice; l is not modified.
func (l *Line) Words() []uint16 {
	words := make([]uint16, 0, 7+len(l.UserDataWords))
	words = append(words, vanc.ADF0, vanc.ADF1, vanc.ADF2, l.DID, l.SDID, l.DataCount)
	words = append(words, l.UserDataWords...)
	return append(words, l.ChecksumWord)
}

// VANC returns the line as a vanc.Packet. Payload words are copied.
func (l *Line) VANC() *vanc.Packet {
	return &vanc.Packet{
		LineNumber:       l.LineNumber,
		HorizontalOffset: l.HorizontalOffset,
		ChromaChannel:    l.ChromaChannel,
		DID:              l.DID,
		SDID:             l.SDID,
		DataCount:        l.DataCount,
		Payload:          append([]uint16(nil), l.UserDataWords...),
		Checksum:         l.ChecksumWord,
	}
}

// LineFromVANC builds a Line from a decoded ancillary packet. Parity and
// checksum are taken as-is; nothing is recomputed.
func LineFromVANC(p *vanc.Packet) Line {
	return Line{
		ChromaChannel:    p.ChromaChannel,
		LineNumber:       p.LineNumber,
		HorizontalOffset: p.HorizontalOffset,
		DID:              p.DID,
		SDID:             p.SDID,
		DataCount:        p.DataCount,
		UserDataWords:    append([]uint16(nil), p.Payload...),
		ChecksumWord:     p.Checksum,
	}
}

// encodedSize returns the number of bytes the line occupies on the wire,
// including the trailing alignment bits.
func (l *Line) encodedSize() int {
	n := lineHeaderBits + (len(l.UserDataWords)+1)*wordBits
	return (n + 7) / 8
}

func (l *Line) validate() error {
	p := vanc.Packet{
		LineNumber:       l.LineNumber,
		HorizontalOffset: l.HorizontalOffset,
		DID:              l.DID,
		SDID:             l.SDID,
		DataCount:        l.DataCount,
		Payload:          l.UserDataWords,
		Checksum:         l.ChecksumWord,
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedLine, err)
	}
	return nil
}

// decodeLine reads one line starting at a byte boundary and leaves the
// reader on the next byte boundary.
func decodeLine(r *bitstream.Reader, index int) (Line, error) {
	var l Line
	l.Reserved = uint8(r.ReadBits(6))
	if l.Reserved != 0 {
		return Line{}, lineError(index, "reserved_000000")
	}
	l.ChromaChannel = r.ReadFlag()
	l.LineNumber = uint16(r.ReadBits(11))
	l.HorizontalOffset = uint16(r.ReadBits(12))
	l.DID = uint16(r.ReadBits(wordBits))
	l.SDID = uint16(r.ReadBits(wordBits))
	l.DataCount = uint16(r.ReadBits(wordBits))
	if r.Err() != nil {
		return Line{}, lineError(index, "header")
	}

	n := l.Count()
	if r.RemainingBits() < (n+1)*wordBits {
		return Line{}, lineError(index, "data_count")
	}
	l.UserDataWords = make([]uint16, n)
	for i := range l.UserDataWords {
		l.UserDataWords[i] = uint16(r.ReadBits(wordBits))
	}
	l.ChecksumWord = uint16(r.ReadBits(wordBits))
	r.AlignToByte()
	if r.Err() != nil {
		return Line{}, lineError(index, "checksum_word")
	}
	return l, nil
}

// encode writes the line followed by '1' bits up to the next byte boundary.
func (l *Line) encode(w *bitstream.Writer) {
	w.WriteBits(0, 6)
	w.WriteFlag(l.ChromaChannel)
	w.WriteBits(uint64(l.LineNumber), 11)
	w.WriteBits(uint64(l.HorizontalOffset), 12)
	w.WriteBits(uint64(l.DID), wordBits)
	w.WriteBits(uint64(l.SDID), wordBits)
	w.WriteBits(uint64(l.DataCount), wordBits)
	for _, udw := range l.UserDataWords {
		w.WriteBits(uint64(udw), wordBits)
	}
	w.WriteBits(uint64(l.ChecksumWord), wordBits)
	w.AlignOnes()
}
