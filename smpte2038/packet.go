// Package smpte2038 decodes and encodes SMPTE ST 2038 packets: MPEG-2 PES
// packets on private_stream_1 that carry ancillary data lines lifted from
// the VANC/HANC space of an SDI signal.
//
// [Parse] turns a PES byte buffer into a [Packet] holding zero or more
// [Line] values. A [Packetizer] goes the other way, packing ancillary
// packets discovered one scan line at a time into a single PES packet.
//
// Ancillary words keep their parity bits everywhere in this package: DID,
// SDID, data count, user data words and checksum are raw 10-bit values.
// Strip bits 9:8 (see vanc.Strip) before using any of them as data.
package smpte2038

// StreamID is the PES stream_id carrying SMPTE ST 2038 data (private_stream_1).
const StreamID = 0xBD

// NoPTS marks a packet whose PES header carries no presentation time stamp.
const NoPTS = ^uint64(0)

const (
	startCodePrefix = 0x000001

	// start code (3) + stream_id (1) + PES_packet_length (2) + flag bytes (2)
	// + PES_header_data_length (1)
	pesHeaderSize = 9
	ptsFieldSize  = 5

	// reserved_000000 (6) + c_not_y_channel_flag (1) + line_number (11)
	// + horizontal_offset (12) + DID (10) + SDID (10) + data_count (10)
	lineHeaderBits = 60
	wordBits       = 10

	maxPESPacketLength = 0xFFFF
	ptsMask            = 1<<33 - 1
)

// PTS_DTS_flags values.
const (
	PTSDTSNone    = 0x0
	PTSDTSOnlyPTS = 0x2
	PTSDTSBoth    = 0x3
)

// Packet is one decoded SMPTE ST 2038 PES packet.
type Packet struct {
	PacketStartCodePrefix uint32
	StreamID              uint8
	PESPacketLength       uint16

	Reserved10             uint8
	ScramblingControl      uint8
	Priority               bool
	DataAlignmentIndicator bool
	Copyright              bool
	OriginalOrCopy         bool

	PTSDTSFlags            uint8
	ESCRFlag               bool
	ESRateFlag             bool
	DSMTrickModeFlag       bool
	AdditionalCopyInfoFlag bool
	CRCFlag                bool
	ExtensionFlag          bool

	HeaderDataLength uint8

	// PTSPrefix holds the four bits ahead of the timestamp ('0010' when
	// only a PTS is present). PTS is NoPTS when HasPTS is false.
	PTSPrefix uint8
	PTS       uint64

	Lines []Line
}

// HasPTS reports whether the PES header carries a presentation time stamp.
func (p *Packet) HasPTS() bool {
	return p.PTSDTSFlags&PTSDTSOnlyPTS != 0
}

// ChecksumErrors returns the indices of lines whose stored checksum does
// not match the computed one. Mismatches are data, not parse failures:
// some encoders emit non-conformant checksums.
func (p *Packet) ChecksumErrors() []int {
	var bad []int
	for i := range p.Lines {
		if !p.Lines[i].ChecksumValid() {
			bad = append(bad, i)
		}
	}
	return bad
}
