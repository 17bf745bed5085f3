// Package mpegts demuxes and muxes the MPEG-TS layer around SMPTE ST 2038
// ancillary data streams. The demuxer discovers programs through PAT/PMT,
// keeps PMT descriptors so ancillary PIDs can be recognized, and reassembles
// PES packets. The muxer writes a single-program stream carrying one
// ancillary PID.
package mpegts

// Stream types and descriptors identifying SMPTE ST 2038 in a PMT.
const (
	StreamTypePrivateData = 0x06

	DescriptorTagRegistration = 0x05

	// FormatIdentifierVANC is the registration descriptor format_identifier
	// "VANC".
	FormatIdentifierVANC = 0x56414E43
)

// Packet is a parsed 188-byte MPEG-TS transport stream packet.
type Packet struct {
	Header  PacketHeader
	Payload []byte
}

// PacketHeader contains the parsed header fields of a transport stream packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
}

// DemuxerData is the output of the demuxer for each logical unit (PAT, PMT,
// or PES packet). Exactly one of PAT, PMT, or PES will be non-nil.
type DemuxerData struct {
	FirstPacket *Packet
	PAT         *PATData
	PMT         *PMTData
	PES         *PESData
}

// PATData contains the parsed Program Association Table.
type PATData struct {
	Programs []*PATProgram
}

// PATProgram maps a program number to its PMT PID.
type PATProgram struct {
	ProgramMapID  uint16
	ProgramNumber uint16
}

// PMTData contains the parsed Program Map Table.
type PMTData struct {
	ProgramNumber     uint16
	PCRPID            uint16
	ProgramInfo       []*Descriptor
	ElementaryStreams []*PMTElementaryStream
}

// PMTElementaryStream describes a single elementary stream in a PMT.
type PMTElementaryStream struct {
	ElementaryPID uint16
	StreamType    uint8
	Descriptors   []*Descriptor
}

// FormatIdentifier returns the format_identifier of the stream's
// registration descriptor, or 0 if it carries none.
func (es *PMTElementaryStream) FormatIdentifier() uint32 {
	for _, d := range es.Descriptors {
		if d.Tag == DescriptorTagRegistration && len(d.Data) >= 4 {
			return uint32(d.Data[0])<<24 | uint32(d.Data[1])<<16 | uint32(d.Data[2])<<8 | uint32(d.Data[3])
		}
	}
	return 0
}

// IsSMPTE2038 reports whether the stream is signaled as SMPTE ST 2038:
// private data stream_type with a "VANC" registration descriptor.
func (es *PMTElementaryStream) IsSMPTE2038() bool {
	return es.StreamType == StreamTypePrivateData && es.FormatIdentifier() == FormatIdentifierVANC
}

// Descriptor is a raw MPEG-2 descriptor.
type Descriptor struct {
	Tag  uint8
	Data []byte
}

// PESData contains a reassembled Packetized Elementary Stream.
type PESData struct {
	// Raw is the complete PES packet from the start code, bounded by
	// PES_packet_length when that is nonzero.
	Raw    []byte
	Data   []byte
	Header *PESHeader
}

// PESHeader contains the parsed PES packet header.
type PESHeader struct {
	OptionalHeader *PESOptionalHeader
	StreamID       uint8
	PacketLength   uint16
}

// PESOptionalHeader carries optional PES fields including timestamps.
type PESOptionalHeader struct {
	DataAlignmentIndicator bool
	PTS                    *ClockReference
	DTS                    *ClockReference
}

// ClockReference holds a 33-bit MPEG-TS timestamp base value (90 kHz clock).
type ClockReference struct {
	Base int64
}

// PacketsParser is a callback invoked with accumulated packets for a PID
// before standard parsing. If skip is true, the demuxer skips its own
// parsing for those packets.
type PacketsParser func(ps []*Packet) (ds []*DemuxerData, skip bool, err error)
