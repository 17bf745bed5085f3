package mpegts

import "errors"

var (
	errPESTooShort  = errors.New("mpegts: PES packet too short")
	errPESStartCode = errors.New("mpegts: invalid PES start code")
)

// isPESPayload checks for the PES start code prefix (0x000001).
func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// pesLength returns the total size of a bounded PES packet starting at
// data, or 0 when the length is unknown (unbounded or header incomplete).
func pesLength(data []byte) int {
	if len(data) < 6 || !isPESPayload(data) {
		return 0
	}
	n := int(data[4])<<8 | int(data[5])
	if n == 0 {
		return 0
	}
	return 6 + n
}

// hasOptionalHeader reports whether streamID carries the optional PES
// header. padding_stream, private_stream_2, ECM, EMM, DSMCC, H.222.1 type E
// and program_stream_directory do not.
func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(payload []byte) (*PESData, error) {
	if len(payload) < 6 {
		return nil, errPESTooShort
	}
	if !isPESPayload(payload) {
		return nil, errPESStartCode
	}

	streamID := payload[3]
	packetLength := int(payload[4])<<8 | int(payload[5])

	end := len(payload)
	if packetLength > 0 && 6+packetLength <= len(payload) {
		end = 6 + packetLength
	}

	pes := &PESData{
		Raw: payload[:end],
		Header: &PESHeader{
			StreamID:     streamID,
			PacketLength: uint16(packetLength),
		},
	}

	if !hasOptionalHeader(streamID) {
		pes.Data = payload[6:end]
		return pes, nil
	}

	if len(payload) < 9 {
		return nil, errPESTooShort
	}

	// payload[6]: '10' + scrambling(2) + priority(1) + alignment(1) + copyright(1) + original(1)
	// payload[7]: PTS_DTS_flags(2) + ESCR(1) + ES_rate(1) + DSM_trick(1) + additional_copy(1) + CRC(1) + extension(1)
	// payload[8]: PES_header_data_length
	ptsDTSFlags := (payload[7] >> 6) & 0x03
	headerDataLength := int(payload[8])

	dataStart := 9 + headerDataLength
	if dataStart > end {
		dataStart = end
	}

	oh := &PESOptionalHeader{DataAlignmentIndicator: payload[6]&0x04 != 0}
	pes.Header.OptionalHeader = oh

	switch ptsDTSFlags {
	case 2:
		if end >= 14 {
			oh.PTS = parsePTSOrDTS(payload[9:14])
		}
	case 3:
		if end >= 19 {
			oh.PTS = parsePTSOrDTS(payload[9:14])
			oh.DTS = parsePTSOrDTS(payload[14:19])
		}
	}

	pes.Data = payload[dataStart:end]
	return pes, nil
}

// parsePTSOrDTS extracts a 33-bit timestamp from 5 PES timestamp bytes.
func parsePTSOrDTS(bs []byte) *ClockReference {
	if len(bs) < 5 {
		return nil
	}
	base := int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
	return &ClockReference{Base: base}
}
