package mpegts

import "fmt"

const (
	packetSize    = 188
	packetHeader  = 4
	packetPayload = packetSize - packetHeader
	syncByte      = 0x47

	m2tsPacketSize = 192
)

func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) != packetSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), packetSize)
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := &Packet{}
	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.HasAdaptationField = buf[3]&0x20 != 0
	p.Header.HasPayload = buf[3]&0x10 != 0
	p.Header.ContinuityCounter = buf[3] & 0x0F

	offset := packetHeader

	if p.Header.HasAdaptationField {
		afLen := int(buf[offset])
		if afLen > 0 && offset+1 < packetSize {
			p.Header.DiscontinuityIndicator = buf[offset+1]&0x80 != 0
		}
		offset += 1 + afLen
		if offset > packetSize {
			offset = packetSize
		}
	}

	if p.Header.HasPayload && offset < packetSize {
		p.Payload = make([]byte, packetSize-offset)
		copy(p.Payload, buf[offset:])
	}

	return p, nil
}

// putPacket fills dst with one TS packet carrying as much of payload as
// fits and returns the number of payload bytes consumed. A short payload is
// right-aligned behind an adaptation field padded with 0xFF stuffing.
func putPacket(dst *[packetSize]byte, pid uint16, cc uint8, pusi bool, payload []byte) int {
	dst[0] = syncByte
	dst[1] = byte(pid>>8) & 0x1F
	dst[2] = byte(pid)
	if pusi {
		dst[1] |= 0x40
	}
	dst[3] = 0x10 | cc&0x0F

	if len(payload) >= packetPayload {
		copy(dst[packetHeader:], payload[:packetPayload])
		return packetPayload
	}

	stuffLen := packetPayload - len(payload)
	dst[3] |= 0x20
	dst[4] = byte(stuffLen - 1) // adaptation_field_length
	if stuffLen > 1 {
		dst[5] = 0x00 // no adaptation flags
		for i := 6; i < packetHeader+stuffLen; i++ {
			dst[i] = 0xFF
		}
	}
	copy(dst[packetHeader+stuffLen:], payload)
	return len(payload)
}
