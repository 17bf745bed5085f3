package captions

import (
	"errors"
	"fmt"
)

const (
	cdpIdentifier = 0x9669

	sectionTimecode = 0x71
	sectionCCData   = 0x72
	sectionSvcInfo  = 0x73
	sectionFooter   = 0x74

	cdpHeaderSize = 7
)

// cc_type values of a caption data triplet.
const (
	CCTypeNTSCField1 = 0
	CCTypeNTSCField2 = 1
	CCTypeDTVCCData  = 2
	CCTypeDTVCCStart = 3
)

var (
	ErrNotCDP         = errors.New("captions: missing CDP identifier 0x9669")
	ErrCDPLength      = errors.New("captions: cdp_length disagrees with packet size")
	ErrCDPChecksum    = errors.New("captions: CDP checksum mismatch")
	ErrCDPTruncated   = errors.New("captions: CDP section truncated")
	ErrUnknownSection = errors.New("captions: unknown CDP section")
)

// CDP is a decoded SMPTE ST 334-2 Caption Distribution Packet.
type CDP struct {
	FrameRate       uint8 // cdp_frame_rate code, 1..8
	TimecodePresent bool
	CCDataPresent   bool
	SvcInfoPresent  bool
	ServiceActive   bool
	Sequence        uint16
	Triplets        []Triplet
}

// Triplet is one cc_data entry: a valid flag, a cc_type and two data bytes.
type Triplet struct {
	Valid bool
	Type  uint8
	Data  [2]byte
}

var frameRates = [...]float64{0, 24000.0 / 1001, 24, 25, 30000.0 / 1001, 30, 50, 60000.0 / 1001, 60}

// FrameRateHz returns the frame rate signaled by FrameRate, or 0 for a
// reserved code.
func (c *CDP) FrameRateHz() float64 {
	if int(c.FrameRate) >= len(frameRates) {
		return 0
	}
	return frameRates[c.FrameRate]
}

// ParseCDP decodes a CDP carried as the user data of a DID 0x61 / SDID 0x01
// ancillary packet. The footer checksum makes the byte sum of the whole
// packet zero modulo 256.
func ParseCDP(b []byte) (*CDP, error) {
	if len(b) < cdpHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCDPTruncated, len(b))
	}
	if int(b[0])<<8|int(b[1]) != cdpIdentifier {
		return nil, ErrNotCDP
	}
	if int(b[2]) != len(b) {
		return nil, fmt.Errorf("%w: cdp_length %d, have %d", ErrCDPLength, b[2], len(b))
	}
	var sum byte
	for _, v := range b {
		sum += v
	}
	if sum != 0 {
		return nil, ErrCDPChecksum
	}

	c := &CDP{
		FrameRate:       b[3] >> 4,
		TimecodePresent: b[4]&0x80 != 0,
		CCDataPresent:   b[4]&0x40 != 0,
		SvcInfoPresent:  b[4]&0x20 != 0,
		ServiceActive:   b[4]&0x02 != 0,
		Sequence:        uint16(b[5])<<8 | uint16(b[6]),
	}

	rest := b[cdpHeaderSize:]
	for len(rest) > 0 {
		switch rest[0] {
		case sectionTimecode:
			if len(rest) < 5 {
				return nil, fmt.Errorf("%w: time_code_section", ErrCDPTruncated)
			}
			rest = rest[5:]

		case sectionCCData:
			if len(rest) < 2 {
				return nil, fmt.Errorf("%w: ccdata_section", ErrCDPTruncated)
			}
			n := int(rest[1] & 0x1F)
			if len(rest) < 2+3*n {
				return nil, fmt.Errorf("%w: %d cc triplets", ErrCDPTruncated, n)
			}
			for i := 0; i < n; i++ {
				t := rest[2+3*i:]
				c.Triplets = append(c.Triplets, Triplet{
					Valid: t[0]&0x04 != 0,
					Type:  t[0] & 0x03,
					Data:  [2]byte{t[1], t[2]},
				})
			}
			rest = rest[2+3*n:]

		case sectionSvcInfo:
			if len(rest) < 2 {
				return nil, fmt.Errorf("%w: ccsvcinfo_section", ErrCDPTruncated)
			}
			n := int(rest[1] & 0x0F)
			if len(rest) < 2+7*n {
				return nil, fmt.Errorf("%w: %d service entries", ErrCDPTruncated, n)
			}
			rest = rest[2+7*n:]

		case sectionFooter:
			if len(rest) < 4 {
				return nil, fmt.Errorf("%w: cdp_footer", ErrCDPTruncated)
			}
			return c, nil

		default:
			return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownSection, rest[0])
		}
	}
	return nil, fmt.Errorf("%w: no cdp_footer", ErrCDPTruncated)
}

// BuildCDP assembles a CDP carrying the given triplets, with header and
// footer sequence counters set to seq and a valid checksum.
func BuildCDP(frameRate uint8, seq uint16, triplets []Triplet) []byte {
	b := []byte{
		cdpIdentifier >> 8, cdpIdentifier & 0xFF,
		0, // cdp_length, patched below
		frameRate<<4 | 0x0F,
		0x40 | 0x02 | 0x01, // ccdata_present, caption_service_active, reserved
		byte(seq >> 8), byte(seq),
		sectionCCData, 0xE0 | byte(len(triplets))&0x1F,
	}
	for _, t := range triplets {
		marker := byte(0xF8) | t.Type&0x03
		if t.Valid {
			marker |= 0x04
		}
		b = append(b, marker, t.Data[0], t.Data[1])
	}
	b = append(b, sectionFooter, byte(seq>>8), byte(seq), 0)
	b[2] = byte(len(b))

	var sum byte
	for _, v := range b {
		sum += v
	}
	b[len(b)-1] = -sum
	return b
}
