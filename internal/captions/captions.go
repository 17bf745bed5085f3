// Package captions decodes closed captions carried in ancillary data:
// CEA-608 byte pairs (SMPTE ST 334-1, DID 0x61 SDID 0x02) and CEA-708
// caption distribution packets (SMPTE ST 334-2, DID 0x61 SDID 0x01).
// Caption text is rendered with github.com/zsiec/ccx.
package captions

import (
	"errors"
	"fmt"

	"github.com/zsiec/ccx"
	"github.com/zsiec/st2038/vanc"
)

// Caption channel numbers on emitted frames: CC1-CC4 for CEA-608, and
// 708 service n as n+6.
const (
	channel708Base = 6
	services708    = 6
)

var (
	ErrNotCaption = errors.New("captions: not a caption packet")
	ErrShort608   = errors.New("captions: CEA-608 packet shorter than 3 bytes")
)

// IsCaption reports whether p carries CEA-608 or CEA-708 caption data.
func IsCaption(p *vanc.Packet) bool {
	id := p.ID()
	return id == vanc.IDCEA608 || id == vanc.IDCEA708
}

// Decoder keeps caption decoding state across a sequence of ancillary
// packets from one video stream. It is not safe for concurrent use.
type Decoder struct {
	cea608 map[int]*ccx.CEA608Decoder
	cea708 map[int]*ccx.CEA708Service
	dtvcc  []byte

	// current 608 data channel per field (0 or 1 within the field)
	chan608 [2]int
	// last control pair per field; transmitted control codes are doubled
	lastCtrl    [2][2]byte
	lastWasCtrl [2]bool
}

// NewDecoder returns a Decoder for CC1-CC4 and 708 services 1-6.
func NewDecoder() *Decoder {
	d := &Decoder{
		cea608: make(map[int]*ccx.CEA608Decoder, 4),
		cea708: make(map[int]*ccx.CEA708Service, services708),
	}
	for ch := 1; ch <= 4; ch++ {
		d.cea608[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= services708; svc++ {
		d.cea708[svc] = ccx.NewCEA708Service()
	}
	return d
}

// Decode feeds one ancillary packet to the decoder and returns any caption
// frames whose displayed text changed. pts is stamped on every frame.
func (d *Decoder) Decode(p *vanc.Packet, pts int64) ([]*ccx.CaptionFrame, error) {
	switch p.ID() {
	case vanc.IDCEA608:
		return d.decode608Packet(p.Data(), pts)
	case vanc.IDCEA708:
		cdp, err := ParseCDP(p.Data())
		if err != nil {
			return nil, err
		}
		return d.DecodeCDP(cdp, pts), nil
	}
	return nil, fmt.Errorf("%w: DID 0x%02X SDID 0x%02X", ErrNotCaption, vanc.Strip(p.DID), vanc.Strip(p.SDID))
}

// decode608Packet handles the SMPTE ST 334-1 payload: a field/line byte
// (bit 7 set for field 1) followed by one cc_data pair.
func (d *Decoder) decode608Packet(b []byte, pts int64) ([]*ccx.CaptionFrame, error) {
	if len(b) < 3 {
		return nil, ErrShort608
	}
	field := 1
	if b[0]&0x80 != 0 {
		field = 0
	}
	var frames []*ccx.CaptionFrame
	if f := d.decode608(field, b[1], b[2], pts); f != nil {
		frames = append(frames, f)
	}
	return frames, nil
}

// DecodeCDP feeds every valid triplet of a CDP to the 608 and 708 decoders.
func (d *Decoder) DecodeCDP(c *CDP, pts int64) []*ccx.CaptionFrame {
	var frames []*ccx.CaptionFrame
	for _, t := range c.Triplets {
		if !t.Valid {
			continue
		}
		switch t.Type {
		case CCTypeNTSCField1, CCTypeNTSCField2:
			if f := d.decode608(int(t.Type), t.Data[0], t.Data[1], pts); f != nil {
				frames = append(frames, f)
			}
		case CCTypeDTVCCStart:
			frames = append(frames, d.drainDTVCC(pts)...)
			d.dtvcc = d.dtvcc[:0]
			d.dtvcc = append(d.dtvcc, t.Data[0], t.Data[1])
		case CCTypeDTVCCData:
			if len(d.dtvcc) > 0 {
				d.dtvcc = append(d.dtvcc, t.Data[0], t.Data[1])
			}
		}
	}
	return append(frames, d.drainDTVCC(pts)...)
}

// decode608 routes one parity-coded byte pair of field (0 or 1) to the
// decoder of the data channel it belongs to.
func (d *Decoder) decode608(field int, b1, b2 byte, pts int64) *ccx.CaptionFrame {
	cc1, cc2 := b1&0x7F, b2&0x7F
	if cc1 == 0 && cc2 == 0 {
		return nil // padding
	}

	if cc1 >= 0x10 && cc1 <= 0x1F {
		cp := [2]byte{cc1, cc2}
		if d.lastWasCtrl[field] && d.lastCtrl[field] == cp {
			d.lastWasCtrl[field] = false
			return nil
		}
		d.lastCtrl[field] = cp
		d.lastWasCtrl[field] = true
		if cc1&0x08 != 0 {
			d.chan608[field] = 1
		} else {
			d.chan608[field] = 0
		}
	} else {
		d.lastWasCtrl[field] = false
	}

	channel := 1 + 2*field + d.chan608[field]
	dec := d.cea608[channel]
	text := dec.Decode(cc1, cc2)
	if text == "" {
		return nil
	}
	return &ccx.CaptionFrame{PTS: pts, Text: text, Channel: channel, Regions: dec.StyledRegions()}
}

// drainDTVCC decodes the buffered DTVCC packet once all of its bytes have
// arrived.
func (d *Decoder) drainDTVCC(pts int64) []*ccx.CaptionFrame {
	if len(d.dtvcc) < 1 {
		return nil
	}
	size := ccx.DTVCCPacketSize(d.dtvcc[0])
	if len(d.dtvcc) < size {
		return nil
	}

	var frames []*ccx.CaptionFrame
	for _, block := range ccx.ParseDTVCCPacket(d.dtvcc[:size]) {
		svc := d.cea708[block.ServiceNum]
		if svc == nil || !svc.ProcessBlock(block.Data) {
			continue
		}
		if text := svc.DisplayText(); text != "" {
			frames = append(frames, &ccx.CaptionFrame{
				PTS:     pts,
				Text:    text,
				Channel: block.ServiceNum + channel708Base,
				Regions: svc.StyledRegions(),
			})
		}
	}
	d.dtvcc = d.dtvcc[:0]
	return frames
}
