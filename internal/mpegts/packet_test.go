package mpegts

import (
	"bytes"
	"testing"
)

func makePacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	buf := make([]byte, packetSize)
	buf[0] = syncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | (cc & 0x0F) // payload only
	if pusi {
		buf[1] |= 0x40
	}
	copy(buf[4:], payload)
	return buf
}

func TestParsePacket_Header(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		buf  []byte
		pid  uint16
		cc   uint8
		pusi bool
		tei  bool
	}{
		{"plain", makePacket(0x100, 5, false, []byte{1, 2, 3}), 0x100, 5, false, false},
		{"pusi", makePacket(0x1E1, 0, true, nil), 0x1E1, 0, true, false},
		{"max pid", makePacket(0x1FFF, 15, false, nil), 0x1FFF, 15, false, false},
		{"tei", func() []byte { b := makePacket(0x42, 1, false, nil); b[1] |= 0x80; return b }(), 0x42, 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := parsePacket(tt.buf)
			if err != nil {
				t.Fatal(err)
			}
			h := p.Header
			if h.PID != tt.pid || h.ContinuityCounter != tt.cc || h.PayloadUnitStartIndicator != tt.pusi || h.TransportErrorIndicator != tt.tei {
				t.Errorf("header = %+v, want PID 0x%X CC %d PUSI %v TEI %v", h, tt.pid, tt.cc, tt.pusi, tt.tei)
			}
			if !h.HasPayload || h.HasAdaptationField {
				t.Error("want payload only")
			}
			if len(p.Payload) != packetPayload {
				t.Errorf("payload length = %d, want %d", len(p.Payload), packetPayload)
			}
		})
	}
}

func TestParsePacket_Rejects(t *testing.T) {
	t.Parallel()
	if _, err := parsePacket(make([]byte, packetSize)); err == nil {
		t.Error("expected error for bad sync byte")
	}
	if _, err := parsePacket([]byte{0x47, 0x00, 0x00}); err == nil {
		t.Error("expected error for wrong packet size")
	}
}

func TestPutPacket(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload int
		want    int
	}{
		{"full", 300, packetPayload},
		{"exact", packetPayload, packetPayload},
		{"one short", packetPayload - 1, packetPayload - 1},
		{"two short", packetPayload - 2, packetPayload - 2},
		{"tiny", 13, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			payload := make([]byte, tt.payload)
			for i := range payload {
				payload[i] = byte(i)
			}

			var pkt [packetSize]byte
			n := putPacket(&pkt, 0x0DE, 7, true, payload)
			if n != tt.want {
				t.Fatalf("consumed %d, want %d", n, tt.want)
			}

			p, err := parsePacket(pkt[:])
			if err != nil {
				t.Fatal(err)
			}
			if p.Header.PID != 0x0DE || p.Header.ContinuityCounter != 7 || !p.Header.PayloadUnitStartIndicator {
				t.Errorf("header = %+v", p.Header)
			}
			if p.Header.HasAdaptationField != (n < packetPayload) {
				t.Errorf("adaptation field = %v for %d payload bytes", p.Header.HasAdaptationField, n)
			}
			if !bytes.Equal(p.Payload, payload[:n]) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(p.Payload), n)
			}
		})
	}
}
