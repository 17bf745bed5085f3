package smpte2038

import (
	"encoding/hex"
	"errors"
	"slices"
	"testing"
)

// goldenPES is a PES packet with PTS 900000 and one CEA-608 line on line 9
// carrying user data 0x01 0x02 0x03.
const goldenPES = "000001bd00158480052100377741000240016140a034050280e6cf"

// Encoded lines, each ending on a byte boundary.
const (
	goldenLine608 = "000240016140a034050280e6cf" // Y, line 9, offset 0, 61/02, 3 words
	goldenLineAFD = "020280164181502441205e3f"   // C, line 10, offset 5, 41/05, 2 words
)

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// encodePESPTS mirrors the 5-byte PTS field layout with marker bits.
func encodePESPTS(prefix byte, value uint64) []byte {
	bs := make([]byte, 5)
	bs[0] = prefix<<4 | byte((value>>29)&0x0E) | 0x01
	bs[1] = byte(value >> 22)
	bs[2] = byte((value>>14)&0xFE) | 0x01
	bs[3] = byte(value >> 7)
	bs[4] = byte((value<<1)&0xFE) | 0x01
	return bs
}

// buildPES assembles a private_stream_1 PES packet around payload. A
// negative pts omits the timestamp.
func buildPES(pts int64, payload []byte) []byte {
	var opt []byte
	flags := byte(0)
	if pts >= 0 {
		flags = PTSDTSOnlyPTS
		opt = encodePESPTS(0x2, uint64(pts))
	}
	length := 3 + len(opt) + len(payload)
	buf := []byte{0x00, 0x00, 0x01, StreamID, byte(length >> 8), byte(length), 0x84, flags << 6, byte(len(opt))}
	buf = append(buf, opt...)
	return append(buf, payload...)
}

func TestParse_Golden(t *testing.T) {
	t.Parallel()
	p, err := Parse(mustHex(t, goldenPES))
	if err != nil {
		t.Fatal(err)
	}

	if p.PacketStartCodePrefix != 0x000001 {
		t.Errorf("start code = 0x%06X, want 0x000001", p.PacketStartCodePrefix)
	}
	if p.StreamID != StreamID {
		t.Errorf("stream id = 0x%02X, want 0x%02X", p.StreamID, StreamID)
	}
	if p.PESPacketLength != 21 {
		t.Errorf("PES_packet_length = %d, want 21", p.PESPacketLength)
	}
	if p.Reserved10 != 2 || !p.DataAlignmentIndicator || p.Priority || p.Copyright || p.OriginalOrCopy {
		t.Errorf("flag byte decoded wrong: %+v", p)
	}
	if p.PTSDTSFlags != PTSDTSOnlyPTS || !p.HasPTS() {
		t.Errorf("PTS_DTS_flags = %d, want %d", p.PTSDTSFlags, PTSDTSOnlyPTS)
	}
	if p.HeaderDataLength != 5 {
		t.Errorf("PES_header_data_length = %d, want 5", p.HeaderDataLength)
	}
	if p.PTSPrefix != 0x2 {
		t.Errorf("PTS prefix = %d, want 2", p.PTSPrefix)
	}
	if p.PTS != 900000 {
		t.Errorf("PTS = %d, want 900000", p.PTS)
	}
	if len(p.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(p.Lines))
	}

	l := p.Lines[0]
	if l.ChromaChannel || l.LineNumber != 9 || l.HorizontalOffset != 0 {
		t.Errorf("raster = (%v, %d, %d), want (false, 9, 0)", l.ChromaChannel, l.LineNumber, l.HorizontalOffset)
	}
	if l.DID != 0x161 || l.SDID != 0x102 || l.DataCount != 0x203 {
		t.Errorf("DID/SDID/DC = 0x%03X/0x%03X/0x%03X, want 0x161/0x102/0x203", l.DID, l.SDID, l.DataCount)
	}
	if want := []uint16{0x101, 0x102, 0x203}; !slices.Equal(l.UserDataWords, want) {
		t.Errorf("user data words = %x, want %x", l.UserDataWords, want)
	}
	if l.ChecksumWord != 0x26C {
		t.Errorf("checksum = 0x%03X, want 0x26C", l.ChecksumWord)
	}
	if !l.ChecksumValid() {
		t.Error("checksum should be valid")
	}
	if bad := p.ChecksumErrors(); len(bad) != 0 {
		t.Errorf("checksum errors = %v, want none", bad)
	}
}

func TestParse_DataCountScenario(t *testing.T) {
	t.Parallel()
	const dc = 0x203
	p, err := Parse(buildPES(0, mustHex(t, goldenLine608)))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(p.Lines))
	}
	if got := p.Lines[0].Count(); got != dc&0xFF {
		t.Errorf("stripped data_count = %d, want %d", got, dc&0xFF)
	}
	if got := len(p.Lines[0].UserDataWords); got != dc&0xFF {
		t.Errorf("payload words = %d, want %d", got, dc&0xFF)
	}
}

func TestParse_MultipleLinesInOrder(t *testing.T) {
	t.Parallel()
	payload := append(mustHex(t, goldenLineAFD), mustHex(t, goldenLine608)...)
	p, err := Parse(buildPES(3003, payload))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(p.Lines))
	}

	afd := p.Lines[0]
	if !afd.ChromaChannel || afd.LineNumber != 10 || afd.HorizontalOffset != 5 {
		t.Errorf("line 0 raster = (%v, %d, %d), want (true, 10, 5)", afd.ChromaChannel, afd.LineNumber, afd.HorizontalOffset)
	}
	if afd.DID != 0x241 || afd.SDID != 0x205 || afd.ChecksumWord != 0x178 {
		t.Errorf("line 0 DID/SDID/CS = 0x%03X/0x%03X/0x%03X", afd.DID, afd.SDID, afd.ChecksumWord)
	}
	if p.Lines[1].LineNumber != 9 {
		t.Errorf("line 1 number = %d, want 9", p.Lines[1].LineNumber)
	}
	if p.PTS != 3003 {
		t.Errorf("PTS = %d, want 3003", p.PTS)
	}
}

func TestParse_NoPTS(t *testing.T) {
	t.Parallel()
	p, err := Parse(buildPES(-1, mustHex(t, goldenLine608)))
	if err != nil {
		t.Fatal(err)
	}
	if p.HasPTS() {
		t.Error("HasPTS should be false")
	}
	if p.PTS != NoPTS {
		t.Errorf("PTS = %d, want NoPTS", p.PTS)
	}
	if len(p.Lines) != 1 {
		t.Errorf("lines = %d, want 1", len(p.Lines))
	}
}

func TestParse_MaxPTS(t *testing.T) {
	t.Parallel()
	const maxPTS = 1<<33 - 1
	p, err := Parse(buildPES(maxPTS, nil))
	if err != nil {
		t.Fatal(err)
	}
	if p.PTS != maxPTS {
		t.Errorf("PTS = %d, want %d", p.PTS, uint64(maxPTS))
	}
	if len(p.Lines) != 0 {
		t.Errorf("lines = %d, want 0", len(p.Lines))
	}
}

func TestParse_Stuffing(t *testing.T) {
	t.Parallel()
	payload := append(mustHex(t, goldenLine608), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	p, err := Parse(buildPES(0, payload))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Lines) != 1 {
		t.Errorf("lines = %d, want 1", len(p.Lines))
	}
}

func TestParse_HeaderStuffingSkipped(t *testing.T) {
	t.Parallel()
	line := mustHex(t, goldenLine608)
	opt := append(encodePESPTS(0x2, 1234), 0xFF, 0xFF)
	length := 3 + len(opt) + len(line)
	buf := []byte{0x00, 0x00, 0x01, StreamID, 0x00, byte(length), 0x84, 0x80, byte(len(opt))}
	buf = append(buf, opt...)
	buf = append(buf, line...)

	p, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if p.HeaderDataLength != 7 || p.PTS != 1234 {
		t.Errorf("header length %d PTS %d, want 7 and 1234", p.HeaderDataLength, p.PTS)
	}
	if len(p.Lines) != 1 {
		t.Errorf("lines = %d, want 1", len(p.Lines))
	}
}

// A nonzero PES_packet_length is authoritative: bytes past it are ignored.
func TestParse_LengthBoundsPayload(t *testing.T) {
	t.Parallel()
	buf := append(mustHex(t, goldenPES), mustHex(t, goldenLineAFD)...)
	p, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Lines) != 1 {
		t.Errorf("lines = %d, want 1 (trailing bytes beyond PES_packet_length)", len(p.Lines))
	}
}

// A zero PES_packet_length falls back to the end of the buffer.
func TestParse_ZeroLengthUsesBuffer(t *testing.T) {
	t.Parallel()
	buf := buildPES(0, append(mustHex(t, goldenLine608), mustHex(t, goldenLineAFD)...))
	buf[4], buf[5] = 0, 0
	p, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Lines) != 2 {
		t.Errorf("lines = %d, want 2", len(p.Lines))
	}
}

// Fewer bits than a line header after the last line end the loop quietly.
func TestParse_ShortTrailerIgnored(t *testing.T) {
	t.Parallel()
	payload := append(mustHex(t, goldenLine608), 0x00, 0x00, 0x00)
	p, err := Parse(buildPES(0, payload))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Lines) != 1 {
		t.Errorf("lines = %d, want 1", len(p.Lines))
	}
}

func TestParse_ChecksumMismatchIsData(t *testing.T) {
	t.Parallel()
	buf := mustHex(t, goldenPES)
	// last byte holds the low checksum bits plus alignment ones
	buf[len(buf)-1] ^= 0x10
	p, err := Parse(buf)
	if err != nil {
		t.Fatalf("checksum mismatch must not fail parsing: %v", err)
	}
	if p.Lines[0].ChecksumValid() {
		t.Error("ChecksumValid should be false")
	}
	if bad := p.ChecksumErrors(); !slices.Equal(bad, []int{0}) {
		t.Errorf("checksum errors = %v, want [0]", bad)
	}
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()
	golden := func() []byte { return mustHex(t, goldenPES) }

	tests := []struct {
		name string
		buf  func() []byte
		want error
		kind ErrorKind
	}{
		{
			name: "empty",
			buf:  func() []byte { return nil },
			want: ErrTooShort,
			kind: KindTooShort,
		},
		{
			name: "shorter than fixed header",
			buf:  func() []byte { return golden()[:8] },
			want: ErrTooShort,
			kind: KindTooShort,
		},
		{
			name: "start code altered",
			buf:  func() []byte { b := golden(); b[2] = 0x02; return b },
			want: ErrInvalidStartCode,
			kind: KindInvalidStartCode,
		},
		{
			name: "start code first byte",
			buf:  func() []byte { b := golden(); b[0] = 0x47; return b },
			want: ErrInvalidStartCode,
			kind: KindInvalidStartCode,
		},
		{
			name: "stream id altered",
			buf:  func() []byte { b := golden(); b[3] = 0xE0; return b },
			want: ErrUnsupportedStreamID,
			kind: KindUnsupportedStreamID,
		},
		{
			name: "declared length past buffer",
			buf:  func() []byte { b := golden(); return b[:len(b)-1] },
			want: ErrTooShort,
			kind: KindTooShort,
		},
		{
			name: "header data length past payload",
			buf:  func() []byte { b := golden(); b[8] = 0x40; return b },
			want: ErrTooShort,
			kind: KindTooShort,
		},
		{
			name: "marker bits not 10",
			buf:  func() []byte { b := golden(); b[6] = 0x04; return b },
			want: ErrMalformedHeader,
			kind: KindMalformedHeader,
		},
		{
			name: "PTS marker cleared",
			buf:  func() []byte { b := golden(); b[13] &^= 0x01; return b },
			want: ErrMalformedHeader,
			kind: KindMalformedHeader,
		},
		{
			name: "PTS flag without room",
			buf:  func() []byte { return buildPESWithHeaderLength(2, []byte{0x21, 0x00}) },
			want: ErrMalformedHeader,
			kind: KindMalformedHeader,
		},
		{
			name: "data count past end",
			buf: func() []byte {
				line := mustHex(t, goldenLine608)
				return buildPES(0, line[:len(line)-3])
			},
			want: ErrMalformedLine,
			kind: KindMalformedLine,
		},
		{
			name: "reserved bits set",
			buf: func() []byte {
				line := mustHex(t, goldenLine608)
				line[0] |= 0x80
				return buildPES(0, line)
			},
			want: ErrMalformedLine,
			kind: KindMalformedLine,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.buf())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if p != nil {
				t.Error("failed parse must not return a packet")
			}
			if k := Kind(err); k != tt.kind {
				t.Errorf("Kind = %v, want %v", k, tt.kind)
			}
		})
	}
}

func TestParse_LineErrorReportsIndex(t *testing.T) {
	t.Parallel()
	bad := mustHex(t, goldenLine608)
	bad[0] |= 0x40
	payload := append(mustHex(t, goldenLineAFD), bad...)

	_, err := Parse(buildPES(0, payload))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if pe.Line != 1 {
		t.Errorf("line index = %d, want 1", pe.Line)
	}
	if pe.Field != "reserved_000000" {
		t.Errorf("field = %q, want reserved_000000", pe.Field)
	}
}

func buildPESWithHeaderLength(ptsFlags byte, opt []byte) []byte {
	length := 3 + len(opt)
	buf := []byte{0x00, 0x00, 0x01, StreamID, byte(length >> 8), byte(length), 0x84, ptsFlags << 6, byte(len(opt))}
	return append(buf, opt...)
}
