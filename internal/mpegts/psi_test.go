package mpegts

import (
	"encoding/hex"
	"errors"
	"testing"
)

// Reference sections: a one-program PAT and a PMT with a single SMPTE 2038
// stream on PID 0x100 signaled by a "VANC" registration descriptor.
const (
	goldenPAT = "00b00d0001c100000001f0002ab104b2"
	goldenPMT = "02b0180001c10000e100f00006e100f006050456414e432ea2321c"
)

func vancPMT(pid uint16) *PMTData {
	return &PMTData{
		ProgramNumber: 1,
		PCRPID:        pid,
		ElementaryStreams: []*PMTElementaryStream{{
			StreamType:    StreamTypePrivateData,
			ElementaryPID: pid,
			Descriptors:   []*Descriptor{{Tag: DescriptorTagRegistration, Data: []byte("VANC")}},
		}},
	}
}

func sectionPayload(section []byte) []byte {
	return append([]byte{0x00}, section...) // pointer_field
}

func TestMarshalPAT_Golden(t *testing.T) {
	t.Parallel()
	got := marshalPAT(1, []*PATProgram{{ProgramNumber: 1, ProgramMapID: 0x1000}})
	if hex.EncodeToString(got) != goldenPAT {
		t.Errorf("PAT = %x, want %s", got, goldenPAT)
	}
}

func TestMarshalPMT_Golden(t *testing.T) {
	t.Parallel()
	got := marshalPMT(vancPMT(0x100))
	if hex.EncodeToString(got) != goldenPMT {
		t.Errorf("PMT = %x, want %s", got, goldenPMT)
	}
}

func TestParsePATSection(t *testing.T) {
	t.Parallel()
	data, _ := hex.DecodeString(goldenPAT)
	pat, err := parsePATSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(pat.Programs) != 1 {
		t.Fatalf("expected 1 program, got %d", len(pat.Programs))
	}
	if pat.Programs[0].ProgramNumber != 1 || pat.Programs[0].ProgramMapID != 0x1000 {
		t.Errorf("program = %+v, want 1 -> 0x1000", pat.Programs[0])
	}
}

func TestParsePATSection_SkipsNIT(t *testing.T) {
	t.Parallel()
	data := marshalPAT(1, []*PATProgram{
		{ProgramNumber: 0, ProgramMapID: 0x10},
		{ProgramNumber: 1, ProgramMapID: 0x100},
		{ProgramNumber: 2, ProgramMapID: 0x200},
	})
	pat, err := parsePATSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(pat.Programs) != 2 {
		t.Fatalf("expected 2 programs (NIT skipped), got %d", len(pat.Programs))
	}
}

func TestParsePMTSection_Descriptors(t *testing.T) {
	t.Parallel()
	data, _ := hex.DecodeString(goldenPMT)
	pmt, err := parsePMTSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if pmt.ProgramNumber != 1 || pmt.PCRPID != 0x100 {
		t.Errorf("program %d PCR 0x%X, want 1 and 0x100", pmt.ProgramNumber, pmt.PCRPID)
	}
	if len(pmt.ElementaryStreams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(pmt.ElementaryStreams))
	}
	es := pmt.ElementaryStreams[0]
	if es.ElementaryPID != 0x100 || es.StreamType != StreamTypePrivateData {
		t.Errorf("stream = PID 0x%X type 0x%02X", es.ElementaryPID, es.StreamType)
	}
	if es.FormatIdentifier() != FormatIdentifierVANC {
		t.Errorf("format identifier = 0x%08X, want 0x%08X", es.FormatIdentifier(), uint32(FormatIdentifierVANC))
	}
	if !es.IsSMPTE2038() {
		t.Error("stream should be recognized as SMPTE 2038")
	}
}

func TestPMTElementaryStream_IsSMPTE2038(t *testing.T) {
	t.Parallel()
	reg := func(id string) []*Descriptor {
		return []*Descriptor{{Tag: 0x0A, Data: []byte("eng\x00")}, {Tag: DescriptorTagRegistration, Data: []byte(id)}}
	}
	tests := []struct {
		name string
		es   PMTElementaryStream
		want bool
	}{
		{"private with VANC", PMTElementaryStream{StreamType: 0x06, Descriptors: reg("VANC")}, true},
		{"private with other registration", PMTElementaryStream{StreamType: 0x06, Descriptors: reg("KLVA")}, false},
		{"private without descriptor", PMTElementaryStream{StreamType: 0x06}, false},
		{"video with VANC", PMTElementaryStream{StreamType: 0x1B, Descriptors: reg("VANC")}, false},
		{"short registration", PMTElementaryStream{StreamType: 0x06, Descriptors: reg("VA")}, false},
	}
	for _, tt := range tests {
		if got := tt.es.IsSMPTE2038(); got != tt.want {
			t.Errorf("%s: IsSMPTE2038 = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseSections_BadCRC(t *testing.T) {
	t.Parallel()
	pat, _ := hex.DecodeString(goldenPAT)
	pat[len(pat)-1] ^= 0xFF
	if _, err := parsePATSection(pat); !errors.Is(err, errCRC32) {
		t.Errorf("PAT err = %v, want CRC error", err)
	}

	pmt, _ := hex.DecodeString(goldenPMT)
	pmt[len(pmt)-1] ^= 0xFF
	if _, err := parsePMTSection(pmt); !errors.Is(err, errCRC32) {
		t.Errorf("PMT err = %v, want CRC error", err)
	}
}

func TestParsePMTSection_DescriptorOverrun(t *testing.T) {
	t.Parallel()
	b := []byte{
		tableIDPMT, 0xB0, 0x00, 0x00, 0x01, 0xC1, 0x00, 0x00,
		0xE1, 0x00, 0xF0, 0x00,
		0x06, 0xE1, 0x00, 0xF0, 0x40, // ES_info_length 64, nothing follows
	}
	b[2] = byte(len(b) - 3 + 4)
	b = appendCRC32(b)
	if _, err := parsePMTSection(b); err == nil {
		t.Error("expected error for ES_info_length overrun")
	}
}

func TestParsePSI(t *testing.T) {
	t.Parallel()
	pat, _ := hex.DecodeString(goldenPAT)
	pmt, _ := hex.DecodeString(goldenPMT)

	tests := []struct {
		name    string
		pid     uint16
		payload []byte
		isPAT   bool
	}{
		{"PAT", pidPAT, sectionPayload(pat), true},
		{"PMT", 0x1000, sectionPayload(pmt), false},
		{"pointer field skips filler", pidPAT, append([]byte{0x03, 0xFF, 0xFF, 0xFF}, pat...), true},
		{"trailing stuffing", pidPAT, append(sectionPayload(pat), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF), true},
		{"trailing zero padding", pidPAT, append(sectionPayload(pat), 0x00, 0x00, 0x00), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pm := newProgramMap()
			pm.addPMTPID(0x1000)
			first := &Packet{Header: PacketHeader{PID: tt.pid}}

			results, err := parsePSI(tt.payload, tt.pid, first, pm)
			if err != nil {
				t.Fatal(err)
			}
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if (results[0].PAT != nil) != tt.isPAT || (results[0].PMT != nil) == tt.isPAT {
				t.Errorf("result = %+v", results[0])
			}
			if results[0].FirstPacket != first {
				t.Error("FirstPacket not propagated")
			}
		})
	}
}

func TestParseDescriptors_Truncated(t *testing.T) {
	t.Parallel()
	ds := parseDescriptors([]byte{0x05, 0x04, 'V', 'A', 'N', 'C', 0x0A, 0x08, 'e'})
	if len(ds) != 1 || ds[0].Tag != 0x05 || string(ds[0].Data) != "VANC" {
		t.Errorf("descriptors = %+v", ds)
	}
}
