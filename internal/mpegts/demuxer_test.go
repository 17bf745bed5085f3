package mpegts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

// demuxAll drains a demuxer and returns everything it produced.
func demuxAll(t *testing.T, dmx *Demuxer) []*DemuxerData {
	t.Helper()
	var all []*DemuxerData
	for {
		data, err := dmx.NextData()
		if errors.Is(err, io.EOF) {
			return all
		}
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, data)
	}
}

func TestDemuxer_MuxerRoundTrip(t *testing.T) {
	t.Parallel()
	var stream bytes.Buffer
	mux := NewMuxer(&stream, MuxerOptPIDs(0x20, 0x44), MuxerOptTableInterval(2))

	var want [][]byte
	for i := range 5 {
		data := bytes.Repeat([]byte{byte(i)}, 50+i*150) // some span several TS packets
		pes := buildPESPacket(0xBD, int64(i)*3003, 0, true, false, data)
		want = append(want, pes)
		if err := mux.WritePES(pes); err != nil {
			t.Fatal(err)
		}
	}
	if stream.Len()%packetSize != 0 || int64(stream.Len()/packetSize) != mux.Packets() {
		t.Fatalf("stream length %d does not match %d packets", stream.Len(), mux.Packets())
	}

	all := demuxAll(t, NewDemuxer(context.Background(), &stream))

	var pats, pmts int
	var got [][]byte
	for _, d := range all {
		switch {
		case d.PAT != nil:
			pats++
			if len(d.PAT.Programs) != 1 || d.PAT.Programs[0].ProgramMapID != 0x20 {
				t.Errorf("PAT programs = %+v", d.PAT.Programs)
			}
		case d.PMT != nil:
			pmts++
			if len(d.PMT.ElementaryStreams) != 1 || !d.PMT.ElementaryStreams[0].IsSMPTE2038() {
				t.Errorf("PMT does not advertise SMPTE 2038: %+v", d.PMT.ElementaryStreams)
			}
			if d.PMT.ElementaryStreams[0].ElementaryPID != 0x44 {
				t.Errorf("ES PID = 0x%X, want 0x44", d.PMT.ElementaryStreams[0].ElementaryPID)
			}
		case d.PES != nil:
			if d.FirstPacket.Header.PID != 0x44 {
				t.Errorf("PES on PID 0x%X", d.FirstPacket.Header.PID)
			}
			got = append(got, d.PES.Raw)
		}
	}

	if pats != 3 || pmts != 3 {
		t.Errorf("tables = %d PAT / %d PMT, want 3 each", pats, pmts)
	}
	if len(got) != len(want) {
		t.Fatalf("PES packets = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("PES %d differs", i)
		}
	}
}

// A bounded PES is delivered before the next PUSI on its PID arrives.
func TestDemuxer_BoundedPESNotDelayed(t *testing.T) {
	t.Parallel()
	var stream bytes.Buffer
	mux := NewMuxer(&stream)
	if err := mux.WritePES(buildPESPacket(0xBD, 90000, 0, true, false, []byte{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	tables := 2 * packetSize
	r := io.LimitReader(bytes.NewReader(stream.Bytes()), int64(tables+packetSize))

	dmx := NewDemuxer(context.Background(), struct{ io.Reader }{r})
	for i := 0; i < 3; i++ {
		d, err := dmx.NextData()
		if err != nil {
			t.Fatalf("item %d: %v", i, err)
		}
		if i == 2 {
			if d.PES == nil {
				t.Fatal("third item should be the PES")
			}
			if d.PES.Header.OptionalHeader.PTS.Base != 90000 {
				t.Errorf("PTS = %d", d.PES.Header.OptionalHeader.PTS.Base)
			}
			if dmx.eof {
				t.Error("PES should be delivered without reaching EOF")
			}
		}
	}
}

func TestDemuxer_PacketsParser(t *testing.T) {
	t.Parallel()
	var stream bytes.Buffer
	mux := NewMuxer(&stream)
	for i := range 3 {
		if err := mux.WritePES(buildPESPacket(0xBD, int64(i), 0, true, false, []byte{byte(i)})); err != nil {
			t.Fatal(err)
		}
	}

	seen := 0
	parser := func(ps []*Packet) ([]*DemuxerData, bool, error) {
		if ps[0].Header.PID == mux.PID() {
			seen++
			return nil, true, nil
		}
		return nil, false, nil
	}

	all := demuxAll(t, NewDemuxer(context.Background(), &stream, DemuxerOptPacketsParser(parser)))
	if seen != 3 {
		t.Errorf("parser saw %d units, want 3", seen)
	}
	for _, d := range all {
		if d.PES != nil {
			t.Error("skipped PID should not produce PES data")
		}
	}
}

func TestDemuxer_M2TS(t *testing.T) {
	t.Parallel()
	var ts bytes.Buffer
	mux := NewMuxer(&ts)
	if err := mux.WritePES(buildPESPacket(0xBD, 42, 0, true, false, []byte{9, 9})); err != nil {
		t.Fatal(err)
	}

	var m2ts bytes.Buffer
	raw := ts.Bytes()
	for off := 0; off < len(raw); off += packetSize {
		m2ts.Write([]byte{0x00, 0x00, 0x00, 0x00}) // arrival timestamp
		m2ts.Write(raw[off : off+packetSize])
	}

	var pes int
	for _, d := range demuxAll(t, NewDemuxer(context.Background(), &m2ts, DemuxerOptPacketSize(m2tsPacketSize))) {
		if d.PES != nil {
			pes++
			if d.PES.Header.OptionalHeader.PTS.Base != 42 {
				t.Errorf("PTS = %d, want 42", d.PES.Header.OptionalHeader.PTS.Base)
			}
		}
	}
	if pes != 1 {
		t.Errorf("PES packets = %d, want 1", pes)
	}
}

func TestDemuxer_EOF(t *testing.T) {
	t.Parallel()
	dmx := NewDemuxer(context.Background(), bytes.NewReader(nil))
	if _, err := dmx.NextData(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestDemuxer_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dmx := NewDemuxer(ctx, bytes.NewReader(make([]byte, 1000)))
	if _, err := dmx.NextData(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDemuxer_CorruptPacketSkipped(t *testing.T) {
	t.Parallel()
	pat := sectionPayload(marshalPAT(1, []*PATProgram{{ProgramNumber: 1, ProgramMapID: 0x1000}}))

	var stream bytes.Buffer
	stream.Write(makePacket(pidPAT, 0, true, pat))
	stream.Write(make([]byte, packetSize)) // bad sync byte
	stream.Write(makePacket(pidPAT, 1, true, pat))

	gotPAT := 0
	for _, d := range demuxAll(t, NewDemuxer(context.Background(), &stream)) {
		if d.PAT != nil {
			gotPAT++
		}
	}
	if gotPAT != 2 {
		t.Errorf("PATs = %d, want 2", gotPAT)
	}
}

func TestMuxer_RejectsNonPES(t *testing.T) {
	t.Parallel()
	var stream bytes.Buffer
	mux := NewMuxer(&stream)
	if err := mux.WritePES([]byte{0x47, 0x00}); !errors.Is(err, errNotPES) {
		t.Errorf("err = %v, want errNotPES", err)
	}
	if stream.Len() != 0 {
		t.Error("nothing should be written")
	}
}

type errWriter struct{}

var errWrite = errors.New("disk full")

func (errWriter) Write([]byte) (int, error) { return 0, errWrite }

func TestMuxer_WriteError(t *testing.T) {
	t.Parallel()
	mux := NewMuxer(errWriter{})
	if err := mux.WritePES(buildPESPacket(0xBD, 0, 0, true, false, nil)); !errors.Is(err, errWrite) {
		t.Errorf("err = %v, want %v", err, errWrite)
	}
}
