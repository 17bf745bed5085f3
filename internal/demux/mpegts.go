package demux

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/zsiec/ccx"
	"github.com/zsiec/st2038/internal/captions"
	"github.com/zsiec/st2038/internal/mpegts"
	"github.com/zsiec/st2038/smpte2038"
)

const (
	packetBufferSize  = 64
	captionBufferSize = 64

	pidPAT = 0x0000
)

// StatsRecorder is the interface accepted by Demuxer for recording stream
// telemetry. [Stats] implements it.
type StatsRecorder interface {
	RecordPacket(pid uint16, lines, checksumErrors int, pts uint64)
	RecordParseError(kind smpte2038.ErrorKind)
	RecordCaption(channel int)
}

// Packet is one SMPTE ST 2038 PES packet found in the transport stream.
type Packet struct {
	// PID is the elementary PID the packet was carried on.
	PID uint16
	// PES is the complete PES packet as carried.
	PES []byte

	*smpte2038.Packet
}

// Demuxer reads an MPEG-TS byte stream, locates the SMPTE ST 2038
// elementary streams announced in the PMT and decodes every PES packet on
// them. Decoded packets and, when enabled, CEA-608/708 captions found in
// the ancillary lines are delivered on the Packets and Captions channels.
type Demuxer struct {
	log        *slog.Logger
	reader     io.Reader
	packetSize int
	packetCh   chan *Packet
	captionCh  chan *ccx.CaptionFrame
	captions   *captions.Decoder
	pids       map[uint16]bool
	pmtPIDs    map[uint16]bool
	pmtReady   chan struct{}
	pmtDone    bool
	stats      StatsRecorder
}

// DemuxerOptLogger sets the logger. The default is slog.Default().
func DemuxerOptLogger(log *slog.Logger) func(*Demuxer) {
	return func(d *Demuxer) {
		if log != nil {
			d.log = log
		}
	}
}

// DemuxerOptCaptions enables decoding of closed captions carried in
// ancillary lines.
func DemuxerOptCaptions(enabled bool) func(*Demuxer) {
	return func(d *Demuxer) {
		if enabled {
			d.captions = captions.NewDecoder()
		} else {
			d.captions = nil
		}
	}
}

// DemuxerOptPID treats pid as an SMPTE ST 2038 stream even when the PMT
// does not announce it with a "VANC" registration descriptor.
func DemuxerOptPID(pid uint16) func(*Demuxer) {
	return func(d *Demuxer) {
		d.pids[pid&0x1FFF] = true
	}
}

// DemuxerOptPacketSize sets the transport packet size: 188, or 192 for
// M2TS.
func DemuxerOptPacketSize(n int) func(*Demuxer) {
	return func(d *Demuxer) {
		d.packetSize = n
	}
}

// DemuxerOptStats attaches a StatsRecorder that receives a callback for
// every packet, parse failure and caption.
func DemuxerOptStats(s StatsRecorder) func(*Demuxer) {
	return func(d *Demuxer) {
		d.stats = s
	}
}

// NewDemuxer creates a Demuxer that reads MPEG-TS packets from r. Call Run
// to begin demuxing and read from the Packets and Captions channels.
func NewDemuxer(r io.Reader, opts ...func(*Demuxer)) *Demuxer {
	d := &Demuxer{
		log:        slog.Default(),
		reader:     r,
		packetSize: 188,
		packetCh:   make(chan *Packet, packetBufferSize),
		captionCh:  make(chan *ccx.CaptionFrame, captionBufferSize),
		pids:       make(map[uint16]bool),
		pmtPIDs:    make(map[uint16]bool),
		pmtReady:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "demux")
	return d
}

// Packets returns the channel on which decoded SMPTE ST 2038 packets are
// delivered.
func (d *Demuxer) Packets() <-chan *Packet {
	return d.packetCh
}

// Captions returns the channel on which decoded caption frames are
// delivered. It stays silent unless captions are enabled.
func (d *Demuxer) Captions() <-chan *ccx.CaptionFrame {
	return d.captionCh
}

// PMTReady returns a channel that is closed once the first PMT has been
// parsed.
func (d *Demuxer) PMTReady() <-chan struct{} {
	return d.pmtReady
}

// PIDs returns the SMPTE ST 2038 PIDs known so far. Call it only after Run
// has returned or from the goroutine that drains Packets.
func (d *Demuxer) PIDs() []uint16 {
	out := make([]uint16, 0, len(d.pids))
	for pid := range d.pids {
		out = append(out, pid)
	}
	return out
}

// Run starts the demuxing loop, reading MPEG-TS packets from the underlying
// reader until EOF or context cancellation. Both output channels must be
// drained while Run is active; Run closes them on return.
func (d *Demuxer) Run(ctx context.Context) error {
	defer close(d.packetCh)
	defer close(d.captionCh)

	// Once the program is known, PIDs that carry neither tables nor ancillary
	// data are dropped before PES reassembly.
	skipper := func(ps []*mpegts.Packet) ([]*mpegts.DemuxerData, bool, error) {
		if len(ps) == 0 || !d.pmtDone {
			return nil, false, nil
		}
		pid := ps[0].Header.PID
		if pid == pidPAT || d.pmtPIDs[pid] || d.pids[pid] {
			return nil, false, nil
		}
		return nil, true, nil
	}

	dmx := mpegts.NewDemuxer(ctx, d.reader,
		mpegts.DemuxerOptPacketSize(d.packetSize),
		mpegts.DemuxerOptPacketsParser(skipper),
	)

	for {
		data, err := dmx.NextData()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			d.log.Debug("skipping corrupt packet", "error", err)
			continue
		}

		switch {
		case data.PAT != nil:
			for _, p := range data.PAT.Programs {
				if p.ProgramNumber != 0 {
					d.pmtPIDs[p.ProgramMapID] = true
				}
			}

		case data.PMT != nil:
			d.handlePMT(data.PMT)

		case data.PES != nil:
			pid := data.FirstPacket.Header.PID
			if !d.pids[pid] {
				continue
			}
			if err := d.handlePES(ctx, pid, data.PES); err != nil {
				return err
			}
		}
	}
}

func (d *Demuxer) handlePMT(pmt *mpegts.PMTData) {
	for _, es := range pmt.ElementaryStreams {
		if !es.IsSMPTE2038() || d.pids[es.ElementaryPID] {
			continue
		}
		d.pids[es.ElementaryPID] = true
		d.log.Info("found SMPTE 2038 PID", "pid", es.ElementaryPID, "program", pmt.ProgramNumber)
	}
	if !d.pmtDone {
		d.pmtDone = true
		if len(d.pids) == 0 {
			d.log.Warn("PMT announces no SMPTE 2038 stream", "program", pmt.ProgramNumber)
		}
		close(d.pmtReady)
	}
}

// handlePES decodes one PES packet. Malformed packets are logged and
// dropped; only context cancellation ends the stream.
func (d *Demuxer) handlePES(ctx context.Context, pid uint16, pes *mpegts.PESData) error {
	pkt, err := smpte2038.Parse(pes.Raw)
	if err != nil {
		kind := smpte2038.Kind(err)
		d.log.Warn("dropping malformed SMPTE 2038 packet", "pid", pid, "kind", kind, "error", err)
		if d.stats != nil {
			d.stats.RecordParseError(kind)
		}
		return nil
	}

	bad := pkt.ChecksumErrors()
	if len(bad) > 0 {
		d.log.Debug("ancillary checksum mismatch", "pid", pid, "lines", bad)
	}
	if d.stats != nil {
		d.stats.RecordPacket(pid, len(pkt.Lines), len(bad), pkt.PTS)
	}

	select {
	case d.packetCh <- &Packet{PID: pid, PES: pes.Raw, Packet: pkt}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if d.captions != nil {
		return d.handleCaptions(ctx, pkt)
	}
	return nil
}

func (d *Demuxer) handleCaptions(ctx context.Context, pkt *smpte2038.Packet) error {
	var pts int64
	if pkt.HasPTS() {
		pts = int64(pkt.PTS) * 1000000 / 90000
	}

	for i := range pkt.Lines {
		v := pkt.Lines[i].VANC()
		if !captions.IsCaption(v) {
			continue
		}
		frames, err := d.captions.Decode(v, pts)
		if err != nil {
			d.log.Debug("undecodable caption packet", "line", v.LineNumber, "error", err)
			continue
		}
		for _, frame := range frames {
			if d.stats != nil {
				d.stats.RecordCaption(frame.Channel)
			}
			select {
			case d.captionCh <- frame:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
