package demux

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/zsiec/st2038/smpte2038"
)

// Compile-time interface check.
var _ StatsRecorder = (*Stats)(nil)

// StreamStats is a point-in-time summary of what a Demuxer has seen,
// suitable for JSON output.
type StreamStats struct {
	PIDs           []uint16       `json:"pids"`
	Packets        int64          `json:"packets"`
	Lines          int64          `json:"lines"`
	ChecksumErrors int64          `json:"checksumErrors"`
	ParseErrors    map[string]int `json:"parseErrors,omitempty"`
	PTSErrors      int64          `json:"ptsErrors"`
	FirstPTS       uint64         `json:"firstPts,omitempty"`
	LastPTS        uint64         `json:"lastPts,omitempty"`
	Captions       CaptionStats   `json:"captions"`
}

// CaptionStats tracks closed-caption activity across all channels.
type CaptionStats struct {
	ActiveChannels []int `json:"activeChannels"`
	TotalFrames    int64 `json:"totalFrames"`
}

// Stats accumulates demuxer telemetry. Counters are updated from the
// demuxer goroutine and may be read concurrently through Snapshot.
type Stats struct {
	packets        atomic.Int64
	lines          atomic.Int64
	checksumErrors atomic.Int64
	ptsErrors      atomic.Int64
	captionCount   atomic.Int64

	// mu guards the fields below
	mu           sync.Mutex
	pids         map[uint16]bool
	parseErrors  map[smpte2038.ErrorKind]int
	captionChans map[int]bool
	firstPTS     uint64
	lastPTS      uint64
	havePTS      bool
}

// NewStats creates a Stats ready for use as a StatsRecorder.
func NewStats() *Stats {
	return &Stats{
		pids:         make(map[uint16]bool),
		parseErrors:  make(map[smpte2038.ErrorKind]int),
		captionChans: make(map[int]bool),
	}
}

// RecordPacket records a decoded packet. A PTS that runs backwards or jumps
// more than five seconds counts as a PTS error; 33-bit wraps do not.
func (s *Stats) RecordPacket(pid uint16, lines, checksumErrors int, pts uint64) {
	s.packets.Add(1)
	s.lines.Add(int64(lines))
	s.checksumErrors.Add(int64(checksumErrors))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pids[pid] = true
	if pts == smpte2038.NoPTS {
		return
	}
	if !s.havePTS {
		s.firstPTS = pts
		s.havePTS = true
	} else {
		delta := (pts - s.lastPTS) & (1<<33 - 1)
		if delta > 5*90000 {
			s.ptsErrors.Add(1)
		}
	}
	s.lastPTS = pts
}

// RecordParseError records a packet dropped because it failed to parse.
func (s *Stats) RecordParseError(kind smpte2038.ErrorKind) {
	s.mu.Lock()
	s.parseErrors[kind]++
	s.mu.Unlock()
}

// RecordCaption records a caption frame on the given channel.
func (s *Stats) RecordCaption(channel int) {
	s.captionCount.Add(1)
	s.mu.Lock()
	s.captionChans[channel] = true
	s.mu.Unlock()
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StreamStats {
	out := StreamStats{
		Packets:        s.packets.Load(),
		Lines:          s.lines.Load(),
		ChecksumErrors: s.checksumErrors.Load(),
		PTSErrors:      s.ptsErrors.Load(),
		Captions:       CaptionStats{TotalFrames: s.captionCount.Load()},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for pid := range s.pids {
		out.PIDs = append(out.PIDs, pid)
	}
	slices.Sort(out.PIDs)
	if len(s.parseErrors) > 0 {
		out.ParseErrors = make(map[string]int, len(s.parseErrors))
		for kind, n := range s.parseErrors {
			out.ParseErrors[kind.String()] = n
		}
	}
	for ch := range s.captionChans {
		out.Captions.ActiveChannels = append(out.Captions.ActiveChannels, ch)
	}
	slices.Sort(out.Captions.ActiveChannels)
	if s.havePTS {
		out.FirstPTS = s.firstPTS
		out.LastPTS = s.lastPTS
	}
	return out
}
