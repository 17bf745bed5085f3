// Package ingest tracks live transport stream inputs by stream key and
// hands each new one to a callback that decodes its ancillary data.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/st2038/internal/demux"
)

// ErrStreamExists is returned by Register when the key is already live.
var ErrStreamExists = errors.New("ingest: stream key already active")

// IngestStats captures connection-level metrics for an ingest stream.
type IngestStats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Stream is one live input. Bytes written by the transport receiver are
// read back through Reader by the demuxer.
type Stream struct {
	Key       string
	StartedAt time.Time

	// Demux accumulates ancillary data telemetry for this stream.
	Demux *demux.Stats

	input *io.PipeReader
	pw    *io.PipeWriter
	done  chan struct{}

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

// Reader returns the transport stream bytes received on this stream. It
// reports io.EOF once the stream is unregistered.
func (s *Stream) Reader() io.Reader {
	return s.input
}

// Done is closed when the stream is unregistered.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// RecordRead increments the byte and read counters, called by the
// receiver after each successful socket read.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the remote address of the connection.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// IngestStats returns a snapshot of connection metrics.
func (s *Stream) IngestStats() IngestStats {
	addr, _ := s.remoteAddr.Load().(string)
	return IngestStats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks active streams by key and dispatches each new stream to
// the onStream callback.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	onStream func(*Stream)
}

// NewRegistry creates a Registry. onStream, when non-nil, is invoked in its
// own goroutine for every registered stream; it should read Reader until
// EOF.
func NewRegistry(onStream func(*Stream)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		onStream: onStream,
	}
}

// Register creates a stream under key and returns it together with the
// writer the receiver should copy socket data into. A key can be live only
// once.
func (r *Registry) Register(key string) (*Stream, io.Writer, error) {
	pr, pw := io.Pipe()
	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		Demux:     demux.NewStats(),
		input:     pr,
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if _, ok := r.streams[key]; ok {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %q", ErrStreamExists, key)
	}
	r.streams[key] = stream
	r.mu.Unlock()

	if r.onStream != nil {
		go r.onStream(stream)
	}
	return stream, pw, nil
}

// Unregister removes a stream by key, closing its pipe and signaling Done.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		stream.pw.Close()
		close(stream.done)
	}
}

// Get returns the Stream for the given key, or false if not found.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// Keys returns the keys of all active streams in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.streams))
	for k := range r.streams {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	slices.Sort(keys)
	return keys
}
