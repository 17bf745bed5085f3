package srt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/st2038/internal/ingest"
)

const dialTimeout = 10 * time.Second

var (
	ErrAddressRequired = errors.New("srt: address is required")
	ErrKeyRequired     = errors.New("srt: stream key is required")
	ErrPullActive      = errors.New("srt: pull already active")
	ErrNoPull          = errors.New("srt: no active pull")
)

// PullRequest describes a remote SRT source to pull from.
type PullRequest struct {
	Address   string `json:"address"`
	StreamKey string `json:"streamKey"`
	StreamID  string `json:"streamId,omitempty"`
}

type activePull struct {
	req    PullRequest
	cancel context.CancelFunc
}

// Caller dials remote SRT listeners and streams their data into the ingest
// registry.
type Caller struct {
	log      *slog.Logger
	registry *ingest.Registry

	mu    sync.Mutex
	pulls map[string]*activePull
}

// NewCaller creates a Caller registering pulled streams with registry. If
// log is nil, slog.Default() is used.
func NewCaller(registry *ingest.Registry, log *slog.Logger) *Caller {
	if log == nil {
		log = slog.Default()
	}
	return &Caller{
		log:      log.With("component", "srt-caller"),
		registry: registry,
		pulls:    make(map[string]*activePull),
	}
}

// Pull dials the remote SRT listener, giving up after ten seconds. On
// success streaming continues in a background goroutine until the remote
// closes, Stop is called or ctx is done.
func (c *Caller) Pull(ctx context.Context, req PullRequest) error {
	if req.Address == "" {
		return ErrAddressRequired
	}
	if req.StreamKey == "" {
		return ErrKeyRequired
	}
	if c.active(req.StreamKey) {
		return fmt.Errorf("%w for stream key %q", ErrPullActive, req.StreamKey)
	}

	c.log.Info("dialing", "address", req.Address, "stream_key", req.StreamKey)

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = req.StreamID
	if cfg.StreamID == "" {
		cfg.StreamID = "live/" + req.StreamKey
	}

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(req.Address, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	// Close a connection that completes after we stopped waiting.
	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("SRT dial failed: %w", res.err)
		}
		return c.startStreaming(ctx, req, res.conn)
	case <-timer.C:
		abandon()
		return fmt.Errorf("SRT dial timed out after %s", dialTimeout)
	case <-ctx.Done():
		abandon()
		return ctx.Err()
	}
}

func (c *Caller) startStreaming(ctx context.Context, req PullRequest, conn *srtgo.Conn) error {
	stream, writer, err := c.registry.Register(req.StreamKey)
	if err != nil {
		conn.Close()
		return err
	}
	stream.SetRemoteAddr(req.Address)

	pullCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.pulls[req.StreamKey] = &activePull{req: req, cancel: cancel}
	c.mu.Unlock()

	c.log.Info("connected", "address", req.Address, "stream_key", req.StreamKey)

	go func() {
		defer func() {
			cancel()
			conn.Close()
			ingestStats := stream.IngestStats()
			c.registry.Unregister(req.StreamKey)
			c.mu.Lock()
			delete(c.pulls, req.StreamKey)
			c.mu.Unlock()
			c.log.Info("pull ended", "stream_key", req.StreamKey,
				"bytes", ingestStats.BytesReceived, "reads", ingestStats.ReadCount,
				"uptime_ms", ingestStats.UptimeMs)
		}()

		// conn.Read does not observe pullCtx; closing the socket unblocks it.
		go func() {
			<-pullCtx.Done()
			conn.Close()
		}()
		pump(pullCtx, c.log, conn, stream, writer)
	}()

	return nil
}

// Stop cancels the pull for streamKey.
func (c *Caller) Stop(streamKey string) error {
	c.mu.Lock()
	ap, ok := c.pulls[streamKey]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w for stream key %q", ErrNoPull, streamKey)
	}
	ap.cancel()
	return nil
}

// ActivePulls lists the pulls in progress.
func (c *Caller) ActivePulls() []PullRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PullRequest, 0, len(c.pulls))
	for _, ap := range c.pulls {
		out = append(out, ap.req)
	}
	return out
}

func (c *Caller) active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pulls[key]
	return ok
}
