package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/zsiec/ccx"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/st2038/internal/demux"
)

// runDemuxer runs d and hands every packet and caption to the callbacks
// from a single goroutine. A callback error stops the demuxer.
func runDemuxer(ctx context.Context, d *demux.Demuxer, onPacket func(*demux.Packet) error, onCaption func(*ccx.CaptionFrame) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(ctx)
	})
	g.Go(func() error {
		pkts, caps := d.Packets(), d.Captions()
		for pkts != nil || caps != nil {
			select {
			case p, ok := <-pkts:
				if !ok {
					pkts = nil
					continue
				}
				if onPacket != nil {
					if err := onPacket(p); err != nil {
						return err
					}
				}
			case f, ok := <-caps:
				if !ok {
					caps = nil
					continue
				}
				if onCaption != nil {
					if err := onCaption(f); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	return g.Wait()
}

// openInput opens path for reading; "-" is stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// captionLabel names a caption channel: CC1-CC4 for CEA-608, SERVICE1-6
// for CEA-708.
func captionLabel(channel int) string {
	if channel > 6 {
		return fmt.Sprintf("SERVICE%d", channel-6)
	}
	return fmt.Sprintf("CC%d", channel)
}
