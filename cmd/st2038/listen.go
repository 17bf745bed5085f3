package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/zsiec/ccx"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/st2038/internal/demux"
	"github.com/zsiec/st2038/internal/ingest"
	srtingest "github.com/zsiec/st2038/internal/ingest/srt"
)

func newListenCommand() *cobra.Command {
	var captions bool
	addr := envOr("ST2038_SRT_ADDR", ":6000")
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept SRT publishers and log the ancillary data they carry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, ctx := errgroup.WithContext(cmd.Context())

			registry := ingest.NewRegistry(func(s *ingest.Stream) {
				handleStream(ctx, s, captions)
			})
			srv := srtingest.NewServer(addr, registry, nil)

			slog.Info("st2038 starting", "version", version, "srt", addr)
			g.Go(func() error {
				return srv.Start(ctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", addr, "SRT listen address (env ST2038_SRT_ADDR)")
	cmd.Flags().BoolVarP(&captions, "captions", "c", true, "decode CEA-608/708 captions")
	return cmd
}

// handleStream decodes one ingest stream until it ends or ctx is done.
func handleStream(ctx context.Context, s *ingest.Stream, captions bool) {
	log := slog.Default().With("stream", s.Key)
	log.Info("new stream from ingest")

	d := demux.NewDemuxer(s.Reader(),
		demux.DemuxerOptLogger(log),
		demux.DemuxerOptCaptions(captions),
		demux.DemuxerOptStats(s.Demux),
	)
	err := runDemuxer(ctx, d,
		func(p *demux.Packet) error {
			log.Debug("ancillary packet", "pid", p.PID, "pts", p.PTS, "lines", len(p.Lines))
			return nil
		},
		func(f *ccx.CaptionFrame) error {
			log.Info("caption", "channel", captionLabel(f.Channel), "pts_us", f.PTS, "text", f.Text)
			return nil
		},
	)
	if err != nil && ctx.Err() == nil {
		log.Error("demux error", "error", err)
	}

	// Keep the receiver from blocking on a pipe nobody reads.
	_, _ = io.Copy(io.Discard, s.Reader())

	snap := s.Demux.Snapshot()
	log.Info("stream ended", "anc_packets", snap.Packets, "lines", snap.Lines,
		"checksum_errors", snap.ChecksumErrors, "captions", snap.Captions.TotalFrames)
}
