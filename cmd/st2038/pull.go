package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/zsiec/st2038/internal/ingest"
	srtingest "github.com/zsiec/st2038/internal/ingest/srt"
)

func newPullCommand() *cobra.Command {
	var (
		key      string
		streamID string
		captions bool
	)
	cmd := &cobra.Command{
		Use:   "pull <host:port>",
		Short: "Dial an SRT listener and log the ancillary data it sends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			done := make(chan struct{})
			registry := ingest.NewRegistry(func(s *ingest.Stream) {
				defer close(done)
				handleStream(ctx, s, captions)
			})
			caller := srtingest.NewCaller(registry, nil)

			req := srtingest.PullRequest{Address: args[0], StreamKey: key, StreamID: streamID}
			if err := caller.Pull(ctx, req); err != nil {
				return fmt.Errorf("pull %s: %w", args[0], err)
			}
			return waitPull(ctx, caller, key, done)
		},
	}
	cmd.Flags().StringVar(&key, "key", "default", "local stream key")
	cmd.Flags().StringVar(&streamID, "streamid", "", "SRT stream ID to request (default live/<key>)")
	cmd.Flags().BoolVarP(&captions, "captions", "c", true, "decode CEA-608/708 captions")
	return cmd
}

// waitPull blocks until the pulled stream has been fully handled. On
// cancellation the pull is stopped first so the handler sees EOF.
func waitPull(ctx context.Context, caller *srtingest.Caller, key string, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if err := caller.Stop(key); err != nil {
			slog.Debug("stop pull", "error", err)
		}
		<-done
		return nil
	}
}
