// Command st2038 inspects, rewrites and receives SMPTE ST 2038 ancillary
// data streams carried in MPEG-TS.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func init() {
	cobra.MousetrapHelpText = ""
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("st2038 failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "st2038",
		Short:         "SMPTE ST 2038 ancillary data tools",
		Long:          "Decode, re-encapsulate and receive SMPTE ST 2038 ancillary data carried in MPEG-2 transport streams.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDumpCommand(), newRemuxCommand(), newListenCommand(), newPullCommand())
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
