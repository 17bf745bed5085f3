package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/zsiec/ccx"

	"github.com/zsiec/st2038/internal/demux"
)

type dumpOptions struct {
	captions   bool
	packetSize int
	pid        int
	stats      bool
	quiet      bool
}

func newDumpCommand() *cobra.Command {
	var o dumpOptions
	cmd := &cobra.Command{
		Use:   "dump [file.ts]",
		Short: "Print every SMPTE 2038 packet found in a transport stream",
		Long:  "Print every SMPTE 2038 packet found in a transport stream. Reads stdin when the file is omitted or \"-\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			in, err := openInput(path)
			if err != nil {
				return err
			}
			defer in.Close()
			return runDump(cmd.Context(), in, cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().BoolVarP(&o.captions, "captions", "c", false, "decode CEA-608/708 captions")
	cmd.Flags().IntVar(&o.packetSize, "packet-size", 188, "transport packet size (188, or 192 for M2TS)")
	cmd.Flags().IntVar(&o.pid, "pid", -1, "treat this PID as SMPTE 2038 even if the PMT does not announce it")
	cmd.Flags().BoolVar(&o.stats, "stats", false, "print a JSON summary at the end")
	cmd.Flags().BoolVarP(&o.quiet, "quiet", "q", false, "do not print packets")
	return cmd
}

func runDump(ctx context.Context, r io.Reader, w io.Writer, o dumpOptions) error {
	if o.packetSize != 188 && o.packetSize != 192 {
		return fmt.Errorf("unsupported packet size %d", o.packetSize)
	}
	stats := demux.NewStats()
	opts := []func(*demux.Demuxer){
		demux.DemuxerOptLogger(slog.Default()),
		demux.DemuxerOptCaptions(o.captions),
		demux.DemuxerOptPacketSize(o.packetSize),
		demux.DemuxerOptStats(stats),
	}
	if o.pid >= 0 {
		opts = append(opts, demux.DemuxerOptPID(uint16(o.pid)))
	}
	d := demux.NewDemuxer(r, opts...)

	onPacket := func(p *demux.Packet) error {
		if o.quiet {
			return nil
		}
		if _, err := fmt.Fprintf(w, "PID 0x%04x\n", p.PID); err != nil {
			return err
		}
		return p.Dump(w)
	}
	onCaption := func(f *ccx.CaptionFrame) error {
		_, err := fmt.Fprintf(w, "%s %.3fs %q\n", captionLabel(f.Channel), float64(f.PTS)/1e6, f.Text)
		return err
	}
	if err := runDemuxer(ctx, d, onPacket, onCaption); err != nil {
		return err
	}

	if o.stats {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats.Snapshot())
	}
	return nil
}
