package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zsiec/st2038/internal/demux"
	"github.com/zsiec/st2038/internal/mpegts"
	"github.com/zsiec/st2038/smpte2038"
)

type remuxOptions struct {
	packetSize    int
	pmtPID        uint16
	esPID         uint16
	tableInterval int
}

// remuxResult counts what a remux wrote.
type remuxResult struct {
	Packets   int
	Lines     int
	TSPackets int64
}

func newRemuxCommand() *cobra.Command {
	o := remuxOptions{pmtPID: 0x1000, esPID: 0x100, tableInterval: 40}
	cmd := &cobra.Command{
		Use:   "remux <in.ts> <out.ts>",
		Short: "Re-encapsulate the SMPTE 2038 stream of a transport stream into a new one",
		Long: "Parse every SMPTE 2038 PES packet of the input and rebuild it line by line into a " +
			"single-program transport stream. Other elementary streams are dropped.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			bw := bufio.NewWriter(out)
			res, err := runRemux(cmd.Context(), in, bw, o)
			if err == nil {
				err = bw.Flush()
			}
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			slog.Info("remux complete", "packets", res.Packets, "lines", res.Lines, "ts_packets", res.TSPackets)
			return nil
		},
	}
	cmd.Flags().IntVar(&o.packetSize, "packet-size", 188, "input transport packet size (188, or 192 for M2TS)")
	cmd.Flags().Uint16Var(&o.pmtPID, "pmt-pid", o.pmtPID, "output PMT PID")
	cmd.Flags().Uint16Var(&o.esPID, "pid", o.esPID, "output SMPTE 2038 PID")
	cmd.Flags().IntVar(&o.tableInterval, "table-interval", o.tableInterval, "PES packets between PAT/PMT repetitions")
	return cmd
}

func runRemux(ctx context.Context, r io.Reader, w io.Writer, o remuxOptions) (remuxResult, error) {
	var res remuxResult
	mux := mpegts.NewMuxer(w, mpegts.MuxerOptPIDs(o.pmtPID, o.esPID), mpegts.MuxerOptTableInterval(o.tableInterval))
	pz := smpte2038.NewPacketizer()
	defer pz.Close()

	d := demux.NewDemuxer(r, demux.DemuxerOptPacketSize(o.packetSize))
	err := runDemuxer(ctx, d, func(p *demux.Packet) error {
		pes, err := repacketize(pz, p.Packet)
		if err != nil {
			return fmt.Errorf("repacketize PTS %d: %w", p.PTS, err)
		}
		if err := mux.WritePES(pes); err != nil {
			return err
		}
		res.Packets++
		res.Lines += len(p.Lines)
		return nil
	}, nil)
	res.TSPackets = mux.Packets()
	return res, err
}

// repacketize rebuilds p through the packetizer. Lines are copied word for
// word, so parity and checksums survive unchanged.
func repacketize(pz *smpte2038.Packetizer, p *smpte2038.Packet) ([]byte, error) {
	if err := pz.Begin(); err != nil {
		return nil, err
	}
	if p.HasPTS() {
		if err := pz.SetPTS(p.PTS); err != nil {
			return nil, err
		}
	}
	for i := range p.Lines {
		if err := pz.AppendLine(&p.Lines[i]); err != nil {
			return nil, err
		}
	}
	return pz.End()
}
