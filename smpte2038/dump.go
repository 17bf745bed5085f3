package smpte2038

import (
	"fmt"
	"io"
	"strings"

	"github.com/zsiec/st2038/vanc"
)

const wordsPerRow = 8

// Dump writes every packet and line field to w in human-readable form.
// Ancillary words are shown raw with the parity-stripped value alongside.
func (p *Packet) Dump(w io.Writer) error {
	d := &dumper{w: w}
	d.printf("SMPTE 2038 packet\n")
	d.printf("  packet_start_code_prefix = 0x%06x\n", p.PacketStartCodePrefix)
	d.printf("  stream_id                = 0x%02x\n", p.StreamID)
	d.printf("  PES_packet_length        = %d\n", p.PESPacketLength)
	d.printf("  reserved_10              = %d\n", p.Reserved10)
	d.printf("  PES_scrambling_control   = %d\n", p.ScramblingControl)
	d.printf("  PES_priority             = %d\n", b2i(p.Priority))
	d.printf("  data_alignment_indicator = %d\n", b2i(p.DataAlignmentIndicator))
	d.printf("  copyright                = %d\n", b2i(p.Copyright))
	d.printf("  original_or_copy         = %d\n", b2i(p.OriginalOrCopy))
	d.printf("  PTS_DTS_flags            = %d\n", p.PTSDTSFlags)
	d.printf("  ESCR_flag                = %d\n", b2i(p.ESCRFlag))
	d.printf("  ES_rate_flag             = %d\n", b2i(p.ESRateFlag))
	d.printf("  DSM_trick_mode_flag      = %d\n", b2i(p.DSMTrickModeFlag))
	d.printf("  additional_copy_info     = %d\n", b2i(p.AdditionalCopyInfoFlag))
	d.printf("  PES_CRC_flag             = %d\n", b2i(p.CRCFlag))
	d.printf("  PES_extension_flag       = %d\n", b2i(p.ExtensionFlag))
	d.printf("  PES_header_data_length   = %d\n", p.HeaderDataLength)
	if p.HasPTS() {
		d.printf("  PTS                      = %d (%.3fs)\n", p.PTS, float64(p.PTS)/90000)
	} else {
		d.printf("  PTS                      = none\n")
	}
	d.printf("  lines                    = %d\n", len(p.Lines))
	for i := range p.Lines {
		p.Lines[i].dump(d, i)
	}
	return d.err
}

// String renders the packet as Dump does.
func (p *Packet) String() string {
	var sb strings.Builder
	_ = p.Dump(&sb)
	return sb.String()
}

func (l *Line) dump(d *dumper, index int) {
	d.printf("  line[%d]\n", index)
	d.printf("    reserved_000000      = %d\n", l.Reserved)
	d.printf("    c_not_y_channel_flag = %d\n", b2i(l.ChromaChannel))
	d.printf("    line_number          = %d\n", l.LineNumber)
	d.printf("    horizontal_offset    = %d\n", l.HorizontalOffset)
	name := vanc.Lookup(vanc.Strip(l.DID), vanc.Strip(l.SDID))
	if name == "" {
		name = "unknown DID/SDID"
	}
	d.printf("    DID                  = 0x%03x (0x%02x) %s\n", l.DID, vanc.Strip(l.DID), name)
	d.printf("    SDID                 = 0x%03x (0x%02x)\n", l.SDID, vanc.Strip(l.SDID))
	d.printf("    data_count           = 0x%03x (%d)\n", l.DataCount, l.Count())
	d.printf("    user_data_words      =")
	for i, w := range l.UserDataWords {
		if i%wordsPerRow == 0 {
			d.printf("\n      ")
		}
		d.printf("0x%03x ", w)
	}
	d.printf("\n")
	status := "valid"
	if !l.ChecksumValid() {
		status = fmt.Sprintf("invalid, computed 0x%03x",
			vanc.Checksum(l.DID, l.SDID, l.DataCount, l.UserDataWords))
	}
	d.printf("    checksum_word        = 0x%03x (%s)\n", l.ChecksumWord, status)
}

// dumper remembers the first write error so callers check once.
type dumper struct {
	w   io.Writer
	err error
}

func (d *dumper) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
