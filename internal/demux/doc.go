// Package demux extracts SMPTE ST 2038 ancillary data from an MPEG-TS byte
// stream. It discovers the ancillary PIDs from the PMT (stream_type 0x06
// with a "VANC" registration descriptor), decodes each PES packet with
// smpte2038.Parse and optionally decodes CEA-608/708 captions carried in
// the ancillary lines.
//
// The central type is [Demuxer], which reads from an [io.Reader] and
// delivers results on channels until its Run method returns.
package demux
