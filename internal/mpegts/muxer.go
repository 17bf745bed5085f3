package mpegts

import (
	"errors"
	"fmt"
	"io"
)

const (
	defaultPMTPID        = 0x1000
	defaultESPID         = 0x0100
	defaultProgramNumber = 1
	defaultTableInterval = 40

	pidNull = 0x1FFF
)

var errNotPES = errors.New("mpegts: muxer input is not a PES packet")

// Muxer writes a single-program transport stream carrying one SMPTE ST 2038
// elementary stream. PAT and PMT are repeated every few PES packets so a
// reader can join mid-stream. A Muxer is not safe for concurrent use.
type Muxer struct {
	w             io.Writer
	pmtPID        uint16
	esPID         uint16
	programNumber uint16
	tableInterval int

	ccPAT, ccPMT, ccES uint8
	sinceTables        int
	packets            int64
	pkt                [packetSize]byte
}

// MuxerOptPIDs sets the PMT and elementary stream PIDs.
func MuxerOptPIDs(pmt, es uint16) func(*Muxer) {
	return func(m *Muxer) {
		m.pmtPID = pmt & pidNull
		m.esPID = es & pidNull
	}
}

// MuxerOptTableInterval sets how many PES packets are written between PAT/PMT
// repetitions.
func MuxerOptTableInterval(n int) func(*Muxer) {
	return func(m *Muxer) {
		if n > 0 {
			m.tableInterval = n
		}
	}
}

// NewMuxer returns a Muxer writing 188-byte packets to w.
func NewMuxer(w io.Writer, opts ...func(*Muxer)) *Muxer {
	m := &Muxer{
		w:             w,
		pmtPID:        defaultPMTPID,
		esPID:         defaultESPID,
		programNumber: defaultProgramNumber,
		tableInterval: defaultTableInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PID returns the elementary stream PID.
func (m *Muxer) PID() uint16 {
	return m.esPID
}

// Packets returns the number of TS packets written so far.
func (m *Muxer) Packets() int64 {
	return m.packets
}

// WriteTables writes a PAT and a PMT advertising the ancillary stream with
// a "VANC" registration descriptor.
func (m *Muxer) WriteTables() error {
	pat := marshalPAT(1, []*PATProgram{{ProgramNumber: m.programNumber, ProgramMapID: m.pmtPID}})
	if err := m.writeSection(pidPAT, &m.ccPAT, pat); err != nil {
		return fmt.Errorf("mpegts: write PAT: %w", err)
	}
	pmt := marshalPMT(&PMTData{
		ProgramNumber: m.programNumber,
		PCRPID:        pidNull,
		ElementaryStreams: []*PMTElementaryStream{{
			StreamType:    StreamTypePrivateData,
			ElementaryPID: m.esPID,
			Descriptors: []*Descriptor{{
				Tag:  DescriptorTagRegistration,
				Data: []byte{byte(FormatIdentifierVANC >> 24), byte(FormatIdentifierVANC >> 16), byte(FormatIdentifierVANC >> 8), byte(FormatIdentifierVANC)},
			}},
		}},
	})
	if err := m.writeSection(m.pmtPID, &m.ccPMT, pmt); err != nil {
		return fmt.Errorf("mpegts: write PMT: %w", err)
	}
	m.sinceTables = 0
	return nil
}

// WritePES splits one complete PES packet into TS packets on the ancillary
// PID, writing PAT/PMT first when they are due.
func (m *Muxer) WritePES(pes []byte) error {
	if !isPESPayload(pes) {
		return errNotPES
	}
	if m.packets == 0 || m.sinceTables >= m.tableInterval {
		if err := m.WriteTables(); err != nil {
			return err
		}
	}
	if err := m.writePayload(m.esPID, &m.ccES, pes); err != nil {
		return fmt.Errorf("mpegts: write PES: %w", err)
	}
	m.sinceTables++
	return nil
}

func (m *Muxer) writeSection(pid uint16, cc *uint8, section []byte) error {
	payload := make([]byte, 0, 1+len(section))
	payload = append(payload, 0x00) // pointer_field
	payload = append(payload, section...)
	return m.writePayload(pid, cc, payload)
}

// writePayload packetizes payload, setting PUSI on the first packet and
// advancing the continuity counter per packet.
func (m *Muxer) writePayload(pid uint16, cc *uint8, payload []byte) error {
	first := true
	for len(payload) > 0 {
		n := putPacket(&m.pkt, pid, *cc, first, payload)
		*cc = (*cc + 1) & 0x0F
		first = false
		payload = payload[n:]
		if _, err := m.w.Write(m.pkt[:]); err != nil {
			return err
		}
		m.packets++
	}
	return nil
}
