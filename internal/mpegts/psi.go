package mpegts

import (
	"errors"
	"fmt"
)

const (
	pidPAT = 0x0000

	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

var errSectionTooShort = errors.New("mpegts: section too short")

func isPSIPayload(pid uint16, pm *programMap) bool {
	return pid == pidPAT || pm.isPMTPID(pid)
}

func parsePSI(payload []byte, pid uint16, firstPacket *Packet, pm *programMap) ([]*DemuxerData, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("mpegts: PSI payload too short")
	}

	pointerField := int(payload[0])
	offset := 1 + pointerField
	if offset >= len(payload) {
		return nil, fmt.Errorf("mpegts: PSI pointer field out of range")
	}

	var results []*DemuxerData

	for offset < len(payload) {
		tableID := payload[offset]
		if tableID == 0xFF {
			break // stuffing
		}
		if offset+3 > len(payload) {
			break
		}
		// section_syntax_indicator is set on PAT/PMT; zero padding is not.
		if payload[offset+1]&0x80 == 0 {
			break
		}

		sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
		sectionEnd := offset + 3 + sectionLength
		if sectionEnd > len(payload) {
			break
		}
		section := payload[offset:sectionEnd]

		switch tableID {
		case tableIDPAT:
			pat, err := parsePATSection(section)
			if err != nil {
				return results, err
			}
			results = append(results, &DemuxerData{FirstPacket: firstPacket, PAT: pat})

		case tableIDPMT:
			pmt, err := parsePMTSection(section)
			if err != nil {
				return results, err
			}
			results = append(results, &DemuxerData{FirstPacket: firstPacket, PMT: pmt})
		}

		offset = sectionEnd
	}

	return results, nil
}

func parsePATSection(data []byte) (*PATData, error) {
	// [0]      table_id
	// [1-2]    section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
	// [3-4]    transport_stream_id
	// [5]      reserved(2) + version(5) + current_next(1)
	// [6]      section_number
	// [7]      last_section_number
	// [8..N-4] program entries (4 bytes each)
	// [N-4..N] CRC32
	if len(data) < 12 {
		return nil, fmt.Errorf("mpegts: PAT: %w", errSectionTooShort)
	}
	if err := verifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PAT: %w", err)
	}

	pat := &PATData{}
	for i := 8; i+4 <= len(data)-4; i += 4 {
		programNumber := uint16(data[i])<<8 | uint16(data[i+1])
		pmtPID := uint16(data[i+2]&0x1F)<<8 | uint16(data[i+3])
		if programNumber == 0 {
			continue // network PID
		}
		pat.Programs = append(pat.Programs, &PATProgram{
			ProgramNumber: programNumber,
			ProgramMapID:  pmtPID,
		})
	}
	return pat, nil
}

func parsePMTSection(data []byte) (*PMTData, error) {
	// [0]      table_id
	// [1-2]    section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
	// [3-4]    program_number
	// [5]      reserved(2) + version(5) + current_next(1)
	// [6]      section_number
	// [7]      last_section_number
	// [8-9]    reserved(3) + PCR_PID(13)
	// [10-11]  reserved(4) + program_info_length(12)
	// [...]    program descriptors
	// [...]    elementary stream entries, each with ES descriptors
	// [N-4..N] CRC32
	if len(data) < 16 {
		return nil, fmt.Errorf("mpegts: PMT: %w", errSectionTooShort)
	}
	if err := verifyCRC32(data); err != nil {
		return nil, fmt.Errorf("mpegts: PMT: %w", err)
	}

	end := len(data) - 4
	pmt := &PMTData{
		ProgramNumber: uint16(data[3])<<8 | uint16(data[4]),
		PCRPID:        uint16(data[8]&0x1F)<<8 | uint16(data[9]),
	}

	programInfoLength := int(data[10]&0x0F)<<8 | int(data[11])
	offset := 12 + programInfoLength
	if offset > end {
		return nil, fmt.Errorf("mpegts: PMT: program_info_length %d overruns section", programInfoLength)
	}
	pmt.ProgramInfo = parseDescriptors(data[12:offset])

	for offset+5 <= end {
		es := &PMTElementaryStream{
			StreamType:    data[offset],
			ElementaryPID: uint16(data[offset+1]&0x1F)<<8 | uint16(data[offset+2]),
		}
		esInfoLength := int(data[offset+3]&0x0F)<<8 | int(data[offset+4])
		offset += 5
		if offset+esInfoLength > end {
			return nil, fmt.Errorf("mpegts: PMT: ES_info_length %d overruns section", esInfoLength)
		}
		es.Descriptors = parseDescriptors(data[offset : offset+esInfoLength])
		pmt.ElementaryStreams = append(pmt.ElementaryStreams, es)
		offset += esInfoLength
	}

	return pmt, nil
}

// parseDescriptors splits a descriptor loop. A truncated trailing
// descriptor is dropped.
func parseDescriptors(data []byte) []*Descriptor {
	var ds []*Descriptor
	for len(data) >= 2 {
		n := int(data[1])
		if 2+n > len(data) {
			break
		}
		ds = append(ds, &Descriptor{Tag: data[0], Data: data[2 : 2+n]})
		data = data[2+n:]
	}
	return ds
}

func appendDescriptors(b []byte, ds []*Descriptor) []byte {
	for _, d := range ds {
		b = append(b, d.Tag, byte(len(d.Data)))
		b = append(b, d.Data...)
	}
	return b
}

func descriptorsLen(ds []*Descriptor) int {
	n := 0
	for _, d := range ds {
		n += 2 + len(d.Data)
	}
	return n
}

// marshalPAT builds a PAT section, CRC included.
func marshalPAT(tsID uint16, programs []*PATProgram) []byte {
	sectionLength := 5 + 4*len(programs) + 4

	b := make([]byte, 0, 3+sectionLength)
	b = append(b,
		tableIDPAT,
		0xB0|byte(sectionLength>>8)&0x0F, // section_syntax_indicator
		byte(sectionLength),
		byte(tsID>>8), byte(tsID),
		0xC1, // version 0, current_next
		0x00, // section_number
		0x00, // last_section_number
	)
	for _, p := range programs {
		b = append(b,
			byte(p.ProgramNumber>>8), byte(p.ProgramNumber),
			0xE0|byte(p.ProgramMapID>>8)&0x1F, byte(p.ProgramMapID),
		)
	}
	return appendCRC32(b)
}

// marshalPMT builds a PMT section, CRC included.
func marshalPMT(pmt *PMTData) []byte {
	programInfoLength := descriptorsLen(pmt.ProgramInfo)
	sectionLength := 9 + programInfoLength + 4
	for _, es := range pmt.ElementaryStreams {
		sectionLength += 5 + descriptorsLen(es.Descriptors)
	}

	b := make([]byte, 0, 3+sectionLength)
	b = append(b,
		tableIDPMT,
		0xB0|byte(sectionLength>>8)&0x0F,
		byte(sectionLength),
		byte(pmt.ProgramNumber>>8), byte(pmt.ProgramNumber),
		0xC1,
		0x00,
		0x00,
		0xE0|byte(pmt.PCRPID>>8)&0x1F, byte(pmt.PCRPID),
		0xF0|byte(programInfoLength>>8)&0x0F, byte(programInfoLength),
	)
	b = appendDescriptors(b, pmt.ProgramInfo)
	for _, es := range pmt.ElementaryStreams {
		esInfoLength := descriptorsLen(es.Descriptors)
		b = append(b,
			es.StreamType,
			0xE0|byte(es.ElementaryPID>>8)&0x1F, byte(es.ElementaryPID),
			0xF0|byte(esInfoLength>>8)&0x0F, byte(esInfoLength),
		)
		b = appendDescriptors(b, es.Descriptors)
	}
	return appendCRC32(b)
}
