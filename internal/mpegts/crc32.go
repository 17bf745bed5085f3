package mpegts

import (
	"encoding/binary"
	"errors"
)

var errCRC32 = errors.New("mpegts: CRC32 mismatch")

// MPEG-2 CRC32 with polynomial 0x04C11DB7, no reflection, no final XOR.
var crc32Table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crc32Table[i] = crc
	}
}

func computeCRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// verifyCRC32 checks a section that ends in its own CRC32; running the CRC
// over data and checksum yields zero.
func verifyCRC32(data []byte) error {
	if len(data) < 4 {
		return errors.New("mpegts: data too short for CRC32")
	}
	if computeCRC32(data) != 0 {
		return errCRC32
	}
	return nil
}

// appendCRC32 appends the CRC32 of section to section.
func appendCRC32(section []byte) []byte {
	return binary.BigEndian.AppendUint32(section, computeCRC32(section))
}
