package brcode

import "fmt"

const (
	crcPoly = 0x1021
	crcInit = 0xFFFF
)

// CRC16 computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF, no reflection, no final XOR).
func CRC16(data []byte) uint16 {
	crc := uint16(crcInit)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Checksum renders the CRC of payload as 4 uppercase hex digits.
func Checksum(payload string) string {
	return fmt.Sprintf("%04X", CRC16([]byte(payload)))
}
