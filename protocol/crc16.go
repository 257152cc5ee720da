package protocol

// CRC16 computes the CCITT checksum (reflected, init 0xFFFF) that protects a
// frame. It is computed byte-wise without a table to keep firmware small.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}
