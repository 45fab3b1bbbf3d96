package zip

// Polynomial is the reflected CRC-32 polynomial used by ZIP.
const Polynomial = 0xedb88320

var crcTable = makeTable(Polynomial)

// makeTable builds the byte-at-a-time table for a reflected polynomial. Each
// power-of-two index is the shifted CRC of a single set bit; every other
// index is the XOR of the entries for its set bits.
func makeTable(poly uint32) *[256]uint32 {
	table := new([256]uint32)
	crc := uint32(1)
	for i := 128; i > 0; i >>= 1 {
		if crc&1 == 1 {
			crc = crc>>1 ^ poly
		} else {
			crc >>= 1
		}
		for j := 0; j < 256; j += 2 * i {
			table[i+j] = crc ^ table[j]
		}
	}
	return table
}

// Update returns the CRC-32 of crc extended by p.
func Update(crc uint32, p []byte) uint32 {
	crc = ^crc
	for _, b := range p {
		crc = crc>>8 ^ crcTable[byte(crc)^b]
	}
	return ^crc
}

// Checksum returns the CRC-32 of p.
func Checksum(p []byte) uint32 {
	return Update(0, p)
}
