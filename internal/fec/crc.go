package fec

// CRC family used across the protocol handlers. All variants run the same
// MSB-first bit-at-a-time register, so appending a checksum to its message
// always leaves a zero remainder (the property the frame gates rely on).

// crcBits runs width-wide CRC with the given polynomial over a bit slice.
func crcBits(bits []bool, width uint, poly, init uint32) uint32 {
	reg := init
	mask := uint32(1)<<width - 1
	top := uint32(1) << (width - 1)
	for _, b := range bits {
		fb := reg&top != 0
		if b {
			fb = !fb
		}
		reg <<= 1
		if fb {
			reg ^= poly
		}
	}
	return reg & mask
}

// crcBytes is crcBits over packed bytes, MSB-first.
func crcBytes(data []byte, width uint, poly, init uint32) uint32 {
	reg := init
	mask := uint32(1)<<width - 1
	top := uint32(1) << (width - 1)
	for _, by := range data {
		for i := 7; i >= 0; i-- {
			fb := reg&top != 0
			if by&(1<<uint(i)) != 0 {
				fb = !fb
			}
			reg <<= 1
			if fb {
				reg ^= poly
			}
		}
	}
	return reg & mask
}

// CRC5 computes the 5-bit checksum (poly x^5+x^4+x^2+1).
func CRC5(bits []bool) uint32 { return crcBits(bits, 5, 0x15, 0) }

// CRC7 computes the 7-bit checksum (poly x^7+x^3+1).
func CRC7(bits []bool) uint32 { return crcBits(bits, 7, 0x09, 0) }

// CRC8 computes the 8-bit checksum with the CCITT polynomial 0x07.
func CRC8(bits []bool) uint32 { return crcBits(bits, 8, 0x07, 0) }

// CRC8Alt computes the 8-bit checksum with the alternate polynomial 0x1D.
func CRC8Alt(bits []bool) uint32 { return crcBits(bits, 8, 0x1D, 0) }

// CRC9 computes the 9-bit checksum (poly 0x059) used by confirmed data
// blocks.
func CRC9(bits []bool) uint32 { return crcBits(bits, 9, 0x059, 0) }

// CRC12 computes the 12-bit checksum (poly 0x80F) gating MAC PDUs.
func CRC12(bits []bool) uint32 { return crcBits(bits, 12, 0x80F, 0) }

// CRC12Alt computes the 12-bit checksum with polynomial 0xF13.
func CRC12Alt(bits []bool) uint32 { return crcBits(bits, 12, 0xF13, 0) }

// CRC15 computes the 15-bit checksum (poly 0x4599).
func CRC15(bits []bool) uint32 { return crcBits(bits, 15, 0x4599, 0) }

// CRC16CCITT computes the 16-bit CCITT checksum (poly 0x1021, init 0xFFFF).
func CRC16CCITT(data []byte) uint32 { return crcBytes(data, 16, 0x1021, 0xFFFF) }

// CRC16CCITTBits is CRC16CCITT over a bit slice.
func CRC16CCITTBits(bits []bool) uint32 { return crcBits(bits, 16, 0x1021, 0xFFFF) }

// CRC16CAC computes the 16-bit checksum used by the NXDN common access
// channel (poly 0x1021, init 0xC3EE).
func CRC16CAC(bits []bool) uint32 { return crcBits(bits, 16, 0x1021, 0xC3EE) }

// CRC32 computes the 32-bit checksum (poly 0x04C11DB7, MSB-first).
func CRC32(data []byte) uint32 { return crcBytes(data, 32, 0x04C11DB7, 0) }

// CheckAppended verifies a message whose final width bits carry its own
// checksum computed with init 0: the full register must return to zero.
func CheckAppended(bits []bool, width uint, poly uint32) bool {
	return crcBits(bits, width, poly, 0) == 0
}
