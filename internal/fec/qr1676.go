package fec

// Quadratic residue (16,7,6) code: the (15,7) double-error-correcting cyclic
// code with generator x^8+x^7+x^6+x^4+1 plus an overall parity bit.
// Corrects up to 2 bit errors.

const qrGen = 0x1D1

func qrRem(v uint32) uint32 {
	for i := 14; i >= 8; i-- {
		if v&(1<<uint(i)) != 0 {
			v ^= qrGen << uint(i-8)
		}
	}
	return v & 0xFF
}

func qrSyndrome(cw uint32) uint32 {
	s := qrRem(cw >> 1)
	if parity32(cw & 0xFFFF) {
		s |= 1 << 8
	}
	return s
}

var qrFix = func() map[uint32]uint32 {
	m := make(map[uint32]uint32)
	for a := 0; a < 16; a++ {
		m[qrSyndrome(1<<uint(a))] = 1 << uint(a)
		for b := a + 1; b < 16; b++ {
			pat := uint32(1<<uint(a) | 1<<uint(b))
			m[qrSyndrome(pat)] = pat
		}
	}
	return m
}()

// QR1676Encode encodes 7 data bits into a 16-bit codeword with the data in
// the most significant positions.
func QR1676Encode(data uint32) uint32 {
	data &= 0x7F
	cw := data<<8 | qrRem(data<<8)
	cw <<= 1
	if parity32(cw) {
		cw |= 1
	}
	return cw
}

// QR1676Decode corrects up to 2 errors in a 16-bit codeword and returns the
// 7 data bits plus the number of errors corrected.
func QR1676Decode(cw uint32) (uint32, int, error) {
	cw &= 0xFFFF
	s := qrSyndrome(cw)
	if s == 0 {
		return cw >> 9, 0, nil
	}
	pat, ok := qrFix[s]
	if !ok {
		return 0, 0, ErrUncorrectable
	}
	cw ^= pat
	return cw >> 9, popcount32(pat), nil
}
