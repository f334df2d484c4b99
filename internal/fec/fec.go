// Package fec implements the forward error correction primitives shared by
// the frame decoders: the Hamming and Golay block codes, quadratic residue,
// Reed-Solomon over GF(64), rate 1/2 and 3/4 trellis codes with
// soft-decision Viterbi, the BPTC product codes and the CRC family.
//
// Every primitive is a pure function of its inputs. Decoders report how many
// symbols or bits they corrected; inputs beyond the code's correction radius
// return ErrUncorrectable and leave the caller to drop the frame.
package fec

import "errors"

// ErrUncorrectable is returned when a codeword contains more errors than the
// code can correct.
var ErrUncorrectable = errors.New("fec: uncorrectable codeword")

// ErrCRCMismatch is returned by checked extractors when a CRC gate fails.
var ErrCRCMismatch = errors.New("fec: crc mismatch")

// BitsToByte packs up to 8 bits MSB-first.
func BitsToByte(bits []bool) byte {
	var b byte
	for i := 0; i < len(bits) && i < 8; i++ {
		b <<= 1
		if bits[i] {
			b |= 1
		}
	}
	return b
}

// ByteToBits unpacks b MSB-first into dst, which must hold 8 entries.
func ByteToBits(b byte, dst []bool) {
	for i := 0; i < 8; i++ {
		dst[i] = b&(0x80>>i) != 0
	}
}

// BitsToUint packs up to 32 bits MSB-first.
func BitsToUint(bits []bool) uint32 {
	var v uint32
	for _, b := range bits {
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v
}

// UintToBits unpacks the low n bits of v MSB-first into dst.
func UintToBits(v uint32, dst []bool, n int) {
	for i := 0; i < n; i++ {
		dst[i] = v&(1<<uint(n-1-i)) != 0
	}
}

func parity32(v uint32) bool {
	v ^= v >> 16
	v ^= v >> 8
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 != 0
}

func popcount32(v uint32) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}
