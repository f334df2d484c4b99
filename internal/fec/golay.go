package fec

// Golay block codes. Parity is computed by polynomial division with the
// (23,12) generator x^11+x^10+x^6+x^5+x^4+x^2+1; correction walks a
// syndrome table built at init covering every error pattern of weight <= 3.
// The (20,8) variant is the shortened form used for DMR EMB fields and the
// (24,12) extended form appends an overall parity bit.

const golayGen = 0xC75 // degree-11 generator polynomial

// golayRem computes the degree-11 remainder of v (nbits wide) mod golayGen.
func golayRem(v uint32, nbits int) uint32 {
	for i := nbits - 1; i >= 11; i-- {
		if v&(1<<uint(i)) != 0 {
			v ^= golayGen << uint(i-11)
		}
	}
	return v & 0x7FF
}

type golayCode struct {
	n, k     int
	extended bool
	// syndrome -> error pattern of weight <= 3
	fix map[uint32]uint32
}

func (g *golayCode) syndrome(cw uint32) uint32 {
	nb := g.n
	if g.extended {
		nb = g.n - 1
	}
	s := golayRem(cw>>boolInt(g.extended), nb)
	if g.extended && parity32(cw) {
		s |= 1 << 11
	}
	return s
}

func boolInt(b bool) uint {
	if b {
		return 1
	}
	return 0
}

func newGolay(n, k int, extended bool) *golayCode {
	g := &golayCode{n: n, k: k, extended: extended, fix: make(map[uint32]uint32)}
	// All error patterns up to weight 3 have distinct syndromes at the
	// code's design distance; enumerate them once.
	add := func(pat uint32) {
		g.fix[g.syndrome(pat)] = pat
	}
	for a := 0; a < n; a++ {
		add(1 << uint(a))
		for b := a + 1; b < n; b++ {
			add(1<<uint(a) | 1<<uint(b))
			for c := b + 1; c < n; c++ {
				add(1<<uint(a) | 1<<uint(b) | 1<<uint(c))
			}
		}
	}
	return g
}

// Encode appends parity to the k data bits and returns the n-bit codeword
// with the data in the most significant positions.
func (g *golayCode) Encode(data uint32) uint32 {
	data &= (1 << uint(g.k)) - 1
	nb := g.n
	if g.extended {
		nb = g.n - 1
	}
	cw := data<<uint(nb-g.k) | golayRem(data<<uint(nb-g.k), nb)
	if g.extended {
		cw <<= 1
		if parity32(cw) {
			cw |= 1
		}
	}
	return cw
}

// Decode corrects up to 3 bit errors and returns the data bits along with
// the number of errors corrected.
func (g *golayCode) Decode(cw uint32) (uint32, int, error) {
	cw &= (1 << uint(g.n)) - 1
	s := g.syndrome(cw)
	if s == 0 {
		return cw >> uint(g.n-g.k), 0, nil
	}
	pat, ok := g.fix[s]
	if !ok {
		return 0, 0, ErrUncorrectable
	}
	cw ^= pat
	return cw >> uint(g.n-g.k), popcount32(pat), nil
}

var (
	golay2312 = newGolay(23, 12, false)
	golay2412 = newGolay(24, 12, true)
	golay208  = newGolay(20, 8, false)
)

// Golay2312Encode encodes 12 data bits into a 23-bit codeword.
func Golay2312Encode(data uint32) uint32 { return golay2312.Encode(data) }

// Golay2312Decode corrects up to 3 errors in a 23-bit codeword.
func Golay2312Decode(cw uint32) (uint32, int, error) { return golay2312.Decode(cw) }

// Golay2412Encode encodes 12 data bits into a 24-bit extended codeword.
func Golay2412Encode(data uint32) uint32 { return golay2412.Encode(data) }

// Golay2412Decode corrects up to 3 errors in a 24-bit extended codeword.
func Golay2412Decode(cw uint32) (uint32, int, error) { return golay2412.Decode(cw) }

// Golay208Encode encodes 8 data bits into a 20-bit shortened codeword.
func Golay208Encode(data uint32) uint32 { return golay208.Encode(data) }

// Golay208Decode corrects up to 3 errors in a 20-bit shortened codeword.
func Golay208Decode(cw uint32) (uint32, int, error) { return golay208.Decode(cw) }
