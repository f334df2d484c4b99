package fec

// Reed-Solomon codes over GF(64), field polynomial x^6+x+1. Symbols are
// 6-bit "hex" values. The three shortened codes used by the P25 frame
// decoders share one generic syndrome / Berlekamp-Massey / Chien / Forney
// pipeline.

const (
	gfSize  = 64
	gfPoly  = 0x43 // x^6 + x + 1
	gfOrder = 63
)

// The log/antilog tables are built in the variable initialization chain so
// that package-level RSCode values constructed below see populated tables.
var gf64Exp, gf64Log = buildGF64Tables()

func buildGF64Tables() (exp [2 * gfOrder]byte, log [gfSize]byte) {
	a := byte(1)
	for i := 0; i < gfOrder; i++ {
		exp[i] = a
		exp[i+gfOrder] = a
		log[a] = byte(i)
		a <<= 1
		if a&0x40 != 0 {
			a ^= gfPoly
		}
	}
	return exp, log
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gf64Exp[int(gf64Log[a])+int(gf64Log[b])]
}

func gfInv(a byte) byte {
	return gf64Exp[gfOrder-int(gf64Log[a])]
}

// RSCode is a shortened Reed-Solomon code over GF(64). The generator roots
// are alpha^1 .. alpha^(n-k).
type RSCode struct {
	N, K int
	gen  []byte // generator polynomial, degree n-k, gen[0] constant term
}

// NewRS constructs an (n,k) code; n must not exceed 63 and all symbols must
// fit in 6 bits.
func NewRS(n, k int) *RSCode {
	if n > gfOrder || k >= n || k <= 0 {
		panic("fec: invalid RS parameters")
	}
	nroots := n - k
	// g(x) = prod_{i=1..nroots} (x - alpha^i)
	gen := make([]byte, nroots+1)
	gen[0] = 1
	for i := 1; i <= nroots; i++ {
		root := gf64Exp[i]
		// multiply gen by (x + root)
		for j := i; j > 0; j-- {
			gen[j] = gen[j-1] ^ gfMul(gen[j], root)
		}
		gen[0] = gfMul(gen[0], root)
	}
	return &RSCode{N: n, K: k, gen: gen}
}

// Encode computes the n-k parity symbols for data (length k) and returns
// the full codeword data||parity.
func (c *RSCode) Encode(data []byte) []byte {
	nroots := c.N - c.K
	cw := make([]byte, c.N)
	copy(cw, data[:c.K])
	par := cw[c.K:]
	for i := 0; i < c.K; i++ {
		feedback := data[i] ^ par[0]
		if feedback != 0 {
			for j := 0; j < nroots-1; j++ {
				par[j] = par[j+1] ^ gfMul(feedback, c.gen[nroots-1-j])
			}
			par[nroots-1] = gfMul(feedback, c.gen[0])
		} else {
			copy(par, par[1:])
			par[nroots-1] = 0
		}
	}
	return cw
}

// Decode corrects cw (length n) in place and returns the number of symbol
// errors corrected, or ErrUncorrectable.
func (c *RSCode) Decode(cw []byte) (int, error) {
	nroots := c.N - c.K

	// Syndromes S_i = r(alpha^(i+1)).
	synd := make([]byte, nroots)
	clean := true
	for i := 0; i < nroots; i++ {
		var s byte
		for j := 0; j < c.N; j++ {
			s = gfMul(s, gf64Exp[i+1]) ^ cw[j]
		}
		synd[i] = s
		if s != 0 {
			clean = false
		}
	}
	if clean {
		return 0, nil
	}

	// Berlekamp-Massey.
	lambda := make([]byte, nroots+1)
	prev := make([]byte, nroots+1)
	tmp := make([]byte, nroots+1)
	lambda[0] = 1
	prev[0] = 1
	L := 0
	m := 1
	bdelta := byte(1)
	for n := 0; n < nroots; n++ {
		var delta byte
		for i := 0; i <= L; i++ {
			if n-i >= 0 {
				delta ^= gfMul(lambda[i], synd[n-i])
			}
		}
		switch {
		case delta == 0:
			m++
		case 2*L <= n:
			copy(tmp, lambda)
			coef := gfMul(delta, gfInv(bdelta))
			for i := 0; i+m <= nroots; i++ {
				lambda[i+m] ^= gfMul(coef, prev[i])
			}
			L = n + 1 - L
			copy(prev, tmp)
			bdelta = delta
			m = 1
		default:
			coef := gfMul(delta, gfInv(bdelta))
			for i := 0; i+m <= nroots; i++ {
				lambda[i+m] ^= gfMul(coef, prev[i])
			}
			m++
		}
	}
	if L > nroots/2 {
		return 0, ErrUncorrectable
	}

	// Chien search within the shortened length. Position j corresponds to
	// locator alpha^(n-1-j).
	var errPos []int
	for j := 0; j < c.N; j++ {
		loc := gfOrder - (c.N - 1 - j) // log of alpha^-(n-1-j)
		var v byte
		for i := L; i >= 0; i-- {
			v = gfMul(v, gf64Exp[loc%gfOrder]) ^ lambda[i]
		}
		if v == 0 {
			errPos = append(errPos, j)
		}
	}
	if len(errPos) != L {
		return 0, ErrUncorrectable
	}

	// Forney: omega(x) = S(x)*lambda(x) mod x^nroots.
	omega := make([]byte, nroots)
	for i := 0; i < nroots; i++ {
		var v byte
		for j := 0; j <= i && j <= L; j++ {
			v ^= gfMul(lambda[j], synd[i-j])
		}
		omega[i] = v
	}

	for _, j := range errPos {
		xlog := c.N - 1 - j          // log of the locator X
		invlog := gfOrder - xlog     // log of X^-1
		// omega(X^-1)
		var num byte
		for i := nroots - 1; i >= 0; i-- {
			num = gfMul(num, gf64Exp[invlog%gfOrder]) ^ omega[i]
		}
		// lambda'(X^-1): odd-power terms only.
		var den byte
		for i := 1; i <= L; i += 2 {
			den ^= gfMul(lambda[i], gf64Exp[(invlog*(i-1))%gfOrder])
		}
		if den == 0 {
			return 0, ErrUncorrectable
		}
		cw[j] ^= gfMul(num, gfInv(den))
	}
	return L, nil
}

// The three codes the P25 handlers rely on: (12,9) for terminator link
// control, (24,16) for LDU2 encryption sync, (63,35) for the header word
// (used shortened to 36 symbols by the caller).
var (
	RS129  = NewRS(12, 9)
	RS2416 = NewRS(24, 16)
	RS6335 = NewRS(63, 35)
)
