package fec

// The Hamming codes are described by their parity equations: masks[i] has
// bit j set when data bit j participates in parity bit i. Decoding builds a
// syndrome-to-position table once at package init, so all variants share one
// correction routine.

type hammingCode struct {
	n, k     int
	masks    []uint32
	extended bool // trailing overall-parity bit, distance 4
	// syndrome value -> bit position to flip (data 0..k-1, parity k..)
	fix map[uint32]int
}

func newHamming(n, k int, masks []uint32, extended bool) *hammingCode {
	h := &hammingCode{n: n, k: k, masks: masks, extended: extended, fix: make(map[uint32]int)}
	// Data-bit signatures: the set of parity equations each bit appears in.
	for j := 0; j < k; j++ {
		var sig uint32
		for i, m := range masks {
			if m&(1<<uint(j)) != 0 {
				sig |= 1 << uint(i)
			}
		}
		h.fix[sig] = j
	}
	// Parity-bit signatures are unit vectors.
	for i := range masks {
		h.fix[1<<uint(i)] = k + i
	}
	return h
}

// Encode fills the parity bits of d in place. d holds k data bits followed
// by n-k parity positions (plus the overall parity bit for extended codes).
func (h *hammingCode) Encode(d []bool) {
	for i, m := range h.masks {
		p := false
		for j := 0; j < h.k; j++ {
			if m&(1<<uint(j)) != 0 && d[j] {
				p = !p
			}
		}
		d[h.k+i] = p
	}
	if h.extended {
		p := false
		for j := 0; j < h.n-1; j++ {
			if d[j] {
				p = !p
			}
		}
		d[h.n-1] = p
	}
}

// Decode corrects a single bit error in place. It returns the number of
// bits corrected, or ErrUncorrectable when the syndrome does not match any
// single-error position (for extended codes this covers detected double
// errors).
func (h *hammingCode) Decode(d []bool) (int, error) {
	var syn uint32
	for i, m := range h.masks {
		p := false
		for j := 0; j < h.k; j++ {
			if m&(1<<uint(j)) != 0 && d[j] {
				p = !p
			}
		}
		if p != d[h.k+i] {
			syn |= 1 << uint(i)
		}
	}

	overallOK := true
	if h.extended {
		p := false
		for j := 0; j < h.n; j++ {
			if d[j] {
				p = !p
			}
		}
		overallOK = !p
	}

	if syn == 0 {
		if h.extended && !overallOK {
			// Error confined to the overall parity bit.
			d[h.n-1] = !d[h.n-1]
			return 1, nil
		}
		return 0, nil
	}

	if h.extended && overallOK {
		// Non-zero syndrome with even overall parity: two errors.
		return 0, ErrUncorrectable
	}

	pos, ok := h.fix[syn]
	if !ok {
		return 0, ErrUncorrectable
	}
	d[pos] = !d[pos]
	return 1, nil
}

// Parity assignments. The (15,11) and (13,9) equations are the DMR BPTC
// row/column codes; the smaller codes assign each data bit a distinct
// weight>=2 syndrome.
var (
	hamming74 = newHamming(7, 4, []uint32{
		0b1011, // d0 d1 d3
		0b1101, // d0 d2 d3
		0b1110, // d1 d2 d3
	}, false)

	hamming128 = newHamming(12, 8, []uint32{
		0b01011011,
		0b01101101,
		0b10001110,
		0b11110000,
	}, false)

	hamming139 = newHamming(13, 9, []uint32{
		0b001101011,
		0b011010111,
		0b110101111,
		0b100110101,
	}, false)

	hamming1511 = newHamming(15, 11, []uint32{
		0b00110101111,
		0b01101011110,
		0b11010111100,
		0b10011010111,
	}, false)

	hamming16114 = newHamming(16, 11, []uint32{
		0b00110101111,
		0b01101011110,
		0b11010111100,
		0b10011010111,
	}, true)
)

// Hamming74Encode fills the 3 parity bits of a 7-bit word (4 data bits).
func Hamming74Encode(d []bool) { hamming74.Encode(d) }

// Hamming74Decode corrects up to one error in a 7-bit word.
func Hamming74Decode(d []bool) (int, error) { return hamming74.Decode(d) }

// Hamming128Encode fills the 4 parity bits of a 12-bit word (8 data bits).
func Hamming128Encode(d []bool) { hamming128.Encode(d) }

// Hamming128Decode corrects up to one error in a 12-bit word.
func Hamming128Decode(d []bool) (int, error) { return hamming128.Decode(d) }

// Hamming139Encode fills the 4 parity bits of a 13-bit word (9 data bits).
func Hamming139Encode(d []bool) { hamming139.Encode(d) }

// Hamming139Decode corrects up to one error in a 13-bit word.
func Hamming139Decode(d []bool) (int, error) { return hamming139.Decode(d) }

// Hamming1511Encode fills the 4 parity bits of a 15-bit word (11 data bits).
func Hamming1511Encode(d []bool) { hamming1511.Encode(d) }

// Hamming1511Decode corrects up to one error in a 15-bit word.
func Hamming1511Decode(d []bool) (int, error) { return hamming1511.Decode(d) }

// Hamming16114Encode fills the 5 parity bits of a 16-bit word (11 data
// bits, distance 4).
func Hamming16114Encode(d []bool) { hamming16114.Encode(d) }

// Hamming16114Decode corrects one error and detects two in a 16-bit word.
func Hamming16114Decode(d []bool) (int, error) { return hamming16114.Decode(d) }
