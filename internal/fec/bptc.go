package fec

// Block product codes. BPTC(196,96) protects the DMR link control payload:
// a 13x15 matrix (position 0 reserved) with Hamming(15,11) rows and
// Hamming(13,9) columns, interleaved by (a*181) mod 196. The (128,77)
// variant is an 8x16 matrix with Hamming(16,11,4) rows and a column parity
// row. The short 16x2 code carries embedded signalling as two interleaved
// Hamming(16,11,4) words.

const (
	bptcBits     = 196
	bptcInfo     = 96
	bptcCols     = 15
	bptcDataRows = 9
	bptcMaxIter  = 5
)

// Data bit positions within the deinterleaved matrix: the first row holds 8
// info bits after the reserved positions, rows 1-8 hold 11 each.
var bptcDataRanges = [9][2]int{
	{4, 11}, {16, 26}, {31, 41}, {46, 56}, {61, 71},
	{76, 86}, {91, 101}, {106, 116}, {121, 131},
}

func bptcDeinterleave(in, out []bool, mult, total int) {
	for a := 0; a < total; a++ {
		out[a] = in[(a*mult)%total]
	}
}

func bptcInterleave(in, out []bool, mult, total int) {
	for a := 0; a < total; a++ {
		out[(a*mult)%total] = in[a]
	}
}

// BPTC19696Encode expands 96 info bits into the interleaved 196-bit block.
func BPTC19696Encode(data []bool) []bool {
	m := make([]bool, bptcBits)
	pos := 0
	for _, r := range bptcDataRanges {
		for a := r[0]; a <= r[1]; a++ {
			m[a] = data[pos]
			pos++
		}
	}
	for r := 0; r < bptcDataRows; r++ {
		Hamming1511Encode(m[r*bptcCols+1 : r*bptcCols+1+bptcCols])
	}
	var col [13]bool
	for c := 0; c < bptcCols; c++ {
		for a := 0; a < 13; a++ {
			col[a] = m[c+1+a*bptcCols]
		}
		Hamming139Encode(col[:])
		for a := 0; a < 13; a++ {
			m[c+1+a*bptcCols] = col[a]
		}
	}
	out := make([]bool, bptcBits)
	bptcInterleave(m, out, 181, bptcBits)
	return out
}

// BPTC19696Decode deinterleaves and iteratively corrects a 196-bit block,
// returning the 96 info bits and the number of bits repaired.
func BPTC19696Decode(bits []bool) ([]bool, int, error) {
	m := make([]bool, bptcBits)
	bptcDeinterleave(bits, m, 181, bptcBits)

	corrected := 0
	var col [13]bool
	for iter := 0; iter < bptcMaxIter; iter++ {
		fixing := false
		for c := 0; c < bptcCols; c++ {
			for a := 0; a < 13; a++ {
				col[a] = m[c+1+a*bptcCols]
			}
			if n, err := Hamming139Decode(col[:]); err == nil && n > 0 {
				for a := 0; a < 13; a++ {
					m[c+1+a*bptcCols] = col[a]
				}
				corrected += n
				fixing = true
			}
		}
		for r := 0; r < bptcDataRows; r++ {
			row := m[r*bptcCols+1 : r*bptcCols+1+bptcCols]
			if n, err := Hamming1511Decode(row); err == nil && n > 0 {
				corrected += n
				fixing = true
			}
		}
		if !fixing {
			break
		}
	}

	// Final consistency pass: all rows and columns must now check clean.
	for r := 0; r < bptcDataRows; r++ {
		row := m[r*bptcCols+1 : r*bptcCols+1+bptcCols]
		if n, err := Hamming1511Decode(row); err != nil || n != 0 {
			return nil, corrected, ErrUncorrectable
		}
	}

	data := make([]bool, bptcInfo)
	pos := 0
	for _, r := range bptcDataRanges {
		for a := r[0]; a <= r[1]; a++ {
			data[pos] = m[a]
			pos++
		}
	}
	return data, corrected, nil
}

const (
	bptcShortBits = 128
	bptcShortInfo = 77
	bptcShortCols = 16
)

// BPTC12877Encode expands 77 info bits into the interleaved 128-bit block:
// seven Hamming(16,11,4) rows plus a column parity row.
func BPTC12877Encode(data []bool) []bool {
	m := make([]bool, bptcShortBits)
	for r := 0; r < 7; r++ {
		row := m[r*bptcShortCols : (r+1)*bptcShortCols]
		copy(row[:11], data[r*11:(r+1)*11])
		Hamming16114Encode(row)
	}
	for c := 0; c < bptcShortCols; c++ {
		p := false
		for r := 0; r < 7; r++ {
			if m[r*bptcShortCols+c] {
				p = !p
			}
		}
		m[7*bptcShortCols+c] = p
	}
	out := make([]bool, bptcShortBits)
	bptcInterleave(m, out, 101, bptcShortBits)
	return out
}

// BPTC12877Decode corrects a 128-bit block and returns the 77 info bits.
func BPTC12877Decode(bits []bool) ([]bool, int, error) {
	m := make([]bool, bptcShortBits)
	bptcDeinterleave(bits, m, 101, bptcShortBits)

	corrected := 0
	for r := 0; r < 7; r++ {
		row := m[r*bptcShortCols : (r+1)*bptcShortCols]
		n, err := Hamming16114Decode(row)
		if err != nil {
			// Try the column parity row to locate the failing bit: a
			// double error in one row shows as two parity mismatches.
			fixed := false
			for c := 0; c < bptcShortCols && !fixed; c++ {
				p := false
				for rr := 0; rr < 8; rr++ {
					if m[rr*bptcShortCols+c] {
						p = !p
					}
				}
				if p {
					row[c] = !row[c]
					if n2, err2 := Hamming16114Decode(row); err2 == nil {
						corrected += n2 + 1
						fixed = true
					} else {
						row[c] = !row[c]
					}
				}
			}
			if !fixed {
				return nil, corrected, ErrUncorrectable
			}
			continue
		}
		corrected += n
	}

	data := make([]bool, bptcShortInfo)
	for r := 0; r < 7; r++ {
		copy(data[r*11:(r+1)*11], m[r*bptcShortCols:r*bptcShortCols+11])
	}
	return data, corrected, nil
}

// BPTC16x2Encode packs 22 info bits into two interleaved Hamming(16,11,4)
// words (32 bits total).
func BPTC16x2Encode(data []bool) []bool {
	var rows [2][16]bool
	copy(rows[0][:11], data[:11])
	copy(rows[1][:11], data[11:22])
	Hamming16114Encode(rows[0][:])
	Hamming16114Encode(rows[1][:])
	out := make([]bool, 32)
	for i := 0; i < 16; i++ {
		out[2*i] = rows[0][i]
		out[2*i+1] = rows[1][i]
	}
	return out
}

// BPTC16x2Decode corrects two interleaved Hamming(16,11,4) words and
// returns the 22 info bits.
func BPTC16x2Decode(bits []bool) ([]bool, int, error) {
	var rows [2][16]bool
	for i := 0; i < 16; i++ {
		rows[0][i] = bits[2*i]
		rows[1][i] = bits[2*i+1]
	}
	corrected := 0
	for r := range rows {
		n, err := Hamming16114Decode(rows[r][:])
		if err != nil {
			return nil, corrected, ErrUncorrectable
		}
		corrected += n
	}
	data := make([]bool, 22)
	copy(data[:11], rows[0][:11])
	copy(data[11:], rows[1][:11])
	return data, corrected, nil
}
