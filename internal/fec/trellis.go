package fec

// Rate 1/2 and 3/4 trellis codes as used by the P25 and DMR data frames.
// The encoder is a finite state machine whose state is the previous input
// symbol; each step emits one 4-bit word (two dibits). The decoder is a
// soft-decision Viterbi search that takes per-dibit reliability as branch
// metric weights.

// State transition tables: trellisNext[state][input] is the emitted word.
var trellis12Next = [4][4]byte{
	{0x0, 0xF, 0xC, 0x3},
	{0x4, 0xB, 0x8, 0x7},
	{0xD, 0x2, 0x1, 0xE},
	{0x9, 0x6, 0x5, 0xA},
}

var trellis34Next = [8][8]byte{
	{0x2, 0xC, 0x1, 0xF, 0x8, 0x6, 0xB, 0x5},
	{0xE, 0x0, 0xD, 0x3, 0x4, 0xA, 0x7, 0x9},
	{0xF, 0x1, 0xC, 0x2, 0x5, 0xB, 0x6, 0x8},
	{0x3, 0xD, 0x0, 0xE, 0x9, 0x7, 0xA, 0x4},
	{0x5, 0xB, 0x6, 0x8, 0xF, 0x1, 0xC, 0x2},
	{0x9, 0x7, 0xA, 0x4, 0x3, 0xD, 0x0, 0xE},
	{0x6, 0x8, 0x5, 0xB, 0xC, 0x2, 0xF, 0x1},
	{0xA, 0x4, 0x9, 0x7, 0x0, 0xE, 0x3, 0xD},
}

// Trellis12Encode encodes a dibit stream at rate 1/2. A flush dibit of 0 is
// appended so the decoder can terminate. The output is an interleaved dibit
// stream twice as long (plus the flush word).
func Trellis12Encode(dibits []byte) []byte {
	out := make([]byte, 0, 2*(len(dibits)+1))
	state := byte(0)
	emit := func(in byte) {
		w := trellis12Next[state][in&3]
		out = append(out, w>>2, w&3)
		state = in & 3
	}
	for _, d := range dibits {
		emit(d)
	}
	emit(0)
	return interleaveDibits(out)
}

// Trellis34Encode encodes a tribit stream at rate 3/4, appending a flush
// tribit of 0. The output is an interleaved dibit stream.
func Trellis34Encode(tribits []byte) []byte {
	out := make([]byte, 0, 2*(len(tribits)+1))
	state := byte(0)
	emit := func(in byte) {
		w := trellis34Next[state][in&7]
		out = append(out, w>>2, w&3)
		state = in & 7
	}
	for _, t := range tribits {
		emit(t)
	}
	emit(0)
	return interleaveDibits(out)
}

// The trellis has remerge windows of four consecutive emitted dibits, so an
// on-air burst that stays inside one window can mimic a competing path.
// Interleaving spreads neighboring transmitted dibits across distant steps;
// the stride is the smallest value >= 7 coprime to the block length.
func trellisStride(n int) int {
	s := 7
	for gcd(s, n) != 1 {
		s++
	}
	return s
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func interleaveDibits(seq []byte) []byte {
	n := len(seq)
	if n < 2 {
		return seq
	}
	s := trellisStride(n)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = seq[i*s%n]
	}
	return out
}

func deinterleaveDibits(rx []byte) []byte {
	n := len(rx)
	if n < 2 {
		return rx
	}
	s := trellisStride(n)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i*s%n] = rx[i]
	}
	return out
}

// dibitCost scores an observed dibit against an expected one: a symbol
// mismatch costs the observation's reliability, so an unreliable dibit
// costs little to contradict. Symbol distance rather than bit distance
// keeps a two-bit dibit hit from tying with a competing path.
func dibitCost(obs, exp, rel byte) int {
	if (obs^exp)&3 == 0 {
		return 0
	}
	w := int(rel)
	if w == 0 {
		w = 1
	}
	return w
}

func trellisDecode(dibits, rel []byte, numStates int, next func(state, in int) byte) ([]byte, error) {
	steps := len(dibits) / 2
	if steps < 2 {
		return nil, ErrUncorrectable
	}

	const inf = 1 << 30
	cost := make([]int, numStates)
	nextCost := make([]int, numStates)
	for i := 1; i < numStates; i++ {
		cost[i] = inf
	}
	// history[step][state] = input symbol chosen to arrive at state
	history := make([][]int8, steps)

	for s := 0; s < steps; s++ {
		o1, o2 := dibits[2*s], dibits[2*s+1]
		var r1, r2 byte = 255, 255
		if rel != nil {
			r1, r2 = rel[2*s], rel[2*s+1]
		}
		history[s] = make([]int8, numStates)
		for i := range nextCost {
			nextCost[i] = inf
			history[s][i] = -1
		}
		for st := 0; st < numStates; st++ {
			if cost[st] >= inf {
				continue
			}
			for in := 0; in < numStates; in++ {
				w := next(st, in)
				c := cost[st] + dibitCost(o1, w>>2, r1) + dibitCost(o2, w&3, r2)
				if c < nextCost[in] {
					nextCost[in] = c
					history[s][in] = int8(st)
				}
			}
		}
		cost, nextCost = nextCost, cost
	}

	// The encoder flushed with input 0, so the terminal state is 0.
	end := 0
	if history[steps-1][end] < 0 {
		return nil, ErrUncorrectable
	}

	// Trace back. The input that produced the transition into state X at
	// step s is X itself (the FSM state is the previous input).
	symbols := make([]byte, steps)
	st := end
	for s := steps - 1; s >= 0; s-- {
		symbols[s] = byte(st)
		prev := history[s][st]
		if prev < 0 {
			return nil, ErrUncorrectable
		}
		st = int(prev)
	}
	// Drop the flush symbol.
	return symbols[:steps-1], nil
}

// Trellis12Decode recovers the dibit stream from a rate 1/2 encoded block.
// rel may be nil for hard decisions.
func Trellis12Decode(dibits, rel []byte) ([]byte, error) {
	seq := deinterleaveDibits(dibits)
	if rel != nil {
		rel = deinterleaveDibits(rel)
	}
	return trellisDecode(seq, rel, 4, func(st, in int) byte {
		return trellis12Next[st][in]
	})
}

// Trellis34Decode recovers the tribit stream from a rate 3/4 encoded block.
func Trellis34Decode(dibits, rel []byte) ([]byte, error) {
	seq := deinterleaveDibits(dibits)
	if rel != nil {
		rel = deinterleaveDibits(rel)
	}
	return trellisDecode(seq, rel, 8, func(st, in int) byte {
		return trellis34Next[st][in]
	})
}
