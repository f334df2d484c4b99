package fec

import (
	"bytes"
	"math/rand"
	"testing"

	"pgregory.net/rapid"
)

var rsVariants = []struct {
	name string
	code *RSCode
}{
	{"RS(12,9)", RS129},
	{"RS(24,16)", RS2416},
	{"RS(63,35)", RS6335},
}

func randSymbols(rng *rand.Rand, n int) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = byte(rng.Intn(64))
	}
	return s
}

func TestRSPackageCodesHaveRealGenerators(t *testing.T) {
	// The package-level codes must be built from populated GF(64) tables:
	// a degenerate generator emits all-zero parity for nonzero data.
	for _, rv := range rsVariants {
		t.Run(rv.name, func(t *testing.T) {
			data := make([]byte, rv.code.K)
			data[0] = 1
			cw := rv.code.Encode(data)
			par := cw[rv.code.K:]
			nonzero := false
			for _, p := range par {
				if p != 0 {
					nonzero = true
				}
			}
			if !nonzero {
				t.Fatalf("parity %v is all zero", par)
			}
			if _, err := rv.code.Decode(cw); err != nil {
				t.Fatalf("clean codeword rejected: %v", err)
			}
		})
	}
}

func TestRSCleanDecode(t *testing.T) {
	rng := rand.New(rand.NewSource(63))
	for _, rv := range rsVariants {
		t.Run(rv.name, func(t *testing.T) {
			data := randSymbols(rng, rv.code.K)
			cw := rv.code.Encode(data)
			if !bytes.Equal(cw[:rv.code.K], data) {
				t.Fatal("encoder is not systematic")
			}
			n, err := rv.code.Decode(cw)
			if err != nil {
				t.Fatalf("decode of clean codeword: %v", err)
			}
			if n != 0 {
				t.Fatalf("clean codeword reported %d corrections", n)
			}
		})
	}
}

func TestRSCorrectsToHalfDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(64))
	for _, rv := range rsVariants {
		tmax := (rv.code.N - rv.code.K) / 2
		t.Run(rv.name, func(t *testing.T) {
			for trial := 0; trial < 200; trial++ {
				data := randSymbols(rng, rv.code.K)
				cw := rv.code.Encode(data)

				nerr := 1 + rng.Intn(tmax)
				pos := rng.Perm(rv.code.N)[:nerr]
				rx := make([]byte, len(cw))
				copy(rx, cw)
				for _, p := range pos {
					rx[p] ^= byte(1 + rng.Intn(63))
				}

				n, err := rv.code.Decode(rx)
				if err != nil {
					t.Fatalf("trial %d: %d errors not corrected: %v", trial, nerr, err)
				}
				if n != nerr {
					t.Errorf("trial %d: reported %d corrections, want %d", trial, n, nerr)
				}
				if !bytes.Equal(rx, cw) {
					t.Fatalf("trial %d: codeword not restored", trial)
				}
			}
		})
	}
}

func TestRSRejectsBeyondHalfDistance(t *testing.T) {
	// Beyond t errors the decoder must either fail or miscorrect to another
	// codeword; it must never report success with a non-codeword result.
	rng := rand.New(rand.NewSource(65))
	code := RS129
	for trial := 0; trial < 200; trial++ {
		data := randSymbols(rng, code.K)
		cw := code.Encode(data)

		rx := make([]byte, len(cw))
		copy(rx, cw)
		for _, p := range rng.Perm(code.N)[:3] {
			rx[p] ^= byte(1 + rng.Intn(63))
		}

		if _, err := code.Decode(rx); err == nil {
			reenc := code.Encode(rx[:code.K])
			if !bytes.Equal(reenc, rx) {
				t.Fatalf("trial %d: decoder accepted a non-codeword", trial)
			}
		}
	}
}

func TestRSPropertyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := rsVariants[rapid.IntRange(0, len(rsVariants)-1).Draw(t, "variant")].code
		data := rapid.SliceOfN(rapid.ByteRange(0, 63), code.K, code.K).Draw(t, "data")
		cw := code.Encode(data)

		tmax := (code.N - code.K) / 2
		nerr := rapid.IntRange(0, tmax).Draw(t, "nerr")
		positions := rapid.SliceOfNDistinct(rapid.IntRange(0, code.N-1), nerr, nerr, rapid.ID[int]).Draw(t, "pos")
		rx := make([]byte, len(cw))
		copy(rx, cw)
		for _, p := range positions {
			rx[p] ^= byte(rapid.IntRange(1, 63).Draw(t, "flip"))
		}

		if _, err := code.Decode(rx); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(rx[:code.K], data) {
			t.Fatal("data not recovered")
		}
	})
}
