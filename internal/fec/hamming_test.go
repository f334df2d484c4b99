package fec

import (
	"testing"

	"pgregory.net/rapid"
)

type hammingVariant struct {
	name   string
	n, k   int
	encode func([]bool)
	decode func([]bool) (int, error)
}

var hammingVariants = []hammingVariant{
	{"Hamming(7,4)", 7, 4, Hamming74Encode, Hamming74Decode},
	{"Hamming(12,8)", 12, 8, Hamming128Encode, Hamming128Decode},
	{"Hamming(13,9)", 13, 9, Hamming139Encode, Hamming139Decode},
	{"Hamming(15,11)", 15, 11, Hamming1511Encode, Hamming1511Decode},
	{"Hamming(16,11,4)", 16, 11, Hamming16114Encode, Hamming16114Decode},
}

func TestHammingRoundTripAllMessages(t *testing.T) {
	for _, hv := range hammingVariants {
		t.Run(hv.name, func(t *testing.T) {
			for m := uint32(0); m < 1<<uint(hv.k); m++ {
				d := make([]bool, hv.n)
				UintToBits(m, d[:hv.k], hv.k)
				hv.encode(d)

				n, err := hv.decode(d)
				if err != nil {
					t.Fatalf("message %#x: decode of clean codeword: %v", m, err)
				}
				if n != 0 {
					t.Fatalf("message %#x: clean codeword reported %d corrections", m, n)
				}
				if got := BitsToUint(d[:hv.k]); got != m {
					t.Fatalf("message %#x: decoded %#x", m, got)
				}
			}
		})
	}
}

func TestHammingSingleErrorCorrection(t *testing.T) {
	for _, hv := range hammingVariants {
		t.Run(hv.name, func(t *testing.T) {
			const msg = uint32(0x2A5)
			for pos := 0; pos < hv.n; pos++ {
				d := make([]bool, hv.n)
				UintToBits(msg&(1<<uint(hv.k)-1), d[:hv.k], hv.k)
				hv.encode(d)
				d[pos] = !d[pos]

				n, err := hv.decode(d)
				if err != nil {
					t.Fatalf("error at bit %d not corrected: %v", pos, err)
				}
				if n != 1 {
					t.Errorf("error at bit %d: corrected %d bits, want 1", pos, n)
				}
				if got := BitsToUint(d[:hv.k]); got != msg&(1<<uint(hv.k)-1) {
					t.Errorf("error at bit %d: decoded %#x", pos, got)
				}
			}
		})
	}
}

func TestHamming16114DetectsDoubleErrors(t *testing.T) {
	d := make([]bool, 16)
	UintToBits(0x5B3, d[:11], 11)
	Hamming16114Encode(d)

	d[2] = !d[2]
	d[9] = !d[9]
	if _, err := Hamming16114Decode(d); err == nil {
		t.Error("double error not detected")
	}
}

func TestHammingPropertyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hv := hammingVariants[rapid.IntRange(0, len(hammingVariants)-1).Draw(t, "variant")]
		msg := rapid.Uint32Range(0, 1<<uint(hv.k)-1).Draw(t, "msg")

		d := make([]bool, hv.n)
		UintToBits(msg, d[:hv.k], hv.k)
		hv.encode(d)

		if pos := rapid.IntRange(-1, hv.n-1).Draw(t, "flip"); pos >= 0 {
			d[pos] = !d[pos]
		}

		if _, err := hv.decode(d); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got := BitsToUint(d[:hv.k]); got != msg {
			t.Fatalf("decoded %#x, want %#x", got, msg)
		}
	})
}
