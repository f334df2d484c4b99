package fec

import (
	"math/rand"
	"testing"
)

type golayVariant struct {
	name   string
	n, k   int
	encode func(uint32) uint32
	decode func(uint32) (uint32, int, error)
}

var golayVariants = []golayVariant{
	{"Golay(23,12)", 23, 12, Golay2312Encode, Golay2312Decode},
	{"Golay(24,12)", 24, 12, Golay2412Encode, Golay2412Decode},
	{"Golay(20,8)", 20, 8, Golay208Encode, Golay208Decode},
}

func TestGolayRoundTripAllMessages(t *testing.T) {
	for _, gv := range golayVariants {
		t.Run(gv.name, func(t *testing.T) {
			for m := uint32(0); m < 1<<uint(gv.k); m++ {
				cw := gv.encode(m)
				got, n, err := gv.decode(cw)
				if err != nil {
					t.Fatalf("message %#x: %v", m, err)
				}
				if n != 0 || got != m {
					t.Fatalf("message %#x: decoded %#x with %d corrections", m, got, n)
				}
			}
		})
	}
}

func TestGolayCorrectsUpToThreeErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	for _, gv := range golayVariants {
		t.Run(gv.name, func(t *testing.T) {
			for trial := 0; trial < 500; trial++ {
				msg := rng.Uint32() & (1<<uint(gv.k) - 1)
				cw := gv.encode(msg)

				nerr := 1 + rng.Intn(3)
				pat := uint32(0)
				for popcount32(pat) < nerr {
					pat |= 1 << uint(rng.Intn(gv.n))
				}

				got, n, err := gv.decode(cw ^ pat)
				if err != nil {
					t.Fatalf("msg %#x pattern %#x: %v", msg, pat, err)
				}
				if got != msg {
					t.Fatalf("msg %#x pattern %#x: decoded %#x", msg, pat, got)
				}
				if n != popcount32(pat) {
					t.Errorf("msg %#x pattern %#x: reported %d corrections", msg, pat, n)
				}
			}
		})
	}
}

func TestGolayMinimumDistance(t *testing.T) {
	// Distinct codewords of the (23,12) code differ in at least 7 bits.
	base := Golay2312Encode(0x555)
	for m := uint32(0); m < 1<<12; m++ {
		if m == 0x555 {
			continue
		}
		if d := popcount32(base ^ Golay2312Encode(m)); d < 7 {
			t.Fatalf("codewords for %#x and 0x555 differ in only %d bits", m, d)
		}
	}
}

func TestQR1676RoundTripAllMessages(t *testing.T) {
	for m := uint32(0); m < 1<<7; m++ {
		cw := QR1676Encode(m)
		got, n, err := QR1676Decode(cw)
		if err != nil {
			t.Fatalf("message %#x: %v", m, err)
		}
		if n != 0 || got != m {
			t.Fatalf("message %#x: decoded %#x with %d corrections", m, got, n)
		}
	}
}

func TestQR1676CorrectsDoubleErrors(t *testing.T) {
	for m := uint32(0); m < 1<<7; m++ {
		cw := QR1676Encode(m)
		for a := 0; a < 16; a++ {
			for b := a; b < 16; b++ {
				pat := uint32(1<<uint(a) | 1<<uint(b))
				got, n, err := QR1676Decode(cw ^ pat)
				if err != nil {
					t.Fatalf("msg %#x pattern %#x: %v", m, pat, err)
				}
				if got != m {
					t.Fatalf("msg %#x pattern %#x: decoded %#x", m, pat, got)
				}
				if n != popcount32(pat) {
					t.Errorf("msg %#x pattern %#x: reported %d corrections", m, pat, n)
				}
			}
		}
	}
}
