package dsp

import (
	"math"
	"math/cmplx"
)

// Costas is an order-4 carrier recovery loop running at symbol rate on the
// differential phasor stream. The phase detector is the hard-decision QPSK
// form sign(Re)*Im - sign(Im)*Re.
//
// The phase accumulator is clamped to +/- pi/2 rather than wrapped: the
// differential constellation is 4-fold symmetric, so a larger correction is
// always better expressed by the frequency term, and wrapping would let a
// noise burst flip the lock point.
type Costas struct {
	phase float32
	freq  float32
	alpha float32
	beta  float32
}

const (
	costasLoopBW   = 0.008
	costasPhaseMax = math.Pi / 2
	costasFreqMax  = 1.0
)

// NewCostas builds the loop with its fixed bandwidth.
func NewCostas() *Costas {
	c := &Costas{}
	c.alpha, c.beta = loopGains(costasLoopBW, math.Sqrt2/2)
	return c
}

// Reset zeroes phase and frequency, as required on every retune.
func (c *Costas) Reset() {
	c.phase = 0
	c.freq = 0
}

// Frequency reports the residual carrier estimate in radians per symbol.
func (c *Costas) Frequency() float32 { return c.freq }

// PhaseError evaluates the order-4 detector on a corrected symbol.
func phaseError(y complex64) float32 {
	var e float32
	if real(y) >= 0 {
		e = imag(y)
	} else {
		e = -imag(y)
	}
	if imag(y) >= 0 {
		e -= real(y)
	} else {
		e += real(y)
	}
	return clampNaN(e)
}

// Step derotates one symbol and advances the loop.
func (c *Costas) Step(y complex64) complex64 {
	out := y * complex64(cmplx.Rect(1, -float64(c.phase)))
	e := phaseError(out)

	c.freq += c.beta * e
	c.freq = clipF(c.freq, costasFreqMax)
	c.phase += c.freq + c.alpha*e
	c.phase = clipF(c.phase, costasPhaseMax)
	return out
}
