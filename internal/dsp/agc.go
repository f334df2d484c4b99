package dsp

import "math"

// AGC is a feedback automatic gain control that normalizes complex magnitude
// toward a reference level. The gain moves a fixed fraction of the level
// error per sample, so step changes in input power settle within a few
// hundred samples without overshooting on noise.
type AGC struct {
	gain      float32
	rate      float32
	reference float32
	maxGain   float32
}

// NewAGC returns an AGC with the given adaptation rate and target magnitude.
func NewAGC(rate, reference float32) *AGC {
	return &AGC{gain: 1, rate: rate, reference: reference, maxGain: 1e5}
}

// Work scales buf in place and adapts the gain.
func (a *AGC) Work(buf []complex64) {
	for i, s := range buf {
		out := complex(real(s)*a.gain, imag(s)*a.gain)
		buf[i] = out
		mag := float32(math.Hypot(float64(real(out)), float64(imag(out))))
		a.gain += a.rate * (a.reference - mag)
		a.gain = clampNaN(a.gain)
		if a.gain > a.maxGain {
			a.gain = a.maxGain
		}
		if a.gain < 0 {
			a.gain = 0
		}
	}
}

// Reset restores unity gain.
func (a *AGC) Reset() { a.gain = 1 }

// Gain reports the current gain, for diagnostics.
func (a *AGC) Gain() float32 { return a.gain }
