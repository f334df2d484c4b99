package dsp

import (
	"math"
	"math/cmplx"

	segdsp "github.com/racerxdl/segdsp/dsp"
)

// FLL is a band-edge frequency-locked loop. Two filters, an RRC prototype
// shifted to the upper and lower band edges, measure the spectral tilt of the
// pulse shape; the power difference drives a second-order PI loop whose NCO
// derotates the stream.
//
// The filters depend on the symbol rate, so they are redesigned whenever SPS
// changes. The frequency estimate is the receiver's LO offset and is
// independent of symbol rate, so it survives both same-SPS retunes and SPS
// changes unless the caller explicitly clears it.
type FLL struct {
	sps     int
	rolloff float64

	upper []complex64
	lower []complex64
	hist  []complex64

	phase float32
	freq  float32
	alpha float32
	beta  float32
}

// fllBWDivisor sets the loop bandwidth to 2*pi/sps/350.
const fllBWDivisor = 350

// NewFLL builds the loop for the given samples-per-symbol and filter rolloff.
func NewFLL(sps int, rolloff float64) *FLL {
	f := &FLL{rolloff: rolloff}
	f.Redesign(sps)
	return f
}

// Redesign rebuilds the band-edge filters and loop gains for a new SPS. The
// frequency estimate is kept; phase restarts at zero.
func (f *FLL) Redesign(sps int) {
	f.sps = sps
	ntaps := (7 * sps) | 1
	proto := segdsp.MakeRRC(1.0, float64(sps), 1.0, f.rolloff, ntaps)

	// Shift the prototype to +/-(1+rolloff)/(2*sps) cycles per sample.
	edge := (1 + f.rolloff) / (2 * float64(sps))
	f.upper = make([]complex64, ntaps)
	f.lower = make([]complex64, ntaps)
	for k, tap := range proto {
		arg := 2 * math.Pi * edge * float64(k)
		rot := cmplx.Rect(float64(tap), arg)
		f.upper[k] = complex64(rot)
		f.lower[k] = complex64(cmplx.Conj(rot))
	}
	f.hist = make([]complex64, ntaps)

	loopBW := 2 * math.Pi / float64(sps) / fllBWDivisor
	f.alpha, f.beta = loopGains(loopBW, math.Sqrt2/2)
	f.phase = 0
}

// Reset zeroes the loop, dropping the frequency estimate as well. Used only
// when the caller knows the LO moved (a wide retune).
func (f *FLL) Reset() {
	f.phase = 0
	f.freq = 0
	for i := range f.hist {
		f.hist[i] = 0
	}
}

// Frequency reports the tracked offset in radians per sample.
func (f *FLL) Frequency() float32 { return f.freq }

// SetFrequency seeds the tracked offset, used to carry state across a
// front-end rebuild.
func (f *FLL) SetFrequency(v float32) { f.freq = clampNaN(v) }

// Work derotates buf in place and advances the loop once per sample.
func (f *FLL) Work(buf []complex64) {
	n := len(f.hist)
	for i, s := range buf {
		s = clampNaNC(s)

		// NCO derotation first so the band-edge filters see the corrected
		// spectrum.
		rot := cmplx.Rect(1, -float64(f.phase))
		out := s * complex64(rot)
		buf[i] = out

		copy(f.hist, f.hist[1:])
		f.hist[n-1] = out

		var up, lo complex64
		for k := 0; k < n; k++ {
			up += f.hist[k] * f.upper[k]
			lo += f.hist[k] * f.lower[k]
		}
		e := clampNaN(real(up)*real(up) + imag(up)*imag(up) -
			real(lo)*real(lo) - imag(lo)*imag(lo))

		f.freq += f.beta * e
		f.freq = clipF(f.freq, float32(math.Pi/2))
		f.phase += f.freq + f.alpha*e
		for f.phase > math.Pi {
			f.phase -= 2 * math.Pi
		}
		for f.phase < -math.Pi {
			f.phase += 2 * math.Pi
		}
	}
}
