package dsp

import "math"

// Fractional-delay interpolator: a bank of 8-tap windowed-sinc filters, one
// per 1/128 step of delay. The timing loop picks the phase nearest its
// fractional offset mu each symbol.
const (
	interpTaps  = 8
	interpSteps = 128
)

var interpBank [interpSteps + 1][interpTaps]float32

func init() {
	center := float64(interpTaps)/2 - 1 // delay measured from tap 3
	for s := 0; s <= interpSteps; s++ {
		mu := float64(s) / interpSteps
		var sum float64
		for t := 0; t < interpTaps; t++ {
			x := float64(t) - center - mu
			v := sinc(x) * hammingWindow(float64(t)+mu, interpTaps)
			interpBank[s][t] = float32(v)
			sum += v
		}
		// Unity DC gain per phase.
		for t := 0; t < interpTaps; t++ {
			interpBank[s][t] = float32(float64(interpBank[s][t]) / sum)
		}
	}
}

func sinc(x float64) float64 {
	if math.Abs(x) < 1e-9 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

func hammingWindow(pos float64, n int) float64 {
	return 0.54 - 0.46*math.Cos(2*math.Pi*pos/float64(n-1))
}

// interpolate evaluates the input at offset mu in [0,1) past hist[3], where
// hist holds the last 8 samples oldest-first.
func interpolate(hist *[interpTaps]complex64, mu float32) complex64 {
	if mu < 0 {
		mu = 0
	}
	if mu > 1 {
		mu = 1
	}
	phase := int(mu*interpSteps + 0.5)
	taps := &interpBank[phase]
	var acc complex64
	for t := 0; t < interpTaps; t++ {
		acc += hist[t] * complex(taps[t], 0)
	}
	return acc
}
