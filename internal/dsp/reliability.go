package dsp

import "math"

// Per-dibit reliability. The raw score is the piecewise-linear distance from
// the nearest decision boundary on the soft-symbol scale: 0 at a boundary,
// 255 at the ideal level. The score is then scaled by an SNR-derived weight.
//
// The mapping from the measured power ratio to displayed SNR carries a
// path-dependent bias, so the estimate is an injected function rather than a
// hardcoded formula; callers without an estimate leave it nil and get full
// scale.

// SNREstimate supplies the current estimated SNR in dB.
type SNREstimate func() float64

// snrScale maps SNR in dB to a reliability weight: 80% at or below -13 dB,
// 100% at or above +12 dB, linear between.
func snrScale(snrDB float64) float32 {
	const (
		loDB, loScale = -13.0, 0.80
		hiDB, hiScale = 12.0, 1.00
	)
	switch {
	case snrDB <= loDB:
		return loScale
	case snrDB >= hiDB:
		return hiScale
	default:
		return float32(loScale + (hiScale-loScale)*(snrDB-loDB)/(hiDB-loDB))
	}
}

func applySNR(raw float32, snr SNREstimate) byte {
	if snr != nil {
		raw *= snrScale(snr())
	}
	if raw < 0 {
		raw = 0
	}
	if raw > 255 {
		raw = 255
	}
	return byte(raw)
}

// c4fmReliability scores a soft symbol on the {-3,-1,+1,+3} scale. Decision
// boundaries sit at 0 and +/-2; ideal levels at +/-1 and +/-3. Inside the
// outer regions the score saturates beyond the ideal level, matching the
// intuition that an over-deviated symbol is still a confident decision.
func c4fmReliability(soft float32, snr SNREstimate) byte {
	a := float32(math.Abs(float64(soft)))
	var raw float32
	switch {
	case a <= 1:
		// Inner region: boundary at 0, ideal at 1.
		raw = 255 * a
	case a <= 2:
		// Between ideal +/-1 and the +/-2 boundary.
		raw = 255 * (2 - a)
	case a <= 3:
		// Outer region: boundary at 2, ideal at 3.
		raw = 255 * (a - 2)
	default:
		raw = 255
	}
	return applySNR(raw, snr)
}

// cqpskReliability scores a differential phasor by its angle distance from
// the nearest ideal pi/4-DQPSK transition. sym is the angle normalized to the
// {-3,-1,+1,+3} scale (ideal levels +/-1, +/-3).
func cqpskReliability(soft float32, snr SNREstimate) byte {
	ideal := nearestLevel(soft)
	d := float32(math.Abs(float64(soft - ideal)))
	if d > 1 {
		d = 1
	}
	return applySNR((1-d)*255, snr)
}

func nearestLevel(soft float32) float32 {
	levels := [4]float32{-3, -1, 1, 3}
	best := levels[0]
	bd := float32(math.Abs(float64(soft - best)))
	for _, l := range levels[1:] {
		d := float32(math.Abs(float64(soft - l)))
		if d < bd {
			bd = d
			best = l
		}
	}
	return best
}
