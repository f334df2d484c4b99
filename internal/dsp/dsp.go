// Package dsp implements the demodulator front end: AGC, band-edge FLL,
// Gardner timing recovery, Costas carrier recovery and the four-level slicer.
// The front end turns a baseband sample stream into soft symbols, hard dibits
// and per-dibit reliability bytes at the protocol symbol rate.
//
// Two chains are supported. The CQPSK chain runs on complex baseband in the
// order AGC, FLL, timing, differential phasor, Costas, slicer. The C4FM chain
// runs on an FM-discriminated real stream with a min/max threshold tracker.
package dsp

import (
	"errors"
	"math"
)

// Chain selects the demodulation path.
type Chain int

const (
	// ChainC4FM demodulates four-level FM from a discriminated real stream.
	ChainC4FM Chain = iota
	// ChainCQPSK demodulates pi/4-DQPSK from complex baseband.
	ChainCQPSK
)

func (c Chain) String() string {
	switch c {
	case ChainC4FM:
		return "C4FM"
	case ChainCQPSK:
		return "CQPSK"
	}
	return "unknown"
}

// ProtocolHint selects the matched filter applied after sync lock.
type ProtocolHint int

const (
	HintNone ProtocolHint = iota
	HintP25p1
	HintP25p2
	HintDMR
	HintNXDN48
	HintNXDN96
	HintDPMR
	HintM17
)

// ErrInvalidSPS is returned by Configure when samples-per-symbol is below the
// minimum the timing loop can track.
var ErrInvalidSPS = errors.New("dsp: samples per symbol out of range")

// ErrStarved is returned by PopSymbol when no symbol is ready.
var ErrStarved = errors.New("dsp: no symbol available")

// Symbol is one demodulated output: the soft value on the {-3,-1,+1,+3}
// scale, the sliced dibit and its confidence.
type Symbol struct {
	Soft        float32
	Dibit       byte
	Reliability byte
}

// clampNaN zeroes non-finite loop inputs so a single bad sample cannot
// poison a tracking loop.
func clampNaN(v float32) float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0
	}
	return v
}

func clampNaNC(v complex64) complex64 {
	return complex(clampNaN(real(v)), clampNaN(imag(v)))
}

func clipF(v, limit float32) float32 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// loopGains derives the PI coefficients for a second-order loop with the
// given normalized bandwidth and damping factor.
func loopGains(loopBW, zeta float64) (alpha, beta float32) {
	denom := 1 + 2*zeta*loopBW + loopBW*loopBW
	alpha = float32(4 * zeta * loopBW / denom)
	beta = float32(4 * loopBW * loopBW / denom)
	return alpha, beta
}
