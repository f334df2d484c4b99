package dsp

import "math"

// Gardner recovers symbol timing from the complex stream. It runs at sample
// rate, interpolating one output at each symbol instant plus one at the
// half-symbol point; the classic Gardner error (last - current) * mid steers
// both the fractional delay mu and the symbol period omega.
//
// Timing is pure: this stage never rotates the carrier. Carrier recovery
// happens afterwards in the Costas loop.
type Gardner struct {
	omega    float32
	omegaMid float32
	omegaRel float32
	gainMu   float32
	gainOmg  float32
	mu       float32

	// Delay line of recent samples, newest at wr-1, sized for the largest
	// supported SPS plus the interpolator span.
	delay [64]complex64
	wr    int
	fill  int
	count float32

	last complex64

	lock lockDetector
	out  []complex64
}

const (
	gardnerOmegaRel = 0.002
	gardnerGainMu   = 0.025
)

// NewGardner builds the loop for the given samples per symbol.
func NewGardner(sps int) *Gardner {
	g := &Gardner{
		omegaRel: gardnerOmegaRel,
		gainMu:   gardnerGainMu,
		gainOmg:  0.1 * gardnerGainMu * gardnerGainMu,
	}
	g.SetOmega(float32(sps))
	return g
}

// SetOmega recenters the symbol period. Called on SPS change.
func (g *Gardner) SetOmega(omega float32) {
	g.omega = omega
	g.omegaMid = omega
	g.Reset()
}

// Reset zeroes the timing phase but keeps the period estimate.
func (g *Gardner) Reset() {
	g.mu = 0.5
	g.count = 0
	g.last = 0
	g.wr = 0
	g.fill = 0
	g.delay = [64]complex64{}
	g.lock.reset()
	g.out = g.out[:0]
}

// Omega reports the tracked symbol period in samples.
func (g *Gardner) Omega() float32 { return g.omega }

// Locked reports whether the lock metric indicates stable timing.
func (g *Gardner) Locked() bool { return g.lock.locked() }

// Quality reports the lock metric in [0,1].
func (g *Gardner) Quality() float32 { return g.lock.quality() }

// at interpolates the stream value back samples plus mu behind the newest
// sample, using the 8-tap polyphase bank.
func (g *Gardner) at(back int, mu float32) complex64 {
	var hist [interpTaps]complex64
	// hist is oldest-first; the interpolation point sits mu past hist[3].
	for t := 0; t < interpTaps; t++ {
		idx := g.wr - 1 - back - (interpTaps - 2 - t) + len(g.delay)*2
		hist[t] = g.delay[idx%len(g.delay)]
	}
	// The bank evaluates mu past the center tap, so a fractional offset of
	// mu behind the reference means interpolating at 1-mu within the window.
	return interpolate(&hist, 1-mu)
}

// Work consumes buf and returns the symbols produced, one per omega input
// samples. The returned slice is valid until the next call.
func (g *Gardner) Work(buf []complex64) []complex64 {
	g.out = g.out[:0]

	for _, s := range buf {
		g.delay[g.wr] = clampNaNC(s)
		g.wr = (g.wr + 1) % len(g.delay)
		if g.fill < len(g.delay) {
			g.fill++
		}
		g.count++
		warmup := interpTaps + int(g.omega/2) + 2
		if g.count < g.omega || g.fill < warmup {
			continue
		}
		g.count -= g.omega

		// Current symbol at mu behind the newest sample; mid point a half
		// symbol earlier.
		cur := g.at(0, g.mu)
		half := g.omega / 2
		hInt := int(half)
		hFrac := half - float32(hInt)
		midMu := g.mu + hFrac
		midBack := hInt
		if midMu >= 1 {
			midMu--
			midBack++
		}
		mid := g.at(midBack, midMu)

		diff := g.last - cur
		e := clampNaN(real(diff)*real(mid) + imag(diff)*imag(mid))
		e = clipF(e, 1)

		mag := float32(math.Hypot(float64(real(cur)), float64(imag(cur))))
		g.omega = g.omegaMid + clipF(g.omega+g.gainOmg*e*mag-g.omegaMid, g.omegaMid*g.omegaRel)
		g.mu += g.gainMu * e
		for g.mu >= 1 {
			g.mu--
			g.count++
		}
		for g.mu < 0 {
			g.mu++
			g.count--
		}

		g.lock.update(cur)
		g.last = cur
		g.out = append(g.out, cur)
	}
	return g.out
}

// lockDetector accumulates the Yair-Linn metric: for a locked QPSK
// constellation the per-symbol statistic |I|*|Q|/(I^2+Q^2) settles near its
// ideal 0.5, so its EMA is a cheap lock indicator.
type lockDetector struct {
	ema   float32
	ready bool
}

const lockAlpha = 0.01

func (l *lockDetector) reset() { l.ema = 0; l.ready = false }

func (l *lockDetector) update(y complex64) {
	re := float32(math.Abs(float64(real(y))))
	im := float32(math.Abs(float64(imag(y))))
	p := re*re + im*im
	if p < 1e-12 {
		return
	}
	v := re * im / p
	if !l.ready {
		l.ema = v
		l.ready = true
		return
	}
	l.ema += lockAlpha * (v - l.ema)
}

// quality maps the metric so 1 means ideal lock.
func (l *lockDetector) quality() float32 {
	q := 2 * l.ema
	if q > 1 {
		q = 1
	}
	if q < 0 {
		q = 0
	}
	return q
}

func (l *lockDetector) locked() bool { return l.ready && l.quality() > 0.75 }
