package dsp

import (
	"math"

	segdsp "github.com/racerxdl/segdsp/dsp"
	"github.com/rs/zerolog"
)

// FrontEnd is the full demodulator: it ingests baseband blocks and queues
// demodulated symbols for the frame layer. All processing happens inside
// Push on the caller's goroutine; PopSymbol drains the queue.
type FrontEnd struct {
	chain Chain
	sps   int
	hint  ProtocolHint

	agc    *AGC
	fll    *FLL
	timing *Gardner
	costas *Costas
	slicer *C4FMSlicer

	matched     *segdsp.FloatFirFilter
	matchedGate bool
	locked      bool

	prevPhasor complex64
	phasorInit bool
	prevQuad   complex64
	symPhase   int

	snr  SNREstimate
	hunt spsHunt

	queue []Symbol
	head  int

	log zerolog.Logger
}

// rrcRolloff is the matched-filter excess bandwidth shared by the supported
// protocols.
const rrcRolloff = 0.2

// NewFrontEnd builds an unconfigured front end. snr may be nil.
func NewFrontEnd(log zerolog.Logger, snr SNREstimate) *FrontEnd {
	return &FrontEnd{
		costas: NewCostas(),
		agc:    NewAGC(0.01, 1.0),
		snr:    snr,
		log:    log.With().Str("component", "frontend").Logger(),
	}
}

// Configure sets the chain, samples per symbol and matched-filter selection.
// SPS below 2 is rejected with ErrInvalidSPS. Configuration keeps the FLL
// frequency estimate: the LO offset does not depend on the symbol rate.
func (f *FrontEnd) Configure(chain Chain, sps int, hint ProtocolHint) error {
	if sps < 2 {
		return ErrInvalidSPS
	}
	f.chain = chain
	f.hint = hint

	var keepFreq float32
	if f.fll != nil {
		keepFreq = f.fll.Frequency()
	}
	if f.fll == nil || f.sps != sps {
		if f.fll == nil {
			f.fll = NewFLL(sps, rrcRolloff)
		} else {
			f.fll.Redesign(sps)
		}
		f.fll.SetFrequency(keepFreq)
	}
	f.sps = sps

	if f.timing == nil {
		f.timing = NewGardner(sps)
	} else {
		f.timing.SetOmega(float32(sps))
	}
	if f.slicer == nil {
		f.slicer = NewC4FMSlicer(sps)
	} else {
		f.slicer.SetSPS(sps)
	}
	f.slicer.SetAssistEnabled(chain == ChainC4FM)

	ntaps := (7 * sps) | 1
	f.matched = segdsp.MakeFloatFirFilter(segdsp.MakeRRC(1.0, float64(sps), 1.0, rrcRolloff, ntaps))
	f.matchedGate = false

	f.costas.Reset()
	f.prevPhasor = 0
	f.phasorInit = false
	f.prevQuad = 0
	f.symPhase = 0
	f.hunt.reset()
	f.queue = f.queue[:0]
	f.head = 0

	f.log.Debug().
		Str("chain", chain.String()).
		Int("sps", sps).
		Msg("front end configured")
	return nil
}

// SPS reports the configured samples per symbol.
func (f *FrontEnd) SPS() int { return f.sps }

// ChainKind reports the configured chain.
func (f *FrontEnd) ChainKind() Chain { return f.chain }

// FLLFrequency exposes the coarse frequency estimate for diagnostics.
func (f *FrontEnd) FLLFrequency() float32 {
	if f.fll == nil {
		return 0
	}
	return f.fll.Frequency()
}

// SetLocked informs the front end of downstream sync state. The matched
// filter engages only after lock; before lock the hunt counter runs.
func (f *FrontEnd) SetLocked(locked bool) {
	f.locked = locked
	f.matchedGate = locked
	if locked {
		f.hunt.reset()
	}
}

// ResetOnRetune zeroes timing and Costas state. When preserveFLL is true the
// coarse frequency estimate survives, which is the normal case: reacquiring
// it is slow and the LO offset is nearly identical on nearby frequencies.
func (f *FrontEnd) ResetOnRetune(preserveFLL bool) {
	if f.timing != nil {
		f.timing.Reset()
	}
	f.costas.Reset()
	if f.slicer != nil {
		f.slicer.Reset()
	}
	if f.fll != nil && !preserveFLL {
		f.fll.Reset()
	}
	f.prevPhasor = 0
	f.phasorInit = false
	f.prevQuad = 0
	f.symPhase = 0
	f.queue = f.queue[:0]
	f.head = 0
}

// Push ingests a block of complex baseband, runs the configured chain and
// appends produced symbols to the output queue. It never blocks.
func (f *FrontEnd) Push(samples []complex64) {
	if f.sps == 0 || len(samples) == 0 {
		return
	}
	switch f.chain {
	case ChainCQPSK:
		f.pushCQPSK(samples)
	default:
		f.pushC4FM(samples)
	}
	f.hunt.observe(f, len(samples)/f.sps)
}

func (f *FrontEnd) pushCQPSK(samples []complex64) {
	buf := make([]complex64, len(samples))
	copy(buf, samples)

	f.agc.Work(buf)
	f.fll.Work(buf)

	for _, y := range f.timing.Work(buf) {
		// Differential phasor then carrier recovery at symbol rate.
		if !f.phasorInit {
			f.prevPhasor = y
			f.phasorInit = true
			continue
		}
		d := y * conj(f.prevPhasor)
		f.prevPhasor = y
		d = f.costas.Step(d)

		soft := cqpskSoft(d)
		dibit := levelDibit(soft)
		f.queue = append(f.queue, Symbol{
			Soft:        soft,
			Dibit:       dibit,
			Reliability: cqpskReliability(soft, f.snr),
		})
	}
}

// pushC4FM runs the discriminator path: FM-demodulate, optionally matched
// filter, then sample once per symbol at the tracked center.
func (f *FrontEnd) pushC4FM(samples []complex64) {
	disc := make([]float32, len(samples))
	gain := float32(f.sps) / (2 * math.Pi)
	for i, s := range samples {
		s = clampNaNC(s)
		d := s * conj(f.prevQuad)
		f.prevQuad = s
		disc[i] = clampNaN(float32(math.Atan2(float64(imag(d)), float64(real(d)))) * gain)
	}
	if f.matchedGate && f.matched != nil {
		disc = f.matched.Work(disc)
	}

	// Symbol extraction at symbolCenter within each SPS-long window. The
	// window phase persists across blocks; the clock assist moves the
	// center, which shifts subsequent sampling instants.
	for i, s := range disc {
		f.slicer.Observe(s)
		if f.symPhase == f.slicer.SymbolCenter() {
			soft, dibit := f.slicer.Slice(s)
			if i > 0 && i+1 < len(disc) {
				f.slicer.AssistTick(disc[i-1], disc[i+1])
			}
			f.queue = append(f.queue, Symbol{
				Soft:        soft,
				Dibit:       dibit,
				Reliability: c4fmReliability(soft, f.snr),
			})
		}
		f.symPhase++
		if f.symPhase >= f.sps {
			f.symPhase = 0
		}
	}
}

// PopSymbol returns the next demodulated symbol, or ErrStarved when the
// queue is empty.
func (f *FrontEnd) PopSymbol() (Symbol, error) {
	if f.head >= len(f.queue) {
		f.queue = f.queue[:0]
		f.head = 0
		return Symbol{}, ErrStarved
	}
	s := f.queue[f.head]
	f.head++
	return s, nil
}

func conj(c complex64) complex64 { return complex(real(c), -imag(c)) }

// cqpskSoft maps a differential phasor angle to the four-level scale: the
// ideal pi/4-DQPSK transitions +/-45 and +/-135 degrees land on +/-1, +/-3.
func cqpskSoft(d complex64) float32 {
	ang := float32(math.Atan2(float64(imag(d)), float64(real(d))))
	return clampNaN(ang / (math.Pi / 4))
}

// levelDibit maps a soft four-level symbol to its dibit: +3 -> 1, +1 -> 0,
// -1 -> 2, -3 -> 3.
func levelDibit(soft float32) byte {
	switch {
	case soft > 2:
		return 1
	case soft > 0:
		return 0
	case soft > -2:
		return 2
	default:
		return 3
	}
}
