package dsp

// C4FM four-level slicer with adaptive thresholds. A rolling min/max tracker
// keeps an EMA over recent extreme samples; the decision thresholds and the
// reliability reference levels derive from it each refresh:
//
//	center  = (max+min)/2
//	umid    = center + 5/8*(max-center)   upper decision threshold
//	lmid    = center - 5/8*(center-min)   lower decision threshold
//	maxref  = center + 4/5*(max-center)   ideal +3 level
//	minref  = center - 4/5*(center-min)   ideal -3 level

const (
	levelTrackerDepth = 32
	levelEMAAlpha     = 0.05
)

type levelTracker struct {
	max, min   float32
	blockMax   float32
	blockMin   float32
	blockCount int
	primed     bool
}

func (t *levelTracker) reset() {
	*t = levelTracker{}
}

// observe feeds one discriminator sample; every levelTrackerDepth samples the
// block extremes fold into the EMA.
func (t *levelTracker) observe(s float32) {
	if t.blockCount == 0 {
		t.blockMax = s
		t.blockMin = s
	} else {
		if s > t.blockMax {
			t.blockMax = s
		}
		if s < t.blockMin {
			t.blockMin = s
		}
	}
	t.blockCount++
	if t.blockCount < levelTrackerDepth {
		return
	}
	t.blockCount = 0
	if !t.primed {
		t.max = t.blockMax
		t.min = t.blockMin
		t.primed = true
		return
	}
	t.max += levelEMAAlpha * (t.blockMax - t.max)
	t.min += levelEMAAlpha * (t.blockMin - t.min)
}

// thresholds derives the slicer levels from the tracked extremes.
func (t *levelTracker) thresholds() (center, umid, lmid, maxref, minref float32) {
	center = (t.max + t.min) / 2
	umid = center + 5.0/8.0*(t.max-center)
	lmid = center - 5.0/8.0*(center-t.min)
	maxref = center + 0.8*(t.max-center)
	minref = center - 0.8*(center-t.min)
	return
}

// C4FMSlicer slices discriminator samples into dibits and tracks the symbol
// sampling point within each SPS-long window.
type C4FMSlicer struct {
	sps          int
	symbolCenter int
	tracker      levelTracker

	// Clock assist state: an early-late residual nudges symbolCenter by one
	// sample after enough consecutive same-direction errors.
	assistEnabled bool
	assistRun     int
	assistDir     int
	assistCool    int
}

const (
	assistPersistence = 6
	assistCooldown    = 48
)

// NewC4FMSlicer builds a slicer for the given samples per symbol.
func NewC4FMSlicer(sps int) *C4FMSlicer {
	return &C4FMSlicer{sps: sps, symbolCenter: sps / 2, assistEnabled: true}
}

// Reset clears the threshold tracker and timing assist.
func (s *C4FMSlicer) Reset() {
	s.tracker.reset()
	s.assistRun = 0
	s.assistDir = 0
	s.assistCool = 0
	s.symbolCenter = s.sps / 2
}

// SetSPS reconfigures the symbol period.
func (s *C4FMSlicer) SetSPS(sps int) {
	s.sps = sps
	s.Reset()
}

// SymbolCenter reports the current sampling offset within the symbol window.
func (s *C4FMSlicer) SymbolCenter() int { return s.symbolCenter }

// Observe feeds one sample into the threshold tracker without slicing.
// The hunt path calls this continuously so thresholds stay fresh before lock.
func (s *C4FMSlicer) Observe(sample float32) {
	s.tracker.observe(clampNaN(sample))
}

// Slice decides the dibit for a symbol-instant sample and returns the soft
// symbol on the {-3,-1,+1,+3} scale.
func (s *C4FMSlicer) Slice(sample float32) (soft float32, dibit byte) {
	sample = clampNaN(sample)
	center, umid, lmid, maxref, minref := s.tracker.thresholds()

	span := maxref - center
	if span < 1e-6 {
		span = 1e-6
	}
	nspan := center - minref
	if nspan < 1e-6 {
		nspan = 1e-6
	}

	if sample >= center {
		soft = 3 * (sample - center) / span
	} else {
		soft = -3 * (center - sample) / nspan
	}
	switch {
	case sample > umid:
		dibit = 1 // +3
	case sample > center:
		dibit = 0 // +1
	case sample > lmid:
		dibit = 2 // -1
	default:
		dibit = 3 // -3
	}
	return soft, dibit
}

// AssistTick feeds the early-late residual for one symbol: early and late are
// the samples one position either side of the symbol center. A persistent
// one-sided residual means the sampling point sits off the eye center, so
// after assistPersistence consecutive hits the center nudges one sample and
// enters a cooldown.
func (s *C4FMSlicer) AssistTick(early, late float32) {
	if !s.assistEnabled {
		return
	}
	if s.assistCool > 0 {
		s.assistCool--
		return
	}
	resid := clampNaN(late - early)
	dir := 0
	if resid > 0 {
		dir = 1
	} else if resid < 0 {
		dir = -1
	}
	if dir == 0 {
		s.assistRun = 0
		return
	}
	if dir == s.assistDir {
		s.assistRun++
	} else {
		s.assistDir = dir
		s.assistRun = 1
	}
	if s.assistRun < assistPersistence {
		return
	}
	s.assistRun = 0
	s.assistCool = assistCooldown
	s.symbolCenter += dir
	if s.symbolCenter < 1 {
		s.symbolCenter = 1
	}
	if s.symbolCenter > s.sps-2 {
		s.symbolCenter = s.sps - 2
	}
}

// SetAssistEnabled toggles the clock assist (C4FM only).
func (s *C4FMSlicer) SetAssistEnabled(on bool) { s.assistEnabled = on }

// Thresholds exposes the current slicer levels for reliability scoring.
func (s *C4FMSlicer) Thresholds() (center, umid, lmid, maxref, minref float32) {
	return s.tracker.thresholds()
}
