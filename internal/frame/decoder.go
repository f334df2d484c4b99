package frame

import (
	"errors"

	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

// Handler decodes one frame body positioned just after its sync word.
type Handler interface {
	Proto() Protocol
	Process(match SyncMatch, src Source) error
}

// fecCounter is implemented by handlers that track uncorrectable frames.
type fecCounter interface {
	FECErrors() int
	ResetFECErrors()
}

// invSource un-inverts dibits behind an inverted sync match.
type invSource struct {
	src Source
}

func (s invSource) Next() (Dibit, error) {
	d, err := s.src.Next()
	d.Value = invertDibit(d.Value)
	return d, err
}

// Adaptive tolerance thresholds: consecutive frame failures widen the sync
// window, a run of clean frames tightens it back.
const (
	widenAfterErrs    = 3
	tightenAfterClean = 5
	syncLossDibits    = 2400
)

// Decoder owns the sync matcher and the per-protocol handlers, routing each
// detected frame to its decoder and adapting the matcher tolerance to the
// observed error rate.
type Decoder struct {
	deps    *Deps
	matcher *Matcher

	handlers map[Protocol]Handler

	// OnSync fires on every match, before the handler runs. The front end
	// uses it to follow SPS and modulation hints.
	OnSync func(SyncMatch)

	errStreak   int
	cleanStreak int
	sinceSync   int
	lostSent    bool
}

// NewDecoder builds a decoder with the standard handler set. protos limits
// which sync patterns are hunted; nil enables all.
func NewDecoder(deps *Deps, protos []Protocol) *Decoder {
	d := &Decoder{
		deps:     deps,
		matcher:  NewMatcher(protos),
		handlers: make(map[Protocol]Handler),
	}
	for _, h := range []Handler{
		NewP25p1(deps),
		NewP25p2(deps),
		NewDMR(deps),
		NewNXDN(deps),
		NewDPMR(deps),
		NewYSF(deps),
		NewDStar(deps),
		NewM17(deps),
		NewEDACS(deps),
		NewProVoice(deps),
	} {
		d.handlers[h.Proto()] = h
	}
	return d
}

// Matcher exposes the sync detector, mainly for tests.
func (d *Decoder) Matcher() *Matcher { return d.matcher }

// Handler returns the registered handler for a protocol.
func (d *Decoder) Handler(p Protocol) Handler { return d.handlers[p] }

// SetHandler replaces a handler, used by tests to observe dispatch.
func (d *Decoder) SetHandler(p Protocol, h Handler) { d.handlers[p] = h }

// Run consumes dibits until the source starves, hunting sync and decoding
// frame bodies as they appear.
func (d *Decoder) Run(src Source) error {
	for {
		dib, err := src.Next()
		if err != nil {
			if errors.Is(err, ErrStarved) {
				return nil
			}
			return err
		}
		d.sinceSync++
		if d.sinceSync > syncLossDibits && !d.lostSent {
			d.deps.TSM.Event(trunk.Event{Kind: trunk.EvSyncLost})
			d.lostSent = true
		}

		match, ok := d.matcher.Feed(dib.Value)
		if !ok {
			continue
		}
		h := d.handlers[match.Pattern.Proto]
		if h == nil {
			continue
		}
		if d.OnSync != nil {
			d.OnSync(match)
		}
		d.sinceSync = 0
		d.lostSent = false

		body := src
		if match.Pattern.Inverted {
			body = invSource{src: src}
		}
		if err := h.Process(match, body); err != nil {
			d.noteError()
		} else {
			d.noteClean()
		}
		d.matcher.Reset()
	}
}

func (d *Decoder) noteError() {
	d.cleanStreak = 0
	d.errStreak++
	if d.errStreak >= widenAfterErrs {
		d.errStreak = 0
		d.matcher.SetTolerance(d.matcher.Tolerance() + 1)
	}
}

func (d *Decoder) noteClean() {
	d.errStreak = 0
	d.cleanStreak++
	if d.cleanStreak >= tightenAfterClean {
		d.cleanStreak = 0
		d.matcher.SetTolerance(d.matcher.Tolerance() - 1)
	}
}

// FECErrors sums the per-handler uncorrectable counts.
func (d *Decoder) FECErrors() int {
	total := 0
	for _, h := range d.handlers {
		if c, ok := h.(fecCounter); ok {
			total += c.FECErrors()
		}
	}
	return total
}
