package frame

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo-sub003/internal/event"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

// fakeTSM records trunking events and implements the optional gate and
// release surfaces.
type fakeTSM struct {
	events   []trunk.Event
	gates    []int
	released bool
}

func (f *fakeTSM) Event(ev trunk.Event) { f.events = append(f.events, ev) }

func (f *fakeTSM) SetAudioAllowed(slot int, ok bool) {
	if !ok {
		f.gates = append(f.gates, slot)
	}
}

func (f *fakeTSM) RequestRelease() { f.released = true }

func (f *fakeTSM) kinds() []trunk.EventKind {
	out := make([]trunk.EventKind, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Kind
	}
	return out
}

func (f *fakeTSM) firstOf(kind trunk.EventKind) (trunk.Event, bool) {
	for _, ev := range f.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return trunk.Event{}, false
}

func (f *fakeTSM) countOf(kind trunk.EventKind) int {
	n := 0
	for _, ev := range f.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// groupMap is an in-memory group table.
type groupMap map[uint32]string

func (g groupMap) ModeOf(tg uint32) string { return g[tg] }
func (g groupMap) SetMode(tg uint32, mode string) { g[tg] = mode }

// voiceRec records pushed codewords.
type voiceRec struct {
	frames []voiceFrame
}

type voiceFrame struct {
	slot int
	data []byte
}

func (v *voiceRec) PushVoice(slot int, codeword []byte) {
	v.frames = append(v.frames, voiceFrame{slot: slot, data: codeword})
}

type harness struct {
	tsm    *fakeTSM
	groups groupMap
	voice  *voiceRec
	ring   *event.Ring
	deps   *Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tsm:    &fakeTSM{},
		groups: groupMap{},
		voice:  &voiceRec{},
		ring:   event.NewRing(),
	}
	h.deps = &Deps{
		TSM:    h.tsm,
		Groups: h.groups,
		Voice:  h.voice,
		Ring:   h.ring,
		Keys:   NewKeystore(),
		Log:    zerolog.Nop(),
		Now:    func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	return h
}

func sourceOf(parts ...[]Dibit) *SliceSource {
	var all []Dibit
	for _, p := range parts {
		all = append(all, p...)
	}
	return NewSliceSource(all)
}
