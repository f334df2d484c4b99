// Package frame implements the frame layer: sync hunting across the enabled
// protocols, per-protocol frame decoders built on the shared FEC primitives,
// and the policy glue that turns decoded control messages into trunking
// events.
package frame

import (
	"errors"

	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

// Dibit is one demodulated two-bit symbol with its confidence.
type Dibit struct {
	Value       byte
	Reliability byte
}

// ErrStarved is returned by a Source with nothing buffered.
var ErrStarved = errors.New("frame: dibit source starved")

// ErrShortFrame is returned when a frame body ends before its fixed length.
var ErrShortFrame = errors.New("frame: truncated frame body")

// Source yields dibits to a frame decoder. The demod thread is the only
// producer.
type Source interface {
	Next() (Dibit, error)
}

// SliceSource adapts a prepared dibit slice, used by decoders working on a
// frame body that the sync layer already collected, and by tests.
type SliceSource struct {
	dibits []Dibit
	pos    int
}

// NewSliceSource wraps dibits.
func NewSliceSource(dibits []Dibit) *SliceSource {
	return &SliceSource{dibits: dibits}
}

// Next pops the next dibit or reports starvation.
func (s *SliceSource) Next() (Dibit, error) {
	if s.pos >= len(s.dibits) {
		return Dibit{}, ErrStarved
	}
	d := s.dibits[s.pos]
	s.pos++
	return d, nil
}

// Remaining reports how many dibits are left.
func (s *SliceSource) Remaining() int { return len(s.dibits) - s.pos }

// collect reads exactly n dibits from src.
func collect(src Source, n int) ([]Dibit, error) {
	out := make([]Dibit, n)
	for i := 0; i < n; i++ {
		d, err := src.Next()
		if err != nil {
			return nil, ErrShortFrame
		}
		out[i] = d
	}
	return out, nil
}

// dibitBits unpacks dibits MSB-first into a bit slice (2 bits each).
func dibitBits(dibits []Dibit) []bool {
	out := make([]bool, 2*len(dibits))
	for i, d := range dibits {
		out[2*i] = d.Value&2 != 0
		out[2*i+1] = d.Value&1 != 0
	}
	return out
}

// dibitValues extracts the raw symbol values.
func dibitValues(dibits []Dibit) []byte {
	out := make([]byte, len(dibits))
	for i, d := range dibits {
		out[i] = d.Value
	}
	return out
}

// dibitReliability extracts the per-symbol confidence.
func dibitReliability(dibits []Dibit) []byte {
	out := make([]byte, len(dibits))
	for i, d := range dibits {
		out[i] = d.Reliability
	}
	return out
}

// EventSink receives trunking events from the protocol handlers.
type EventSink interface {
	Event(ev trunk.Event)
}

// GroupTable is the imported talkgroup list with its mode strings. The
// lockout path writes "DE" marks through it.
type GroupTable interface {
	ModeOf(tg uint32) string
	SetMode(tg uint32, mode string)
}

// VoiceSink consumes decoded voice codewords per slot.
type VoiceSink interface {
	PushVoice(slot int, codeword []byte)
}
