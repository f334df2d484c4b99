// Package audio carries decoded voice from the frame layer to a PCM
// sink. Frames pass through a small per-slot ring so a release can
// flush buffered audio before the gates clear.
package audio

import (
	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo-sub003/internal/ringbuf"
	"github.com/arancormonk/dsd-neo-sub003/internal/vocoder"
)

// Sink consumes 20 ms PCM frames per slot.
type Sink interface {
	WriteFrame(slot int, frame *ringbuf.VoiceFrame) error
	Close() error
}

// Gate answers whether a slot's audio may flow right now. The trunking
// state machine provides this.
type Gate interface {
	AudioAllowed(slot int) bool
}

// NullSink discards audio and counts what it discarded.
type NullSink struct {
	Frames [2]int
}

func NewNullSink() *NullSink { return &NullSink{} }

func (s *NullSink) WriteFrame(slot int, frame *ringbuf.VoiceFrame) error {
	if slot == 1 {
		s.Frames[1]++
	} else {
		s.Frames[0]++
	}
	return nil
}

func (s *NullSink) Close() error { return nil }

// Output synthesizes voice codewords and feeds the sink. It keeps one
// frame of lookahead in the per-slot ring; FlushSlot drains the rest
// before the trunking layer releases the channel.
type Output struct {
	synth vocoder.Synthesizer
	sink  Sink
	gate  Gate
	log   zerolog.Logger
	rings [2]*ringbuf.AudioRing
}

func NewOutput(log zerolog.Logger, synth vocoder.Synthesizer, sink Sink) *Output {
	return &Output{
		synth: synth,
		sink:  sink,
		log:   log,
		rings: [2]*ringbuf.AudioRing{ringbuf.NewAudioRing(), ringbuf.NewAudioRing()},
	}
}

// SetGate wires the audio gate. A nil gate lets everything through.
func (o *Output) SetGate(g Gate) { o.gate = g }

func (o *Output) ring(slot int) *ringbuf.AudioRing {
	if slot == 1 {
		return o.rings[1]
	}
	return o.rings[0]
}

// PushVoice implements the frame layer's voice sink.
func (o *Output) PushVoice(slot int, codeword []byte) {
	if o.gate != nil && !o.gate.AudioAllowed(slot) {
		return
	}
	var frame ringbuf.VoiceFrame
	if err := o.synth.Synthesize(codeword, &frame); err != nil {
		o.log.Warn().Err(err).Int("slot", slot).Msg("voice synthesis failed")
		return
	}
	r := o.ring(slot)
	r.Push(&frame)
	for r.Len() > 1 {
		var out ringbuf.VoiceFrame
		r.Pop(&out)
		if err := o.sink.WriteFrame(slot, &out); err != nil {
			o.log.Warn().Err(err).Int("slot", slot).Msg("audio write failed")
			return
		}
	}
}

// FlushSlot drains buffered frames for the slot. The trunking state
// machine calls this before a release.
func (o *Output) FlushSlot(slot int) {
	o.ring(slot).Flush(func(f *ringbuf.VoiceFrame) {
		if err := o.sink.WriteFrame(slot, f); err != nil {
			o.log.Warn().Err(err).Int("slot", slot).Msg("audio flush write failed")
		}
	})
}
