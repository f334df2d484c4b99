// Package vocoder defines the voice synthesizer boundary. The decoder
// treats codeword synthesis as a black box; real AMBE/IMBE decoding
// lives behind the Synthesizer interface.
package vocoder

import (
	"github.com/arancormonk/dsd-neo-sub003/internal/ringbuf"
)

// Synthesizer turns one protocol voice codeword into a 20 ms PCM frame.
type Synthesizer interface {
	Synthesize(codeword []byte, out *ringbuf.VoiceFrame) error
}

// Silence emits muted frames for every codeword. It is the default
// synthesizer when no voice backend is linked in.
type Silence struct{}

func NewSilence() *Silence { return &Silence{} }

func (*Silence) Synthesize(codeword []byte, out *ringbuf.VoiceFrame) error {
	for i := range out {
		out[i] = 0
	}
	return nil
}

// Tone is a deterministic test synthesizer: each codeword maps to a
// square wave whose period and amplitude derive from the codeword
// bytes, so tests can assert that distinct codewords produce distinct,
// repeatable audio.
type Tone struct{}

func NewTone() *Tone { return &Tone{} }

func (*Tone) Synthesize(codeword []byte, out *ringbuf.VoiceFrame) error {
	var sum int
	for _, b := range codeword {
		sum += int(b)
	}
	period := 8 + sum%32
	amp := int16(4000 + sum%4000)
	for i := range out {
		if (i/period)%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return nil
}
