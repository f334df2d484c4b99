package ringbuf

// VoiceFrameSamples is the length of one 20 ms voice frame at 8 kHz.
const VoiceFrameSamples = 160

// AudioFrameDepth bounds the per-slot audio ring at roughly 80 ms of
// buffered voice before the oldest frame is dropped.
const AudioFrameDepth = 4

// VoiceFrame is one decoded 20 ms PCM frame.
type VoiceFrame [VoiceFrameSamples]int16

// AudioRing is the per-slot bounded ring of decoded voice frames.
// Single producer (the demod goroutine that owns the slot), single
// consumer (the audio output); overflow drops the oldest frame to keep
// latency bounded.
type AudioRing struct {
	frames  [AudioFrameDepth]VoiceFrame
	head    int
	count   int
	dropped uint64
}

// NewAudioRing creates an empty audio ring.
func NewAudioRing() *AudioRing { return &AudioRing{} }

// Push copies frame into the ring, evicting the oldest frame when full.
func (a *AudioRing) Push(frame *VoiceFrame) {
	if a.count == AudioFrameDepth {
		a.count--
		a.dropped++
	}
	a.frames[a.head] = *frame
	a.head = (a.head + 1) % AudioFrameDepth
	a.count++
}

// Pop copies the oldest frame into out and reports whether one was present.
func (a *AudioRing) Pop(out *VoiceFrame) bool {
	if a.count == 0 {
		return false
	}
	tail := a.head - a.count
	if tail < 0 {
		tail += AudioFrameDepth
	}
	*out = a.frames[tail]
	a.count--
	return true
}

// Flush drains all buffered frames into the supplied sink callback, oldest
// first. Used on voice-channel release so short calls are not truncated.
func (a *AudioRing) Flush(sink func(*VoiceFrame)) {
	var f VoiceFrame
	for a.Pop(&f) {
		if sink != nil {
			sink(&f)
		}
	}
}

// Len returns the number of buffered frames.
func (a *AudioRing) Len() int { return a.count }

// Dropped returns the count of frames lost to overflow.
func (a *AudioRing) Dropped() uint64 { return a.dropped }

// Clear discards buffered frames without delivering them.
func (a *AudioRing) Clear() {
	a.head = 0
	a.count = 0
}
