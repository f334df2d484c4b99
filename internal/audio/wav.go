package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo-sub003/internal/event"
	"github.com/arancormonk/dsd-neo-sub003/internal/ringbuf"
)

const wavHeaderSize = 44

// WAVWriter records each call to its own WAV file, named from the
// call's event metadata through a filename template. Frames that
// arrive with no call open are dropped.
type WAVWriter struct {
	dir      string
	template string
	rate     uint32
	log      zerolog.Logger
	now      func() time.Time

	calls [2]*wavFile
}

type wavFile struct {
	f       *os.File
	name    string
	dataLen uint32
}

func NewWAVWriter(log zerolog.Logger, dir, template string, rate uint32) *WAVWriter {
	return &WAVWriter{
		dir:      dir,
		template: template,
		rate:     rate,
		log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source, for tests.
func (w *WAVWriter) SetClock(clock func() time.Time) { w.now = clock }

// expandTemplate substitutes call metadata into the filename template.
func (w *WAVWriter) expandTemplate(rec event.Record) string {
	ts := rec.Time
	if ts.IsZero() {
		ts = w.now()
	}
	r := strings.NewReplacer(
		"%date", ts.Format("20060102"),
		"%time", ts.Format("150405"),
		"%proto", sanitize(rec.Protocol),
		"%tg", fmt.Sprintf("%d", rec.TG),
		"%src", fmt.Sprintf("%d", rec.Source),
	)
	return r.Replace(w.template)
}

// sanitize keeps protocol names filesystem safe.
func sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, s)
}

func (w *WAVWriter) slot(slot int) *wavFile {
	if slot == 1 {
		return w.calls[1]
	}
	return w.calls[0]
}

// BeginCall opens the slot's recording file. An already open call on
// the slot is finalized first.
func (w *WAVWriter) BeginCall(slot int, rec event.Record) error {
	w.EndCall(slot)

	name := filepath.Join(w.dir, w.expandTemplate(rec))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("cannot create recording %s: %w", name, err)
	}
	if err := writeWAVHeader(f, w.rate, 0); err != nil {
		f.Close()
		return err
	}

	idx := 0
	if slot == 1 {
		idx = 1
	}
	w.calls[idx] = &wavFile{f: f, name: name}
	w.log.Info().Str("file", name).Int("slot", slot).Msg("recording started")
	return nil
}

// WriteFrame appends one PCM frame to the slot's open recording.
func (w *WAVWriter) WriteFrame(slot int, frame *ringbuf.VoiceFrame) error {
	c := w.slot(slot)
	if c == nil {
		return nil
	}
	buf := make([]byte, 2*len(frame))
	for i, s := range frame {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	if _, err := c.f.Write(buf); err != nil {
		return err
	}
	c.dataLen += uint32(len(buf))
	return nil
}

// EndCall patches the RIFF sizes and closes the slot's recording.
func (w *WAVWriter) EndCall(slot int) {
	idx := 0
	if slot == 1 {
		idx = 1
	}
	c := w.calls[idx]
	if c == nil {
		return
	}
	w.calls[idx] = nil

	if _, err := c.f.Seek(0, 0); err == nil {
		writeWAVHeader(c.f, w.rate, c.dataLen)
	}
	c.f.Close()
	w.log.Info().Str("file", c.name).Uint32("bytes", c.dataLen).Msg("recording closed")
}

// Close finalizes any open recordings.
func (w *WAVWriter) Close() error {
	w.EndCall(0)
	w.EndCall(1)
	return nil
}

// writeWAVHeader emits the canonical 44-byte mono 16-bit PCM header.
func writeWAVHeader(f *os.File, rate, dataLen uint32) error {
	var h [wavHeaderSize]byte
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataLen)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], 1) // mono
	binary.LittleEndian.PutUint32(h[24:28], rate)
	binary.LittleEndian.PutUint32(h[28:32], rate*2) // byte rate
	binary.LittleEndian.PutUint16(h[32:34], 2)      // block align
	binary.LittleEndian.PutUint16(h[34:36], 16)     // bits per sample
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataLen)
	_, err := f.Write(h[:])
	return err
}
