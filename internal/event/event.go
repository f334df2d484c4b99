// Package event holds the per-slot call history: a bounded ring of decoded
// call records plus the line-oriented event log written for external tools.
package event

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// RingDepth is the per-slot history length.
const RingDepth = 256

// Record is one decoded call or control happening. Index 0 in the ring is
// always the current call; records are immutable once they shift to an older
// index.
type Record struct {
	Time     time.Time
	Protocol string

	SystemID uint32
	WACN     uint32
	SiteID   uint32
	NAC      uint32

	Target uint32
	Source uint32

	TG      uint32
	Slot    int
	Channel uint32
	FreqHz  int64

	SvcOpts byte
	AlgID   byte
	KeyID   uint16
	MI      [9]byte
	IV      [16]byte

	Alias string
	GPS   string
	Text  string

	Summary string
}

// Encrypted reports whether the record carries a non-clear algorithm.
func (r *Record) Encrypted() bool {
	return r.AlgID != 0 && r.AlgID != 0x80
}

// Ring is the bounded per-slot history. Push starts a new current call at
// index 0, shifting older records up and evicting the oldest past RingDepth.
// Update mutates only index 0.
type Ring struct {
	mu      sync.Mutex
	records []Record
}

// NewRing returns an empty history.
func NewRing() *Ring {
	return &Ring{records: make([]Record, 0, RingDepth)}
}

// Push makes rec the current record. The previous current record becomes
// index 1 and is frozen from then on.
func (g *Ring) Push(rec Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.records) < RingDepth {
		g.records = append(g.records, Record{})
	}
	copy(g.records[1:], g.records[:len(g.records)-1])
	g.records[0] = rec
}

// Update overwrites the current record in place. Older records never change.
func (g *Ring) Update(fn func(*Record)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.records) == 0 {
		g.records = append(g.records, Record{})
	}
	fn(&g.records[0])
}

// Current returns a copy of the newest record and whether one exists.
func (g *Ring) Current() (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.records) == 0 {
		return Record{}, false
	}
	return g.records[0], true
}

// At returns a copy of the record at index i (0 = newest).
func (g *Ring) At(i int) (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < 0 || i >= len(g.records) {
		return Record{}, false
	}
	return g.records[i], true
}

// Len reports how many records are held.
func (g *Ring) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// Snapshot copies the history newest-first.
func (g *Ring) Snapshot() []Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Record, len(g.records))
	copy(out, g.records)
	return out
}

// Logger appends human-legible event lines to a writer. One line per call
// event, fixed prefix ordering so downstream scrapers can split on columns.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewLogger writes events to w. now may be nil for wall-clock time.
func NewLogger(w io.Writer, now func() time.Time) *Logger {
	if now == nil {
		now = time.Now
	}
	return &Logger{w: w, now: now}
}

// Log writes one event line:
//
//	YYYY-MM-DD HH:MM:SS  PROTO  TGT: 1234  SRC: 5678  <summary>
func (l *Logger) Log(rec *Record) {
	if l == nil || l.w == nil {
		return
	}
	ts := rec.Time
	if ts.IsZero() {
		ts = l.now()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s  TGT: %d  SRC: %d",
		ts.Format("2006-01-02 15:04:05"), rec.Protocol, rec.Target, rec.Source)
	if rec.Slot >= 0 {
		fmt.Fprintf(&sb, "  SLOT: %d", rec.Slot)
	}
	if rec.AlgID != 0 && rec.AlgID != 0x80 {
		fmt.Fprintf(&sb, "  ALG: 0x%02X  KID: 0x%04X", rec.AlgID, rec.KeyID)
	}
	if rec.Summary != "" {
		fmt.Fprintf(&sb, "  %s", rec.Summary)
	}
	sb.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.w, sb.String())

	for _, extra := range []struct{ tag, val string }{
		{"ALIAS", rec.Alias},
		{"GPS", rec.GPS},
		{"TEXT", rec.Text},
	} {
		if extra.val != "" {
			fmt.Fprintf(l.w, "%s  %s  %s: %s\n",
				ts.Format("2006-01-02 15:04:05"), rec.Protocol, extra.tag, extra.val)
		}
	}
}
