// Package grouplist holds the imported talkgroup table. Each entry
// carries a mode string: "" or "A" allow, "B" block, "DE" encrypted
// lockout. The frame layer writes "DE" marks back through SetMode and
// the marks persist to the CSV file when one is loaded.
package grouplist

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one imported talkgroup row.
type Entry struct {
	TG    uint32
	Mode  string
	Alias string
}

// GroupList is the talkgroup table plus the trunked system's channel
// map. Reads are frequent (every grant); writes happen only at import
// and at lockout marking.
type GroupList struct {
	filename string
	log      zerolog.Logger

	mu       sync.RWMutex
	entries  map[uint32]*Entry
	order    []uint32
	channels map[uint32]int64
}

func New(log zerolog.Logger, filename string) *GroupList {
	return &GroupList{
		filename: filename,
		log:      log,
		entries:  make(map[uint32]*Entry),
		channels: make(map[uint32]int64),
	}
}

// Read imports the CSV group file. Rows are "tg,mode[,alias]"; blank
// lines and # comments are skipped, malformed rows are counted and
// dropped.
func (g *GroupList) Read() error {
	f, err := os.Open(g.filename)
	if err != nil {
		return fmt.Errorf("cannot open group file %s: %w", g.filename, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("group file %s: %w", g.filename, err)
	}

	entries := make(map[uint32]*Entry)
	order := make([]uint32, 0, len(rows))
	var skipped int
	for _, row := range rows {
		if len(row) < 1 {
			continue
		}
		tg, err := strconv.ParseUint(strings.TrimSpace(row[0]), 10, 32)
		if err != nil || tg == 0 {
			skipped++
			continue
		}
		e := &Entry{TG: uint32(tg)}
		if len(row) > 1 {
			e.Mode = strings.ToUpper(strings.TrimSpace(row[1]))
		}
		if len(row) > 2 {
			e.Alias = strings.TrimSpace(row[2])
		}
		if _, dup := entries[e.TG]; !dup {
			order = append(order, e.TG)
		}
		entries[e.TG] = e
	}

	g.mu.Lock()
	g.entries = entries
	g.order = order
	g.mu.Unlock()

	g.log.Info().Int("groups", len(entries)).Int("skipped", skipped).
		Str("file", g.filename).Msg("group list loaded")
	return nil
}

// ModeOf returns the mode string for a talkgroup; unknown groups are
// allowed ("").
func (g *GroupList) ModeOf(tg uint32) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if e, ok := g.entries[tg]; ok {
		return e.Mode
	}
	return ""
}

// Known reports whether a talkgroup was imported. Allow-list policies
// block grants for unknown groups.
func (g *GroupList) Known(tg uint32) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.entries[tg]
	return ok
}

// AliasOf returns the imported alias for a talkgroup, if any.
func (g *GroupList) AliasOf(tg uint32) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if e, ok := g.entries[tg]; ok {
		return e.Alias
	}
	return ""
}

// SetMode updates a talkgroup's mode, creating the entry when the
// group was not imported, and writes the table back to the CSV file.
func (g *GroupList) SetMode(tg uint32, mode string) {
	g.mu.Lock()
	e, ok := g.entries[tg]
	if !ok {
		e = &Entry{TG: tg}
		g.entries[tg] = e
		g.order = append(g.order, tg)
	}
	e.Mode = mode
	g.mu.Unlock()

	if g.filename == "" {
		return
	}
	if err := g.writeBack(); err != nil {
		g.log.Warn().Err(err).Str("file", g.filename).Msg("group list writeback failed")
	}
}

// writeBack rewrites the CSV preserving import order, via a temp file
// so a crash cannot truncate the table.
func (g *GroupList) writeBack() error {
	tmp := g.filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	g.mu.RLock()
	for _, tg := range g.order {
		e := g.entries[tg]
		if err := w.Write([]string{strconv.FormatUint(uint64(e.TG), 10), e.Mode, e.Alias}); err != nil {
			g.mu.RUnlock()
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	g.mu.RUnlock()

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, g.filename)
}

// Len reports how many groups are loaded.
func (g *GroupList) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// AddChannel registers a manual channel-to-frequency mapping for
// systems whose channel plan is not broadcast (EDACS LCNs).
func (g *GroupList) AddChannel(ch uint32, freqHz int64) {
	g.mu.Lock()
	g.channels[ch] = freqHz
	g.mu.Unlock()
}

// ReadChannels imports a "channel,freqHz" CSV into the channel map.
func (g *GroupList) ReadChannels(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open channel file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("channel file %s: %w", path, err)
	}

	var loaded, skipped int
	for _, row := range rows {
		if len(row) < 2 {
			skipped++
			continue
		}
		ch, err1 := strconv.ParseUint(strings.TrimSpace(row[0]), 0, 32)
		freq, err2 := strconv.ParseInt(strings.TrimSpace(row[1]), 10, 64)
		if err1 != nil || err2 != nil || freq <= 0 {
			skipped++
			continue
		}
		g.AddChannel(uint32(ch), freq)
		loaded++
	}
	g.log.Info().Int("channels", loaded).Int("skipped", skipped).
		Str("file", path).Msg("channel map loaded")
	return nil
}

// ChannelFreq resolves a manually mapped channel.
func (g *GroupList) ChannelFreq(ch uint32) (int64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.channels[ch]
	return f, ok
}
