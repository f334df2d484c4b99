package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/arancormonk/dsd-neo-sub003/internal/event"
)

// RadioUnit maps a radio's source ID to its imported alias.
type RadioUnit struct {
	RadioID   uint32    `gorm:"primarykey;not null" json:"radio_id"`
	Alias     string    `gorm:"index;size:50" json:"alias"`
	Protocol  string    `gorm:"size:12" json:"protocol"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RadioUnit) TableName() string {
	return "radio_units"
}

// IsValid checks that the unit record carries its required fields.
func (u RadioUnit) IsValid() bool {
	return u.RadioID > 0 && u.Alias != ""
}

// Sanitize cleans up the imported fields.
func (u *RadioUnit) Sanitize() {
	u.Alias = strings.TrimSpace(u.Alias)
	u.Protocol = strings.TrimSpace(u.Protocol)
}

func (u RadioUnit) String() string {
	s := fmt.Sprintf("%s (%d)", u.Alias, u.RadioID)
	if u.Protocol != "" {
		s += " [" + u.Protocol + "]"
	}
	return s
}

// CallEvent is one persisted call history row, mirrored from the
// in-memory event ring.
type CallEvent struct {
	ID       uint      `gorm:"primarykey" json:"id"`
	Time     time.Time `gorm:"index" json:"time"`
	Protocol string    `gorm:"size:12" json:"protocol"`
	SystemID uint32    `json:"system_id"`
	SiteID   uint32    `json:"site_id"`
	TG       uint32    `gorm:"index" json:"tg"`
	Source   uint32    `json:"source"`
	Slot     int       `json:"slot"`
	Channel  uint32    `json:"channel"`
	FreqHz   int64     `json:"freq_hz"`
	AlgID    uint8     `json:"alg_id"`
	KeyID    uint16    `json:"key_id"`
	Alias    string    `gorm:"size:50" json:"alias"`
	Summary  string    `gorm:"size:120" json:"summary"`
}

func (CallEvent) TableName() string {
	return "call_events"
}

// CallEventFrom converts an event ring record into its persisted form.
func CallEventFrom(rec event.Record) CallEvent {
	return CallEvent{
		Time:     rec.Time,
		Protocol: rec.Protocol,
		SystemID: rec.SystemID,
		SiteID:   rec.SiteID,
		TG:       rec.TG,
		Source:   rec.Source,
		Slot:     rec.Slot,
		Channel:  rec.Channel,
		FreqHz:   rec.FreqHz,
		AlgID:    rec.AlgID,
		KeyID:    rec.KeyID,
		Alias:    rec.Alias,
		Summary:  rec.Summary,
	}
}
