package trunk

import "errors"

// IdenTrust grades how much an IDEN table entry can be relied on for voice
// retunes. Entries learned from a single broadcast stay unconfirmed until the
// same parameters are seen again on the current site.
type IdenTrust int

const (
	TrustUnknown IdenTrust = iota
	TrustLearned
	TrustConfirmed
)

func (t IdenTrust) String() string {
	switch t {
	case TrustLearned:
		return "learned"
	case TrustConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// IdenEntry maps a channel identifier to RF parameters.
type IdenEntry struct {
	BaseHz    int64
	SpacingHz int64
	OffsetHz  int64
	TDMA      bool
	Slots     int // slots per carrier, 1 for FDMA
	Trust     IdenTrust
}

// ErrIdenUnknown is returned when a channel references an IDEN that has not
// been learned, or one whose trust is insufficient under the current policy.
var ErrIdenUnknown = errors.New("trunk: iden not usable")

// IdenTable holds the 16 per-site channel identity entries.
type IdenTable struct {
	entries [16]IdenEntry
}

// Learn records parameters for an iden. A repeat broadcast with identical
// parameters promotes the entry to confirmed; changed parameters demote it
// back to learned.
func (t *IdenTable) Learn(iden int, e IdenEntry) {
	if iden < 0 || iden > 15 {
		return
	}
	if e.Slots < 1 {
		e.Slots = 1
	}
	cur := &t.entries[iden]
	same := cur.BaseHz == e.BaseHz && cur.SpacingHz == e.SpacingHz &&
		cur.OffsetHz == e.OffsetHz && cur.TDMA == e.TDMA && cur.Slots == e.Slots
	if cur.Trust != TrustUnknown && same {
		cur.Trust = TrustConfirmed
		return
	}
	e.Trust = TrustLearned
	t.entries[iden] = e
}

// Confirm promotes an entry, used when the CC itself decodes on a frequency
// derived from it.
func (t *IdenTable) Confirm(iden int) {
	if iden < 0 || iden > 15 {
		return
	}
	if t.entries[iden].Trust == TrustLearned {
		t.entries[iden].Trust = TrustConfirmed
	}
}

// Entry returns a copy of the entry for an iden.
func (t *IdenTable) Entry(iden int) IdenEntry {
	if iden < 0 || iden > 15 {
		return IdenEntry{}
	}
	return t.entries[iden]
}

// Frequency resolves a 16-bit channel (iden in the high nibble) to a
// downlink frequency and TDMA slot. In trusted mode only confirmed entries
// resolve; relaxed mode also accepts learned-unconfirmed entries.
func (t *IdenTable) Frequency(channel uint32, relaxed bool) (freqHz int64, slot int, tdma bool, err error) {
	iden := int(channel >> 12 & 0xF)
	ch := int64(channel & 0xFFF)
	e := t.entries[iden]
	switch e.Trust {
	case TrustConfirmed:
	case TrustLearned:
		if !relaxed {
			return 0, 0, false, ErrIdenUnknown
		}
	default:
		return 0, 0, false, ErrIdenUnknown
	}

	carrier := ch
	if e.TDMA && e.Slots > 1 {
		carrier = ch / int64(e.Slots)
		slot = int(ch % int64(e.Slots))
	}
	freqHz = e.BaseHz + e.OffsetHz + e.SpacingHz*carrier
	return freqHz, slot, e.TDMA, nil
}
