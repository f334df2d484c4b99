package frame

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo-sub003/internal/event"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

// Deps is the shared wiring every protocol handler receives.
type Deps struct {
	TSM    EventSink
	Groups GroupTable
	Voice  VoiceSink
	Ring   *event.Ring
	ELog   *event.Logger
	Keys   *Keystore
	Log    zerolog.Logger

	// FollowEncrypted keeps the receiver on an encrypted call with audio
	// muted instead of marking the group and releasing.
	FollowEncrypted bool

	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// audioGater is the optional slot-gate surface of the trunking machine.
type audioGater interface {
	SetAudioAllowed(slot int, ok bool)
}

// releaser is the optional teardown surface of the trunking machine.
type releaser interface {
	RequestRelease()
}

// Lockout enforces the encryption policy. An encrypted call with no usable
// key gets its audio gate closed; unless the operator opted to follow
// encrypted traffic, the talkgroup is also marked "DE" so future grants are
// filtered, and the receiver releases back to the control channel.
//
// The mark is idempotent per talkgroup: the group mode string is compared
// before writing, so re-decoding the same encryption sync emits at most one
// event and one writeback.
type Lockout struct {
	deps   *Deps
	marked map[uint32]bool
}

func newLockout(deps *Deps) *Lockout {
	return &Lockout{deps: deps, marked: make(map[uint32]bool)}
}

// Check evaluates one call's encryption parameters. It returns true when the
// audio for the slot must stay squelched.
func (l *Lockout) Check(proto Protocol, slot int, tg uint32, alg byte, keyID uint16) bool {
	d := l.deps
	if algClear(alg) {
		return false
	}
	if d.Keys != nil && d.Keys.HasKeyFor(alg, keyID) {
		return false
	}

	if g, ok := d.TSM.(audioGater); ok {
		g.SetAudioAllowed(slot, false)
	}
	d.TSM.Event(trunk.Event{Kind: trunk.EvEnc, Slot: slot, TG: tg, AlgID: alg, KeyID: keyID})

	if d.FollowEncrypted {
		return true
	}

	already := l.marked[tg]
	if !already && d.Groups != nil {
		already = d.Groups.ModeOf(tg) == "DE"
	}
	if !already {
		l.marked[tg] = true
		if d.Groups != nil {
			d.Groups.SetMode(tg, "DE")
		}
		if d.Ring != nil {
			rec := event.Record{
				Time:     d.now(),
				Protocol: proto.String(),
				TG:       tg,
				Target:   tg,
				Slot:     slot,
				AlgID:    alg,
				KeyID:    keyID,
				Summary:  fmt.Sprintf("encryption lockout TG %d", tg),
			}
			d.Ring.Push(rec)
			if d.ELog != nil {
				d.ELog.Log(&rec)
			}
		}
		d.Log.Info().
			Uint32("tg", tg).
			Str("alg", fmt.Sprintf("0x%02X", alg)).
			Str("kid", fmt.Sprintf("0x%04X", keyID)).
			Msg("encrypted call locked out")
	}
	if r, ok := d.TSM.(releaser); ok {
		r.RequestRelease()
	}
	return true
}
