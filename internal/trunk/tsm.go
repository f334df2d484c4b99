// Package trunk implements the trunking state machine: control-channel
// following, grant filtering, voice-channel retunes and the hunt for a lost
// control channel.
//
// All state mutation funnels through Event and Tick, which run on the decode
// goroutine. The release path is additionally guarded by an atomic flag so a
// future watchdog requesting teardown concurrently cannot double-release.
package trunk

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State is the machine's position.
type State int

const (
	StateIdle State = iota
	StateOnCC
	StateTuned
	StateHunting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOnCC:
		return "ON_CC"
	case StateTuned:
		return "TUNED"
	case StateHunting:
		return "HUNTING"
	}
	return "unknown"
}

// EventKind tags an Event.
type EventKind int

const (
	EvGrant EventKind = iota
	EvPTT
	EvActive
	EvEnd
	EvIdle
	EvTDU
	EvCCSync
	EvVCSync
	EvSyncLost
	EvEnc
	EvIden
	EvNeighbor
)

// Event is one happening reported by the frame layer.
type Event struct {
	Kind    EventKind
	Channel uint32
	TG      uint32
	Source  uint32
	SvcOpts byte
	IsGroup bool
	Slot    int
	AlgID   byte
	KeyID   uint16

	// IDEN_UP payload, valid for EvIden.
	IdenNum int
	Iden    IdenEntry
}

// Service-option bits checked by the grant policy.
const (
	svcData      = 0x10
	svcEncrypted = 0x40
)

// TuneSink receives retune commands. Production wires the radio driver;
// tests substitute a recorder.
type TuneSink interface {
	Tune(freqHz int64, tdma bool) error
}

// GroupPolicy answers mode lookups against the imported group list. Modes
// follow the CSV convention: "" or "A" allowed, "DE" denied-encrypted, "B"
// blocked.
type GroupPolicy interface {
	ModeOf(tg uint32) string
}

// Config is the immutable-after-init policy and timer set.
type Config struct {
	Hangtime     time.Duration // release this long after voice stops
	GrantTimeout time.Duration // release if no voice after tune
	CCGrace      time.Duration // leave ON_CC after this long without CC sync
	HangtimeExt  time.Duration // extension applied under high voice error rate

	TuneDataCalls    bool
	TunePrivateCalls bool
	TuneEncCalls     bool
	AllowListOnly    bool // only tune group calls present in the group list
	RelaxedIdenTrust bool

	TGHold uint32 // nonzero holds to one talkgroup
}

// DefaultConfig carries the standard timer values.
func DefaultConfig() Config {
	return Config{
		Hangtime:     2 * time.Second,
		GrantTimeout: 3 * time.Second,
		CCGrace:      5 * time.Second,
	}
}

type slotState struct {
	voiceActive  bool
	lastActive   time.Time
	audioAllowed bool
	tg           uint32
	algID        byte
	keyID        uint16
}

// AudioFlusher drains partially buffered audio for a slot before a release
// clears the gates. Optional.
type AudioFlusher interface {
	FlushSlot(slot int)
}

// TSM is the trunking state machine.
type TSM struct {
	cfg    Config
	log    zerolog.Logger
	sink   TuneSink
	groups GroupPolicy
	flush  AudioFlusher
	clock  func() time.Time

	state State

	Iden       IdenTable
	Cands      Candidates
	Affils     Affiliations
	GroupAff   GroupAffiliations
	PatchTable Patches
	Tags       StatusTags

	ccFreqHz   int64
	vcFreqHz   int64
	vcChannel  uint32
	vcTG       uint32
	vcSource   uint32
	vcTDMA     bool
	voiceSeen  bool
	errRateHot bool

	slots [2]slotState

	tCCSync  time.Time
	tTune    time.Time
	tVoice   time.Time
	tHuntTry time.Time
	huntFreq int64

	releasing atomic.Bool
	// forceRelease is the external teardown request flag: other subsystems
	// set it, only the TSM clears it.
	forceRelease atomic.Bool
}

// New builds the machine. sink is required; groups and flush may be nil.
func New(cfg Config, sink TuneSink, groups GroupPolicy, log zerolog.Logger) *TSM {
	if cfg.Hangtime == 0 {
		cfg.Hangtime = 2 * time.Second
	}
	if cfg.GrantTimeout == 0 {
		cfg.GrantTimeout = 3 * time.Second
	}
	if cfg.CCGrace == 0 {
		cfg.CCGrace = 5 * time.Second
	}
	return &TSM{
		cfg:    cfg,
		sink:   sink,
		groups: groups,
		clock:  time.Now,
		log:    log.With().Str("component", "tsm").Logger(),
	}
}

// SetClock injects a time source for tests.
func (m *TSM) SetClock(clock func() time.Time) { m.clock = clock }

// SetAudioFlusher wires the pre-release audio drain.
func (m *TSM) SetAudioFlusher(f AudioFlusher) { m.flush = f }

// State reports the current state.
func (m *TSM) State() State { return m.state }

// VCFrequency reports the tuned voice frequency, 0 when not tuned.
func (m *TSM) VCFrequency() int64 {
	if m.state != StateTuned {
		return 0
	}
	return m.vcFreqHz
}

// CCFrequency reports the last known control-channel frequency.
func (m *TSM) CCFrequency() int64 { return m.ccFreqHz }

// VCTalkgroup reports the talkgroup of the tuned call, 0 when not tuned.
func (m *TSM) VCTalkgroup() uint32 {
	if m.state != StateTuned {
		return 0
	}
	return m.vcTG
}

// VCChannel reports the channel number of the tuned call.
func (m *TSM) VCChannel() uint32 {
	if m.state != StateTuned {
		return 0
	}
	return m.vcChannel
}

// AudioAllowed reports the per-slot audio gate.
func (m *TSM) AudioAllowed(slot int) bool {
	if slot < 0 || slot > 1 {
		return false
	}
	return m.slots[slot].audioAllowed
}

// SetAudioAllowed is written by the encryption-lockout and MAC handlers.
func (m *TSM) SetAudioAllowed(slot int, ok bool) {
	if slot >= 0 && slot <= 1 {
		m.slots[slot].audioAllowed = ok
	}
}

// SetCCFrequency seeds the control channel, used at startup from config.
func (m *TSM) SetCCFrequency(freqHz int64) {
	m.ccFreqHz = freqHz
	m.Cands.Add(freqHz)
}

// SetVoiceErrorHot feeds the P25p1 voice-error signal that extends hangtime.
func (m *TSM) SetVoiceErrorHot(hot bool) { m.errRateHot = hot }

// RequestRelease lets another subsystem ask for a teardown; the next tick
// honors it. Safe to call from any goroutine.
func (m *TSM) RequestRelease() { m.forceRelease.Store(true) }

// AddPatch merges a member group into a super-group patch entry.
func (m *TSM) AddPatch(sg, wg uint32) {
	p, _ := m.PatchTable.Get(sg)
	p.SGID = sg
	p.IsPatch = true
	for _, w := range p.WGIDs {
		if w == wg {
			m.PatchTable.Upsert(p)
			return
		}
	}
	p.WGIDs = append(p.WGIDs, wg)
	m.PatchTable.Upsert(p)
}

// Event feeds one frame-layer event into the machine.
func (m *TSM) Event(ev Event) {
	now := m.clock()
	switch ev.Kind {
	case EvCCSync:
		m.tCCSync = now
		switch m.state {
		case StateIdle:
			m.state = StateOnCC
			m.log.Info().Msg("control channel acquired")
		case StateHunting:
			m.state = StateOnCC
			m.ccFreqHz = m.huntFreq
			m.huntFreq = 0
			m.log.Info().Int64("freq", m.ccFreqHz).Msg("control channel found by hunt")
		}
	case EvGrant:
		m.handleGrant(ev, now)
	case EvPTT:
		m.touchSlot(ev.Slot, now)
		m.slotFor(ev.Slot).algID = ev.AlgID
		m.slotFor(ev.Slot).keyID = ev.KeyID
		if ev.TG != 0 {
			m.slotFor(ev.Slot).tg = ev.TG
		}
	case EvActive, EvVCSync:
		m.touchSlot(ev.Slot, now)
	case EvEnd:
		m.explicitEnd(ev.Slot, now)
	case EvTDU:
		m.explicitEnd(0, now)
	case EvIdle:
		m.slotFor(ev.Slot).voiceActive = false
	case EvSyncLost:
		// State change is timer-driven; losing sync only stops the
		// freshness updates.
	case EvEnc:
		s := m.slotFor(ev.Slot)
		s.algID = ev.AlgID
		s.keyID = ev.KeyID
		if ev.TG != 0 {
			s.tg = ev.TG
		}
	case EvIden:
		m.Iden.Learn(ev.IdenNum, ev.Iden)
	case EvNeighbor:
		// Neighbor and secondary CC broadcasts seed the hunt list. Learned
		// trust is enough here; a candidate only graduates by decoding.
		if freq, _, _, err := m.Iden.Frequency(ev.Channel, true); err == nil {
			m.Cands.Add(freq)
		}
	}
	if ev.Source != 0 {
		m.Affils.Touch(ev.Source, now)
		if ev.TG != 0 && ev.IsGroup {
			m.GroupAff.Touch(ev.Source, ev.TG, now)
		}
	}
}

func (m *TSM) slotFor(slot int) *slotState {
	if slot < 0 || slot > 1 {
		slot = 0
	}
	return &m.slots[slot]
}

func (m *TSM) touchSlot(slot int, now time.Time) {
	s := m.slotFor(slot)
	s.voiceActive = true
	s.lastActive = now
	m.tVoice = now
	m.voiceSeen = true
}

// explicitEnd handles MAC_END_PTT and TDU: release immediately unless the
// other slot is mid-call, in which case only the ending slot's gate clears.
// A slot that has seen any activity this call counts as active even without
// a PTT of its own.
func (m *TSM) explicitEnd(slot int, now time.Time) {
	s := m.slotFor(slot)
	s.voiceActive = false
	s.audioAllowed = false

	other := m.slotFor(1 - slot)
	if m.state != StateTuned {
		return
	}
	if other.voiceActive && !other.lastActive.IsZero() {
		m.log.Debug().Int("slot", slot).Msg("slot ended, other slot still active")
		return
	}
	m.release("call-end", now)
}

// handleGrant applies the policy gate and retunes when allowed.
func (m *TSM) handleGrant(ev Event, now time.Time) {
	if m.state != StateOnCC && m.state != StateTuned {
		return
	}
	if reason, ok := m.grantAllowed(ev); !ok {
		m.Tags.Push("deny:"+reason, now)
		m.log.Debug().Uint32("tg", ev.TG).Str("reason", reason).Msg("grant filtered")
		return
	}

	freq, slot, tdma, err := m.Iden.Frequency(ev.Channel, m.cfg.RelaxedIdenTrust)
	if err != nil {
		// Systems without IDEN broadcasts (EDACS LCNs) resolve through the
		// manually imported channel map instead.
		f, ok := m.channelMapFreq(ev.Channel)
		if !ok {
			m.Tags.Push("iden-unknown", now)
			return
		}
		freq, slot, tdma = f, 0, false
	}

	// Idempotent: a duplicate grant for the current (freq, tg) is a no-op.
	if m.state == StateTuned && m.vcFreqHz == freq && m.vcTG == ev.TG {
		return
	}

	if err := m.sink.Tune(freq, tdma); err != nil {
		m.Tags.Push("retune-failed", now)
		m.log.Warn().Err(err).Int64("freq", freq).Msg("voice retune failed")
		return
	}

	m.vcFreqHz = freq
	m.vcChannel = ev.Channel
	m.vcTG = ev.TG
	m.vcSource = ev.Source
	m.vcTDMA = tdma
	m.voiceSeen = false
	m.tTune = now
	m.slots = [2]slotState{}
	m.slots[0].audioAllowed = true
	m.slots[1].audioAllowed = true
	if tdma {
		m.slotFor(slot).tg = ev.TG
	} else {
		m.slots[0].tg = ev.TG
	}
	m.state = StateTuned
	m.log.Info().
		Int64("freq", freq).
		Uint32("tg", ev.TG).
		Uint32("src", ev.Source).
		Bool("tdma", tdma).
		Msg("voice grant tuned")
}

// channelMapFreq consults the group list's manual channel map when it
// carries one.
func (m *TSM) channelMapFreq(ch uint32) (int64, bool) {
	cm, ok := m.groups.(interface {
		ChannelFreq(ch uint32) (int64, bool)
	})
	if !ok {
		return 0, false
	}
	return cm.ChannelFreq(ch)
}

// grantAllowed evaluates the policy chain. The returned reason names the
// first failing rule.
func (m *TSM) grantAllowed(ev Event) (string, bool) {
	// A hold admits the held TG and individual calls addressed to it.
	if m.cfg.TGHold != 0 && ev.TG != m.cfg.TGHold {
		return "tg-hold", false
	}
	if ev.SvcOpts&svcData != 0 && !m.cfg.TuneDataCalls {
		return "data-call", false
	}
	if !ev.IsGroup {
		if !m.cfg.TunePrivateCalls {
			return "private-call", false
		}
		if ev.SvcOpts&svcEncrypted != 0 && !m.cfg.TuneEncCalls {
			return "private-enc", false
		}
	}
	if ev.IsGroup && ev.SvcOpts&svcEncrypted != 0 && !m.cfg.TuneEncCalls {
		// A patch whose key context is explicitly clear overrides lockout.
		if !m.PatchTable.KeyClearFor(ev.TG) {
			return "enc-call", false
		}
	}
	if m.groups != nil {
		switch m.groups.ModeOf(ev.TG) {
		case "DE":
			return "group-de", false
		case "B":
			return "group-blocked", false
		}
		if m.cfg.AllowListOnly && ev.IsGroup {
			if k, ok := m.groups.(interface{ Known(tg uint32) bool }); ok && !k.Known(ev.TG) {
				return "not-on-allow-list", false
			}
		}
	}
	return "", true
}

// release returns to the control channel. The atomic guard ensures exactly
// one release completes even if a watchdog races the decode thread.
func (m *TSM) release(reason string, now time.Time) {
	if !m.releasing.CompareAndSwap(false, true) {
		return
	}
	defer m.releasing.Store(false)

	if m.flush != nil && m.vcTDMA {
		// Drain buffered TDMA audio so short calls keep their tail.
		m.flush.FlushSlot(0)
		m.flush.FlushSlot(1)
	}
	for i := range m.slots {
		m.slots[i] = slotState{}
	}
	m.vcFreqHz = 0
	m.vcChannel = 0
	m.vcTG = 0
	m.vcSource = 0
	m.voiceSeen = false

	m.Tags.Push(reason, now)
	if m.ccFreqHz != 0 {
		if err := m.sink.Tune(m.ccFreqHz, false); err != nil {
			m.Tags.Push("cc-return-failed", now)
			m.log.Warn().Err(err).Msg("return to control channel failed")
		}
	}
	m.state = StateOnCC
	m.log.Info().Str("reason", reason).Msg("released voice channel")
}

// Tick drives the timers. Call at 1 Hz and after event batches.
func (m *TSM) Tick() {
	now := m.clock()

	if m.forceRelease.CompareAndSwap(true, false) && m.state == StateTuned {
		m.release("forced", now)
	}

	switch m.state {
	case StateTuned:
		hang := m.cfg.Hangtime
		if m.errRateHot && m.cfg.HangtimeExt > 0 {
			hang += m.cfg.HangtimeExt
		}
		switch {
		case !m.voiceSeen && now.Sub(m.tTune) > m.cfg.GrantTimeout:
			m.release("grant-timeout", now)
		case m.voiceSeen && now.Sub(m.tVoice) > hang:
			m.release("hangtime", now)
		}
	case StateOnCC:
		if !m.tCCSync.IsZero() && now.Sub(m.tCCSync) > m.cfg.CCGrace {
			m.state = StateHunting
			m.tHuntTry = time.Time{}
			m.Tags.Push("cc-lost", now)
			m.log.Warn().Msg("control channel lost, hunting")
		}
	case StateHunting:
		m.huntTick(now)
	}

	m.Affils.Prune(now)
	m.GroupAff.Prune(now)
}

// huntTick walks the candidate list: each try gets an evaluation window; a
// candidate that produced no CC sync by the end of its window cools down.
func (m *TSM) huntTick(now time.Time) {
	if m.huntFreq != 0 {
		if now.Sub(m.tHuntTry) < huntEvalWindow {
			return
		}
		m.Cands.Cooldown(m.huntFreq, now)
		m.log.Debug().Int64("freq", m.huntFreq).Msg("candidate failed, cooling down")
		m.huntFreq = 0
	}
	if !m.tHuntTry.IsZero() && now.Sub(m.tHuntTry) < huntInterval {
		return
	}
	freq, ok := m.Cands.NextReady(now)
	if !ok {
		return
	}
	if err := m.sink.Tune(freq, false); err != nil {
		m.Tags.Push("hunt-retune-failed", now)
		return
	}
	m.huntFreq = freq
	m.tHuntTry = now
	m.log.Info().Int64("freq", freq).Msg("trying control channel candidate")
}
