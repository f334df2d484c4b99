package trunk

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSink struct {
	tunes []int64
	tdmas []bool
	fail  bool
}

func (s *fakeSink) Tune(freqHz int64, tdma bool) error {
	if s.fail {
		return errors.New("radio unavailable")
	}
	s.tunes = append(s.tunes, freqHz)
	s.tdmas = append(s.tdmas, tdma)
	return nil
}

type fakeGroups map[uint32]string

func (g fakeGroups) ModeOf(tg uint32) string { return g[tg] }

func (g fakeGroups) Known(tg uint32) bool {
	_, ok := g[tg]
	return ok
}

type testClock struct{ now time.Time }

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTSM(cfg Config, sink TuneSink, groups GroupPolicy) (*TSM, *testClock) {
	m := New(cfg, sink, groups, zerolog.Nop())
	clk := newTestClock()
	m.SetClock(func() time.Time { return clk.now })
	return m, clk
}

// learnConfirmedIden installs IDEN 1 with the standard test parameters and
// confirms it.
func learnConfirmedIden(m *TSM) {
	e := IdenEntry{BaseHz: 851_006_250, SpacingHz: 6_250, OffsetHz: -45_000_000, Slots: 1}
	m.Iden.Learn(1, e)
	m.Iden.Learn(1, e)
}

func TestGrantTunesAndIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	m, _ := newTestTSM(DefaultConfig(), sink, nil)
	learnConfirmedIden(m)
	m.SetCCFrequency(852_000_000)

	m.Event(Event{Kind: EvCCSync})
	if m.State() != StateOnCC {
		t.Fatalf("state %v after CC sync", m.State())
	}

	grant := Event{Kind: EvGrant, Channel: 0x1000, TG: 1001, Source: 42, IsGroup: true}
	m.Event(grant)
	if m.State() != StateTuned {
		t.Fatalf("state %v after grant", m.State())
	}
	wantFreq := int64(851_006_250 - 45_000_000)
	if m.VCFrequency() != wantFreq {
		t.Fatalf("VC freq %d, want %d", m.VCFrequency(), wantFreq)
	}
	if len(sink.tunes) != 1 || sink.tunes[0] != wantFreq {
		t.Fatalf("tunes %v", sink.tunes)
	}

	// Same (freq, tg) again: no state change, no extra retune.
	m.Event(grant)
	if len(sink.tunes) != 1 {
		t.Fatalf("duplicate grant retuned: %v", sink.tunes)
	}
}

func TestGrantChannelSpacing(t *testing.T) {
	sink := &fakeSink{}
	m, _ := newTestTSM(DefaultConfig(), sink, nil)
	learnConfirmedIden(m)
	m.Event(Event{Kind: EvCCSync})

	m.Event(Event{Kind: EvGrant, Channel: 0x1004, TG: 7, IsGroup: true})
	want := int64(851_006_250 - 45_000_000 + 4*6_250)
	if m.VCFrequency() != want {
		t.Fatalf("VC freq %d, want %d", m.VCFrequency(), want)
	}
}

func TestGrantPolicyFilters(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ev   Event
		tag  string
	}{
		{
			name: "data call denied",
			ev:   Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true, SvcOpts: svcData},
			tag:  "deny:data-call",
		},
		{
			name: "private call denied",
			ev:   Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: false},
			tag:  "deny:private-call",
		},
		{
			name: "encrypted group denied",
			ev:   Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true, SvcOpts: svcEncrypted},
			tag:  "deny:enc-call",
		},
		{
			name: "tg hold rejects others",
			cfg:  Config{TGHold: 99},
			ev:   Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true},
			tag:  "deny:tg-hold",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &fakeSink{}
			m, _ := newTestTSM(tc.cfg, sink, nil)
			learnConfirmedIden(m)
			m.Event(Event{Kind: EvCCSync})

			m.Event(tc.ev)
			if m.State() != StateOnCC {
				t.Fatalf("state %v, want ON_CC", m.State())
			}
			if len(sink.tunes) != 0 {
				t.Fatalf("filtered grant retuned: %v", sink.tunes)
			}
			last, ok := m.Tags.Last()
			if !ok || last.Tag != tc.tag {
				t.Fatalf("tag %q, want %q", last.Tag, tc.tag)
			}
		})
	}
}

func TestGroupModesDenyGrants(t *testing.T) {
	groups := fakeGroups{10: "DE", 11: "B", 12: "A"}
	sink := &fakeSink{}
	m, _ := newTestTSM(DefaultConfig(), sink, groups)
	learnConfirmedIden(m)
	m.Event(Event{Kind: EvCCSync})

	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 10, IsGroup: true})
	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 11, IsGroup: true})
	if len(sink.tunes) != 0 {
		t.Fatalf("denied TGs retuned: %v", sink.tunes)
	}
	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 12, IsGroup: true})
	if len(sink.tunes) != 1 {
		t.Fatalf("allowed TG not tuned: %v", sink.tunes)
	}
}

func TestAllowListBlocksUnknownGroups(t *testing.T) {
	groups := fakeGroups{12: "A"}
	sink := &fakeSink{}
	cfg := DefaultConfig()
	cfg.AllowListOnly = true
	m, _ := newTestTSM(cfg, sink, groups)
	learnConfirmedIden(m)
	m.Event(Event{Kind: EvCCSync})

	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 99, IsGroup: true})
	if len(sink.tunes) != 0 {
		t.Fatalf("unlisted TG retuned: %v", sink.tunes)
	}
	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 12, IsGroup: true})
	if len(sink.tunes) != 1 {
		t.Fatalf("listed TG not tuned: %v", sink.tunes)
	}
}

type fakeChannelMap struct {
	fakeGroups
	freqs map[uint32]int64
}

func (g fakeChannelMap) ChannelFreq(ch uint32) (int64, bool) {
	f, ok := g.freqs[ch]
	return f, ok
}

func TestGrantFallsBackToChannelMap(t *testing.T) {
	// EDACS-style systems broadcast no IDEN parameters; an LCN grant
	// resolves through the manually imported channel map instead.
	groups := fakeChannelMap{
		fakeGroups: fakeGroups{},
		freqs:      map[uint32]int64{22: 851_012_500},
	}
	sink := &fakeSink{}
	m, _ := newTestTSM(DefaultConfig(), sink, groups)
	m.Event(Event{Kind: EvCCSync})

	m.Event(Event{Kind: EvGrant, Channel: 22, TG: 300, IsGroup: true})
	if m.State() != StateTuned {
		t.Fatalf("state %v, want TUNED via channel map", m.State())
	}
	if m.VCFrequency() != 851_012_500 {
		t.Fatalf("VC freq %d, want 851012500", m.VCFrequency())
	}

	// An unmapped LCN still tags iden-unknown.
	m.Event(Event{Kind: EvTDU})
	m.Event(Event{Kind: EvGrant, Channel: 23, TG: 300, IsGroup: true})
	if m.State() != StateOnCC {
		t.Fatalf("state %v after unmapped LCN", m.State())
	}
	last, _ := m.Tags.Last()
	if last.Tag != "iden-unknown" {
		t.Fatalf("tag %q, want iden-unknown", last.Tag)
	}
}

func TestPatchClearOverridesEncLockout(t *testing.T) {
	sink := &fakeSink{}
	m, _ := newTestTSM(DefaultConfig(), sink, nil)
	learnConfirmedIden(m)
	m.Event(Event{Kind: EvCCSync})
	m.PatchTable.Upsert(Patch{SGID: 500, IsPatch: true, KeyClear: true})

	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 500, IsGroup: true, SvcOpts: svcEncrypted})
	if m.State() != StateTuned {
		t.Fatal("clear-keyed patch grant was filtered")
	}
}

func TestIdenTrustGate(t *testing.T) {
	sink := &fakeSink{}
	m, _ := newTestTSM(DefaultConfig(), sink, nil)
	// Learned once: unconfirmed.
	m.Iden.Learn(1, IdenEntry{BaseHz: 851_006_250, SpacingHz: 6_250, Slots: 1})
	m.Event(Event{Kind: EvCCSync})

	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})
	if m.State() != StateOnCC || len(sink.tunes) != 0 {
		t.Fatal("unconfirmed IDEN used in trusted mode")
	}

	// Relaxed policy accepts learned entries.
	cfg := DefaultConfig()
	cfg.RelaxedIdenTrust = true
	m2, _ := newTestTSM(cfg, sink, nil)
	m2.Iden.Learn(1, IdenEntry{BaseHz: 851_006_250, SpacingHz: 6_250, Slots: 1})
	m2.Event(Event{Kind: EvCCSync})
	m2.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})
	if m2.State() != StateTuned {
		t.Fatal("relaxed mode rejected learned IDEN")
	}
}

func TestGrantTimeoutReleases(t *testing.T) {
	sink := &fakeSink{}
	m, clk := newTestTSM(DefaultConfig(), sink, nil)
	learnConfirmedIden(m)
	m.SetCCFrequency(852_000_000)
	m.Event(Event{Kind: EvCCSync})
	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})

	clk.advance(3500 * time.Millisecond)
	m.Tick()
	if m.State() != StateOnCC {
		t.Fatalf("state %v after grant timeout, want ON_CC", m.State())
	}
	last, _ := m.Tags.Last()
	if last.Tag != "grant-timeout" {
		t.Fatalf("tag %q", last.Tag)
	}
	// The release retuned back to the CC.
	if sink.tunes[len(sink.tunes)-1] != 852_000_000 {
		t.Fatalf("no CC return: %v", sink.tunes)
	}
}

func TestHangtimeReleasesAfterVoiceStops(t *testing.T) {
	sink := &fakeSink{}
	m, clk := newTestTSM(DefaultConfig(), sink, nil)
	learnConfirmedIden(m)
	m.SetCCFrequency(852_000_000)
	m.Event(Event{Kind: EvCCSync})
	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})

	m.Event(Event{Kind: EvPTT, Slot: 0, TG: 1})
	clk.advance(time.Second)
	m.Event(Event{Kind: EvActive, Slot: 0})

	// Voice keeps the call alive past the grant timeout.
	clk.advance(1500 * time.Millisecond)
	m.Tick()
	if m.State() != StateTuned {
		t.Fatalf("state %v while voice recent", m.State())
	}

	clk.advance(time.Second)
	m.Tick()
	if m.State() != StateOnCC {
		t.Fatalf("state %v after hangtime, want ON_CC", m.State())
	}
	last, _ := m.Tags.Last()
	if last.Tag != "hangtime" {
		t.Fatalf("tag %q", last.Tag)
	}
}

func TestHangtimeExtensionUnderHighErrorRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HangtimeExt = 2 * time.Second
	sink := &fakeSink{}
	m, clk := newTestTSM(cfg, sink, nil)
	learnConfirmedIden(m)
	m.Event(Event{Kind: EvCCSync})
	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})
	m.Event(Event{Kind: EvPTT, Slot: 0})
	m.SetVoiceErrorHot(true)

	clk.advance(3 * time.Second)
	m.Tick()
	if m.State() != StateTuned {
		t.Fatal("extended hangtime did not hold the call")
	}
	clk.advance(2 * time.Second)
	m.Tick()
	if m.State() != StateOnCC {
		t.Fatal("call not released after extended hangtime")
	}
}

func TestExplicitEndSlotSemantics(t *testing.T) {
	t.Run("other slot never active releases", func(t *testing.T) {
		sink := &fakeSink{}
		m, _ := newTestTSM(DefaultConfig(), sink, nil)
		learnConfirmedIden(m)
		m.Event(Event{Kind: EvCCSync})
		m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})
		m.Event(Event{Kind: EvPTT, Slot: 0})

		m.Event(Event{Kind: EvEnd, Slot: 0})
		if m.State() != StateOnCC {
			t.Fatalf("state %v, want immediate release", m.State())
		}
	})

	t.Run("other slot mid-call keeps the tune", func(t *testing.T) {
		sink := &fakeSink{}
		m, _ := newTestTSM(DefaultConfig(), sink, nil)
		learnConfirmedIden(m)
		m.Event(Event{Kind: EvCCSync})
		m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})
		m.Event(Event{Kind: EvPTT, Slot: 0})
		m.Event(Event{Kind: EvPTT, Slot: 1})

		m.Event(Event{Kind: EvEnd, Slot: 0})
		if m.State() != StateTuned {
			t.Fatalf("state %v, want still TUNED", m.State())
		}
		if m.AudioAllowed(0) {
			t.Fatal("ended slot's audio gate still open")
		}
		if !m.AudioAllowed(1) {
			t.Fatal("other slot's audio gate cleared")
		}
	})

	t.Run("brief ACTIVE counts as activity", func(t *testing.T) {
		sink := &fakeSink{}
		m, _ := newTestTSM(DefaultConfig(), sink, nil)
		learnConfirmedIden(m)
		m.Event(Event{Kind: EvCCSync})
		m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})
		m.Event(Event{Kind: EvPTT, Slot: 0})
		m.Event(Event{Kind: EvActive, Slot: 1}) // never a PTT

		m.Event(Event{Kind: EvEnd, Slot: 0})
		if m.State() != StateTuned {
			t.Fatal("ACTIVE-only slot did not count as activity")
		}
	})
}

func TestTDUReleasesSlotZero(t *testing.T) {
	sink := &fakeSink{}
	m, _ := newTestTSM(DefaultConfig(), sink, nil)
	learnConfirmedIden(m)
	m.SetCCFrequency(852_000_000)
	m.Event(Event{Kind: EvCCSync})
	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})
	m.Event(Event{Kind: EvPTT, Slot: 0})

	m.Event(Event{Kind: EvTDU})
	if m.State() != StateOnCC {
		t.Fatalf("state %v after TDU", m.State())
	}
}

func TestReleaseGuardSinglePerCycle(t *testing.T) {
	sink := &fakeSink{}
	m, clk := newTestTSM(DefaultConfig(), sink, nil)
	learnConfirmedIden(m)
	m.SetCCFrequency(852_000_000)
	m.Event(Event{Kind: EvCCSync})
	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})

	before := len(sink.tunes)
	m.RequestRelease()
	m.RequestRelease() // duplicate request coalesces
	m.Tick()
	m.Tick()
	clk.advance(time.Second)
	m.Tick()

	ccReturns := 0
	for _, f := range sink.tunes[before:] {
		if f == 852_000_000 {
			ccReturns++
		}
	}
	if ccReturns != 1 {
		t.Fatalf("%d CC returns, want exactly 1 (%v)", ccReturns, sink.tunes)
	}
}

func TestCCGraceDrivesHuntingWithCooldown(t *testing.T) {
	sink := &fakeSink{}
	m, clk := newTestTSM(DefaultConfig(), sink, nil)
	m.SetCCFrequency(851_012_500)
	m.Cands.Add(851_025_000)
	m.Cands.Add(851_037_500)
	m.Event(Event{Kind: EvCCSync})

	// No sync for longer than the grace window.
	clk.advance(6 * time.Second)
	m.Tick()
	if m.State() != StateHunting {
		t.Fatalf("state %v, want HUNTING", m.State())
	}

	// First candidate tried immediately.
	m.Tick()
	if len(sink.tunes) != 1 {
		t.Fatalf("tunes %v, want first candidate try", sink.tunes)
	}
	firstTry := sink.tunes[0]

	// Within the evaluation window nothing else happens.
	clk.advance(2 * time.Second)
	m.Tick()
	if len(sink.tunes) != 1 {
		t.Fatalf("extra tune inside eval window: %v", sink.tunes)
	}

	// After the window the candidate cools down; the next try waits for the
	// hunt interval.
	clk.advance(2 * time.Second)
	m.Tick()
	if !m.Cands.InCooldown(firstTry, clk.now) {
		t.Fatal("failed candidate not in cooldown")
	}
	clk.advance(2 * time.Second)
	m.Tick()
	if len(sink.tunes) != 2 {
		t.Fatalf("tunes %v, want second candidate try", sink.tunes)
	}
	if sink.tunes[1] == firstTry {
		t.Fatal("cooled-down candidate retried")
	}

	// A CC sync on the hunted frequency returns to ON_CC.
	m.Event(Event{Kind: EvCCSync})
	if m.State() != StateOnCC {
		t.Fatalf("state %v after hunt success", m.State())
	}
	if m.CCFrequency() != sink.tunes[1] {
		t.Fatalf("CC freq %d, want %d", m.CCFrequency(), sink.tunes[1])
	}
}

func TestCandidateCooldownDeadline(t *testing.T) {
	var c Candidates
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c.Add(851_000_000)
	c.Cooldown(851_000_000, now)

	if _, ok := c.NextReady(now.Add(9 * time.Second)); ok {
		t.Fatal("candidate retried before the 10s cooldown")
	}
	if f, ok := c.NextReady(now.Add(10*time.Second + time.Millisecond)); !ok || f != 851_000_000 {
		t.Fatalf("candidate not available after cooldown: %v %v", f, ok)
	}
}

func TestAffiliationTTL(t *testing.T) {
	var a Affiliations
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	a.Touch(42, now)
	if !a.Active(42, now.Add(14*time.Minute)) {
		t.Fatal("entry expired early")
	}
	if a.Active(42, now.Add(16*time.Minute)) {
		t.Fatal("entry outlived the TTL")
	}
	a.Prune(now.Add(16 * time.Minute))
	if a.Len() != 0 {
		t.Fatal("prune kept an expired entry")
	}
}

func TestRetuneFailureKeepsState(t *testing.T) {
	sink := &fakeSink{fail: true}
	m, _ := newTestTSM(DefaultConfig(), sink, nil)
	learnConfirmedIden(m)
	m.Event(Event{Kind: EvCCSync})

	m.Event(Event{Kind: EvGrant, Channel: 0x1000, TG: 1, IsGroup: true})
	if m.State() != StateOnCC {
		t.Fatalf("state %v after failed retune, want ON_CC", m.State())
	}
	last, _ := m.Tags.Last()
	if last.Tag != "retune-failed" {
		t.Fatalf("tag %q", last.Tag)
	}
}
