package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arancormonk/dsd-neo-sub003/internal/fec"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

func p2VoiceFrame(physSlot, chanType int, mac []bool) []Dibit {
	return append(append(
		buildP2Header(physSlot, chanType),
		buildP2MAC(mac, false)...),
		append(voiceDibits(p2VoiceDibits), voiceDibits(p2VoiceDibits)...)...)
}

func TestP25p2FACCHAddressesOwnSlot(t *testing.T) {
	env := newHarness(t)
	h := NewP25p2(env.deps)

	src := sourceOf(p2VoiceFrame(0, p2ChanFACCH, macPTTBits(AlgClear, 0, 52198, 1700234)))
	require.NoError(t, h.Process(SyncMatch{}, src))

	ev, ok := env.tsm.firstOf(trunk.EvPTT)
	require.True(t, ok)
	require.Equal(t, 0, ev.Slot)
	require.Equal(t, uint32(52198), ev.TG)
	require.Equal(t, uint32(1700234), ev.Source)
	require.Equal(t, uint32(52198), h.slots[0].tg)
}

func TestP25p2SACCHAddressesOppositeSlot(t *testing.T) {
	env := newHarness(t)
	h := NewP25p2(env.deps)

	src := sourceOf(p2VoiceFrame(0, p2ChanSACCH, macPTTBits(AlgClear, 0, 700, 42)))
	require.NoError(t, h.Process(SyncMatch{}, src))

	ev, ok := env.tsm.firstOf(trunk.EvPTT)
	require.True(t, ok)
	require.Equal(t, 1, ev.Slot, "SACCH signalling describes the other slot")
	require.Equal(t, uint32(700), h.slots[1].tg)
	require.Zero(t, h.slots[0].tg)
}

func TestP25p2PTTResetsCounters(t *testing.T) {
	env := newHarness(t)
	h := NewP25p2(env.deps)

	src := sourceOf(p2VoiceFrame(0, p2ChanFACCH, macPTTBits(AlgClear, 0, 100, 1)))
	require.NoError(t, h.Process(SyncMatch{}, src))
	require.Equal(t, 2, h.slots[0].voiceFrames)

	// A fresh PTT restarts the transmission counters.
	src = sourceOf(p2VoiceFrame(0, p2ChanFACCH, macPTTBits(AlgClear, 0, 100, 2)))
	require.NoError(t, h.Process(SyncMatch{}, src))
	require.Equal(t, 2, h.slots[0].voiceFrames)
}

func TestP25p2EndPTTClearsKeys(t *testing.T) {
	env := newHarness(t)
	env.deps.Keys.Load(0x0005, make([]byte, 32))
	h := NewP25p2(env.deps)

	src := sourceOf(p2VoiceFrame(1, p2ChanFACCH, macPTTBits(AlgAES256, 0x0005, 100, 1)))
	require.NoError(t, h.Process(SyncMatch{}, src))
	require.Equal(t, byte(AlgAES256), h.slots[1].alg)

	src = sourceOf(p2VoiceFrame(1, p2ChanFACCH, macEndPTTBits(100, 1)))
	require.NoError(t, h.Process(SyncMatch{}, src))

	ev, ok := env.tsm.firstOf(trunk.EvEnd)
	require.True(t, ok)
	require.Equal(t, 1, ev.Slot)
	require.Equal(t, uint32(100), ev.TG)
	require.Zero(t, h.slots[1].alg, "END_PTT retires the key context")
	require.Zero(t, h.slots[1].kid)
}

func TestP25p2EncryptedWithoutKeyMutesSlot(t *testing.T) {
	env := newHarness(t)
	h := NewP25p2(env.deps)

	src := sourceOf(p2VoiceFrame(0, p2ChanFACCH, macPTTBits(AlgAES256, 0x0009, 300, 1)))
	require.NoError(t, h.Process(SyncMatch{}, src))

	require.True(t, h.slots[0].muted)
	require.Empty(t, env.voice.frames)
	require.Equal(t, "DE", env.groups.ModeOf(300))
}

func TestP25p2VoiceFlowsPerSlot(t *testing.T) {
	env := newHarness(t)
	h := NewP25p2(env.deps)

	src := sourceOf(p2VoiceFrame(1, p2ChanFACCH, macPTTBits(AlgClear, 0, 100, 1)))
	require.NoError(t, h.Process(SyncMatch{}, src))

	require.Len(t, env.voice.frames, 2)
	for _, f := range env.voice.frames {
		require.Equal(t, 1, f.slot)
	}
}

func TestP25p2MACActivityEvents(t *testing.T) {
	env := newHarness(t)
	h := NewP25p2(env.deps)

	for _, tc := range []struct {
		op   byte
		kind trunk.EventKind
	}{
		{macActive, trunk.EvActive},
		{macIdle, trunk.EvIdle},
		{macHangtime, trunk.EvIdle},
		{macSignal, trunk.EvVCSync},
	} {
		env.tsm.events = nil
		src := sourceOf(p2VoiceFrame(0, p2ChanFACCH, macOpcodeBits(tc.op)))
		require.NoError(t, h.Process(SyncMatch{}, src))
		_, ok := env.tsm.firstOf(tc.kind)
		require.True(t, ok, "opcode 0x%02X", tc.op)
	}
}

func TestP25p2LCCHGrant(t *testing.T) {
	env := newHarness(t)
	h := NewP25p2(env.deps)

	bits := macOpcodeBits(macGrant)
	copyBitsUint(bits[8:24], 0x100A)
	copyBitsUint(bits[24:40], 52198)
	copyBitsUint(bits[40:64], 0x19F10A)

	src := sourceOf(buildP2Header(0, p2ChanLCCH), buildP2MAC(bits, true))
	require.NoError(t, h.Process(SyncMatch{}, src))

	_, ok := env.tsm.firstOf(trunk.EvCCSync)
	require.True(t, ok)
	ev, ok := env.tsm.firstOf(trunk.EvGrant)
	require.True(t, ok)
	require.Equal(t, uint32(0x100A), ev.Channel)
	require.Equal(t, uint32(52198), ev.TG)
}

func TestP25p2RejectsBadMAC(t *testing.T) {
	env := newHarness(t)
	h := NewP25p2(env.deps)

	frame := p2VoiceFrame(0, p2ChanFACCH, macPTTBits(AlgClear, 0, 100, 1))
	frame[5].Value = invertDibit(frame[5].Value)
	src := sourceOf(frame)
	require.Error(t, h.Process(SyncMatch{}, src))
	require.Positive(t, h.FECErrors())
	require.Zero(t, env.tsm.countOf(trunk.EvPTT))
}

func copyBitsUint(dst []bool, v uint32) {
	fec.UintToBits(v, dst, len(dst))
}
