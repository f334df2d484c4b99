package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

func TestNXDNLICHComplementGate(t *testing.T) {
	env := newHarness(t)
	h := NewNXDN(env.deps)

	lich := buildLICH(lichRCCH)
	lich[2].Value ^= 1
	src := sourceOf(lich, buildRCCH(nxdnIdle, 0, 0, 0))
	require.Error(t, h.Process(SyncMatch{}, src))
	require.Positive(t, h.FECErrors())
}

func TestNXDNVoiceGrant(t *testing.T) {
	env := newHarness(t)
	h := NewNXDN(env.deps)

	src := sourceOf(buildLICH(lichRCCH), buildRCCH(nxdnVoiceGnt, 0x0105, 2001, 44100))
	require.NoError(t, h.Process(SyncMatch{}, src))

	_, ok := env.tsm.firstOf(trunk.EvCCSync)
	require.True(t, ok)
	ev, ok := env.tsm.firstOf(trunk.EvGrant)
	require.True(t, ok)
	require.Equal(t, uint32(0x0105), ev.Channel)
	require.Equal(t, uint32(2001), ev.TG)
	require.Equal(t, uint32(44100), ev.Source)

	rec, ok := env.ring.Current()
	require.True(t, ok)
	require.Equal(t, "NXDN", rec.Protocol)
}

func TestNXDNVoiceFramesFlow(t *testing.T) {
	env := newHarness(t)
	h := NewNXDN(env.deps)

	src := sourceOf(
		buildLICH(lichRTCH),
		buildNXDNSACCH(0, 2001, 4410),
		voiceDibits(4*nxdnVoiceDibits),
	)
	require.NoError(t, h.Process(SyncMatch{}, src))

	require.Equal(t, uint32(2001), h.tg)
	require.Len(t, env.voice.frames, 4)
	_, ok := env.tsm.firstOf(trunk.EvVCSync)
	require.True(t, ok)
}

func TestNXDNEncryptedMutes(t *testing.T) {
	env := newHarness(t)
	h := NewNXDN(env.deps)

	src := sourceOf(
		buildLICH(lichRTCH),
		buildNXDNSACCH(0x80, 900, 1),
		voiceDibits(4*nxdnVoiceDibits),
	)
	require.NoError(t, h.Process(SyncMatch{}, src))

	require.True(t, h.muted)
	require.Empty(t, env.voice.frames)
	require.Equal(t, "DE", env.groups.ModeOf(900))
}

func TestNXDNBadSACCHKeepsVoiceAligned(t *testing.T) {
	env := newHarness(t)
	h := NewNXDN(env.deps)

	sacch := buildNXDNSACCH(0, 2001, 4410)
	sacch[3].Value = invertDibit(sacch[3].Value)
	src := sourceOf(buildLICH(lichRTCH), sacch, voiceDibits(4*nxdnVoiceDibits))
	require.NoError(t, h.Process(SyncMatch{}, src), "a bad SACCH must not drop the frame")
	require.Positive(t, h.FECErrors())
	require.Len(t, env.voice.frames, 4)
}
