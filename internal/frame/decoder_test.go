package frame

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/arancormonk/dsd-neo-sub003/internal/fec"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

func syncDibits(t *testing.T, name string) []Dibit {
	t.Helper()
	p := patternNamed(t, name)
	out := make([]Dibit, len(p.Dibits))
	for i, d := range p.Dibits {
		out[i] = Dibit{Value: d, Reliability: 255}
	}
	return out
}

func noiseDibits(n int) []Dibit {
	out := make([]Dibit, n)
	for i := range out {
		out[i] = Dibit{Value: byte(i%2) * 2, Reliability: 10}
	}
	return out
}

func grantFrame(t *testing.T) []Dibit {
	var args [8]byte
	args[1], args[2] = 0x10, 0x00
	args[3], args[4] = 0xCB, 0xE6
	var all []Dibit
	for _, p := range [][]Dibit{
		syncDibits(t, "P25p1"),
		buildNID(0x293, duidTSBK),
		buildTSBK(oscGrpVoiceGrant, args, true),
	} {
		all = append(all, p...)
	}
	return all
}

func TestDecoderDispatchesFrames(t *testing.T) {
	env := newHarness(t)
	d := NewDecoder(env.deps, []Protocol{ProtoP25p1})

	stream := append(noiseDibits(50), grantFrame(t)...)
	require.NoError(t, d.Run(NewSliceSource(stream)))

	ev, ok := env.tsm.firstOf(trunk.EvGrant)
	require.True(t, ok)
	require.Equal(t, uint32(52198), ev.TG)
	require.Equal(t, uint32(0x1000), ev.Channel)
}

func TestDecoderHandlesInvertedStream(t *testing.T) {
	env := newHarness(t)
	d := NewDecoder(env.deps, []Protocol{ProtoP25p1})

	stream := append(noiseDibits(50), grantFrame(t)...)
	for i := range stream {
		stream[i].Value = invertDibit(stream[i].Value)
	}
	require.NoError(t, d.Run(NewSliceSource(stream)))

	ev, ok := env.tsm.firstOf(trunk.EvGrant)
	require.True(t, ok, "inverted polarity must decode identically")
	require.Equal(t, uint32(52198), ev.TG)
}

func TestDecoderOnSyncHint(t *testing.T) {
	env := newHarness(t)
	d := NewDecoder(env.deps, []Protocol{ProtoP25p1})

	var seen []SyncMatch
	d.OnSync = func(m SyncMatch) { seen = append(seen, m) }
	require.NoError(t, d.Run(NewSliceSource(grantFrame(t))))

	require.Len(t, seen, 1)
	require.Equal(t, ProtoP25p1, seen[0].Pattern.Proto)
	require.Equal(t, 10, seen[0].Pattern.SPSHint)
}

func TestDecoderWidensToleranceAfterErrors(t *testing.T) {
	env := newHarness(t)
	d := NewDecoder(env.deps, []Protocol{ProtoP25p1})
	require.Equal(t, 0, d.Matcher().Tolerance())

	// Three frames in a row whose bodies fail the CRC gate. The bodies are
	// full length so the stream stays frame aligned.
	msg := make([]byte, 12)
	msg[0] = 0x80 | oscGrpVoiceGrant
	crc := fec.CRC16CCITT(msg[:10]) ^ 0x0001
	msg[10], msg[11] = byte(crc>>8), byte(crc)
	enc := fec.Trellis12Encode(bytesToDibits(msg))
	bad := make([]Dibit, len(enc))
	for i, v := range enc {
		bad[i] = Dibit{Value: v, Reliability: 255}
	}

	var stream []Dibit
	for i := 0; i < widenAfterErrs; i++ {
		stream = append(stream, syncDibits(t, "P25p1")...)
		stream = append(stream, buildNID(0x293, duidTSBK)...)
		stream = append(stream, bad...)
	}
	require.NoError(t, d.Run(NewSliceSource(stream)))
	require.Equal(t, 1, d.Matcher().Tolerance())
	_ = env
}

func TestDecoderTightensToleranceWhenClean(t *testing.T) {
	env := newHarness(t)
	d := NewDecoder(env.deps, []Protocol{ProtoP25p1})
	d.Matcher().SetTolerance(2)

	var stream []Dibit
	for i := 0; i < tightenAfterClean; i++ {
		stream = append(stream, grantFrame(t)...)
	}
	require.NoError(t, d.Run(NewSliceSource(stream)))
	require.Equal(t, 1, d.Matcher().Tolerance())
	_ = env
}

func TestDecoderReportsSyncLoss(t *testing.T) {
	env := newHarness(t)
	d := NewDecoder(env.deps, nil)

	require.NoError(t, d.Run(NewSliceSource(noiseDibits(syncLossDibits + 100))))
	require.Equal(t, 1, env.tsm.countOf(trunk.EvSyncLost))
}

// tuneRec records retune commands.
type tuneRec struct {
	freqs []int64
}

func (r *tuneRec) Tune(freqHz int64, tdma bool) error {
	r.freqs = append(r.freqs, freqHz)
	return nil
}

func TestTrunkingFollowsGrantEndToEnd(t *testing.T) {
	sink := &tuneRec{}
	tsm := trunk.New(trunk.DefaultConfig(), sink, nil, zerolog.Nop())

	env := newHarness(t)
	env.deps.TSM = tsm
	d := NewDecoder(env.deps, []Protocol{ProtoP25p1})

	iden := buildIdenUpArgs(1, 1, 851_006_250, 6_250, -45_000_000)
	var stream []Dibit
	// The identity broadcast repeats; the second sighting confirms it.
	for i := 0; i < 2; i++ {
		stream = append(stream, syncDibits(t, "P25p1")...)
		stream = append(stream, buildNID(0x293, duidTSBK)...)
		stream = append(stream, buildTSBK(oscIdenUp, iden, true)...)
	}
	stream = append(stream, grantFrame(t)...)

	require.NoError(t, d.Run(NewSliceSource(stream)))

	require.Equal(t, trunk.StateTuned, tsm.State())
	require.Equal(t, []int64{806_006_250}, sink.freqs)
	require.Equal(t, uint32(52198), tsm.VCTalkgroup())
}
