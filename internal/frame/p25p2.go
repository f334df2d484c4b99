package frame

import (
	"github.com/arancormonk/dsd-neo-sub003/internal/event"
	"github.com/arancormonk/dsd-neo-sub003/internal/fec"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

// P25 phase 2 TDMA frame, in dibits after the sync word:
//
//	header   2    physical slot and signalling channel type
//	MAC PDU  42   72-bit message + CRC-12 (SACCH and FACCH)
//	         44   72-bit message + CRC-16 (LCCH)
//	voice    2x36 codewords, absent on LCCH frames
//
// A SACCH describes the opposite logical slot from the one carrying it; a
// FACCH describes its own slot.

const (
	p2HdrDibits   = 2
	p2MACBits     = 72
	p2SACCHDibits = (p2MACBits + 12) / 2
	p2LCCHDibits  = (p2MACBits + 16) / 2
	p2VoiceDibits = 36
)

// Signalling channel types carried in the header.
const (
	p2ChanSACCH = 0
	p2ChanFACCH = 1
	p2ChanLCCH  = 2
)

// MAC opcodes.
const (
	macSignal   = 0x00
	macPTT      = 0x01
	macEndPTT   = 0x02
	macIdle     = 0x03
	macActive   = 0x04
	macHangtime = 0x06
	macGrant    = 0x10
)

type p2Slot struct {
	tg    uint32
	src   uint32
	alg   byte
	kid   uint16
	muted bool

	voiceFrames int
	errFrames   int
}

// P25p2 decodes phase 2 TDMA frames.
type P25p2 struct {
	deps *Deps
	lock *Lockout

	slots   [2]p2Slot
	fecErrs int
}

// NewP25p2 builds the handler.
func NewP25p2(deps *Deps) *P25p2 {
	return &P25p2{deps: deps, lock: newLockout(deps)}
}

// Proto identifies the handler.
func (h *P25p2) Proto() Protocol { return ProtoP25p2 }

// FECErrors reports uncorrectable frames since the last reset.
func (h *P25p2) FECErrors() int { return h.fecErrs }

// ResetFECErrors clears the counter.
func (h *P25p2) ResetFECErrors() { h.fecErrs = 0 }

// Process decodes one frame body following a phase 2 sync.
func (h *P25p2) Process(_ SyncMatch, src Source) error {
	hdr, err := collect(src, p2HdrDibits)
	if err != nil {
		return err
	}
	physSlot := int(hdr[0].Value >> 1 & 1)
	chanType := int(hdr[0].Value&1)<<1 | int(hdr[1].Value>>1&1)

	switch chanType {
	case p2ChanLCCH:
		return h.processLCCH(src)
	case p2ChanSACCH, p2ChanFACCH:
		// SACCH signalling describes the opposite slot.
		effSlot := physSlot
		if chanType == p2ChanSACCH {
			effSlot = 1 - physSlot
		}
		if err := h.processMAC(src, effSlot); err != nil {
			return err
		}
		return h.processVoice(src, physSlot)
	}
	return ErrShortFrame
}

// processMAC decodes one SACCH or FACCH MAC message for the given logical
// slot.
func (h *P25p2) processMAC(src Source, slot int) error {
	dibits, err := collect(src, p2SACCHDibits)
	if err != nil {
		return err
	}
	bits := dibitBits(dibits)
	if !fec.CheckAppended(bits, 12, 0x80F) {
		h.fecErrs++
		h.slots[slot].errFrames++
		return fec.ErrCRCMismatch
	}
	h.applyMAC(bits[:p2MACBits], slot)
	return nil
}

// processLCCH decodes a control-channel MAC message, which carries the
// longer CRC-16.
func (h *P25p2) processLCCH(src Source) error {
	dibits, err := collect(src, p2LCCHDibits)
	if err != nil {
		return err
	}
	bits := dibitBits(dibits)
	want := fec.CRC16CCITTBits(bits[:p2MACBits])
	if fec.BitsToUint(bits[p2MACBits:p2MACBits+16]) != want {
		h.fecErrs++
		return fec.ErrCRCMismatch
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvCCSync})
	h.applyMAC(bits[:p2MACBits], 0)
	return nil
}

func (h *P25p2) applyMAC(bits []bool, slot int) {
	op := fec.BitsToByte(bits[:8])
	s := &h.slots[slot]

	switch op {
	case macPTT:
		alg := fec.BitsToByte(bits[8:16])
		kid := uint16(fec.BitsToUint(bits[16:32]))
		tg := fec.BitsToUint(bits[32:48])
		src := fec.BitsToUint(bits[48:72])
		// A PTT starts a fresh transmission: counters restart.
		*s = p2Slot{tg: tg, src: src, alg: alg, kid: kid}
		s.muted = h.lock.Check(ProtoP25p2, slot, tg, alg, kid)
		h.pushCallRecord(slot, "call start")
		h.deps.TSM.Event(trunk.Event{
			Kind: trunk.EvPTT, Slot: slot, TG: tg, Source: src,
			AlgID: alg, KeyID: kid, IsGroup: true,
		})
	case macEndPTT:
		tg := fec.BitsToUint(bits[8:24])
		src := fec.BitsToUint(bits[24:48])
		if tg == 0 {
			tg = s.tg
		}
		h.deps.TSM.Event(trunk.Event{
			Kind: trunk.EvEnd, Slot: slot, TG: tg, Source: src, IsGroup: true,
		})
		// End of transmission also retires the key context.
		*s = p2Slot{}
	case macActive:
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvActive, Slot: slot, TG: s.tg, IsGroup: true})
	case macIdle, macHangtime:
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvIdle, Slot: slot})
	case macSignal:
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvVCSync, Slot: slot})
	case macGrant:
		ch := fec.BitsToUint(bits[8:24])
		tg := fec.BitsToUint(bits[24:40])
		src := fec.BitsToUint(bits[40:64])
		svc := fec.BitsToByte(bits[64:72])
		h.deps.TSM.Event(trunk.Event{
			Kind: trunk.EvGrant, Channel: ch, TG: tg, Source: src,
			SvcOpts: svc, IsGroup: true,
		})
	}
}

func (h *P25p2) processVoice(src Source, slot int) error {
	s := &h.slots[slot]
	for i := 0; i < 2; i++ {
		vc, err := collect(src, p2VoiceDibits)
		if err != nil {
			return err
		}
		s.voiceFrames++
		if h.deps.Voice != nil && !s.muted {
			h.deps.Voice.PushVoice(slot, dibitPack(vc))
		}
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvVCSync, Slot: slot, TG: s.tg, IsGroup: true})
	return nil
}

func (h *P25p2) pushCallRecord(slot int, summary string) {
	if h.deps.Ring == nil {
		return
	}
	s := &h.slots[slot]
	rec := event.Record{
		Time:     h.deps.now(),
		Protocol: "P25p2",
		TG:       s.tg,
		Target:   s.tg,
		Source:   s.src,
		Slot:     slot,
		AlgID:    s.alg,
		KeyID:    s.kid,
		Summary:  summary,
	}
	h.deps.Ring.Push(rec)
	if h.deps.ELog != nil {
		h.deps.ELog.Log(&rec)
	}
}

// Builders used when synthesizing phase 2 traffic.

func buildP2Header(physSlot, chanType int) []Dibit {
	d0 := byte(physSlot&1)<<1 | byte(chanType>>1&1)
	d1 := byte(chanType&1) << 1
	return []Dibit{
		{Value: d0, Reliability: 255},
		{Value: d1, Reliability: 255},
	}
}

func buildP2MAC(bits72 []bool, lcch bool) []Dibit {
	var tail []bool
	if lcch {
		crc := fec.CRC16CCITTBits(bits72)
		tail = make([]bool, 16)
		fec.UintToBits(crc, tail, 16)
	} else {
		crc := fec.CRC12(bits72)
		tail = make([]bool, 12)
		fec.UintToBits(crc, tail, 12)
	}
	all := append(append([]bool(nil), bits72...), tail...)
	out := make([]Dibit, len(all)/2)
	for i := range out {
		var v byte
		if all[2*i] {
			v |= 2
		}
		if all[2*i+1] {
			v |= 1
		}
		out[i] = Dibit{Value: v, Reliability: 255}
	}
	return out
}

func macPTTBits(alg byte, kid uint16, tg, src uint32) []bool {
	bits := make([]bool, p2MACBits)
	fec.ByteToBits(macPTT, bits[:8])
	fec.ByteToBits(alg, bits[8:16])
	fec.UintToBits(uint32(kid), bits[16:32], 16)
	fec.UintToBits(tg, bits[32:48], 16)
	fec.UintToBits(src, bits[48:72], 24)
	return bits
}

func macEndPTTBits(tg, src uint32) []bool {
	bits := make([]bool, p2MACBits)
	fec.ByteToBits(macEndPTT, bits[:8])
	fec.UintToBits(tg, bits[8:24], 16)
	fec.UintToBits(src, bits[24:48], 24)
	return bits
}

func macOpcodeBits(op byte) []bool {
	bits := make([]bool, p2MACBits)
	fec.ByteToBits(op, bits[:8])
	return bits
}
