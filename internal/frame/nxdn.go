package frame

import (
	"github.com/arancormonk/dsd-neo-sub003/internal/event"
	"github.com/arancormonk/dsd-neo-sub003/internal/fec"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

// NXDN frame, in dibits after the sync word. The LICH nibble is sent with
// its complement for validation. Control messages and the voice-companion
// SACCH both close with the CAC CRC-16.
//
//	LICH    4    channel type nibble + complement
//	RCCH    42   68-bit control message + CRC
//	RTCH    30   44-bit SACCH + CRC, then 4x36 vocoder frames

const (
	nxdnLICHDibits  = 4
	nxdnRCCHDibits  = 42
	nxdnSACCHDibits = 30
	nxdnVoiceDibits = 36
)

// LICH channel types.
const (
	lichRCCH = 0x0
	lichRTCH = 0x1
	lichRDCH = 0x2
)

// RCCH message types.
const (
	nxdnIdle     = 0x00
	nxdnVoiceGnt = 0x01
	nxdnSiteInfo = 0x18
)

// NXDN decodes 4800 and 9600 baud frames; the rates differ only in symbol
// timing, which the front end has already absorbed.
type NXDN struct {
	deps *Deps
	lock *Lockout

	tg      uint32
	src     uint32
	muted   bool
	fecErrs int
}

// NewNXDN builds the handler.
func NewNXDN(deps *Deps) *NXDN {
	return &NXDN{deps: deps, lock: newLockout(deps)}
}

// Proto identifies the handler.
func (h *NXDN) Proto() Protocol { return ProtoNXDN }

// FECErrors reports uncorrectable frames since the last reset.
func (h *NXDN) FECErrors() int { return h.fecErrs }

// ResetFECErrors clears the counter.
func (h *NXDN) ResetFECErrors() { h.fecErrs = 0 }

// Process decodes one frame following an NXDN sync.
func (h *NXDN) Process(_ SyncMatch, src Source) error {
	lich, err := collect(src, nxdnLICHDibits)
	if err != nil {
		return err
	}
	n := lich[0].Value<<2 | lich[1].Value
	comp := lich[2].Value<<2 | lich[3].Value
	if n != ^comp&0xF {
		h.fecErrs++
		return ErrShortFrame
	}

	switch n {
	case lichRCCH:
		return h.processRCCH(src)
	case lichRTCH, lichRDCH:
		return h.processRTCH(src)
	}
	return nil
}

// processRCCH decodes a control message: type 8, channel 16, TG 16, SRC 24,
// pad 4, CRC-16.
func (h *NXDN) processRCCH(src Source) error {
	dibits, err := collect(src, nxdnRCCHDibits)
	if err != nil {
		return err
	}
	bits := dibitBits(dibits)
	if fec.CRC16CAC(bits[:68]) != fec.BitsToUint(bits[68:84]) {
		h.fecErrs++
		return fec.ErrCRCMismatch
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvCCSync})

	msgType := fec.BitsToByte(bits[:8])
	ch := fec.BitsToUint(bits[8:24])
	tg := fec.BitsToUint(bits[24:40])
	unit := fec.BitsToUint(bits[40:64])

	switch msgType {
	case nxdnVoiceGnt:
		h.deps.TSM.Event(trunk.Event{
			Kind: trunk.EvGrant, Channel: ch, TG: tg, Source: unit, IsGroup: true,
		})
		if h.deps.Ring != nil {
			rec := event.Record{
				Time:     h.deps.now(),
				Protocol: "NXDN",
				TG:       tg,
				Target:   tg,
				Source:   unit,
				Channel:  ch,
				Summary:  "voice grant",
			}
			h.deps.Ring.Push(rec)
			if h.deps.ELog != nil {
				h.deps.ELog.Log(&rec)
			}
		}
	case nxdnIdle, nxdnSiteInfo:
	}
	return nil
}

// processRTCH decodes the SACCH (type 8, TG 16, SRC 16, pad 4, CRC-16) and
// the four vocoder frames behind it.
func (h *NXDN) processRTCH(src Source) error {
	dibits, err := collect(src, nxdnSACCHDibits)
	if err != nil {
		return err
	}
	bits := dibitBits(dibits)
	if fec.CRC16CAC(bits[:44]) != fec.BitsToUint(bits[44:60]) {
		h.fecErrs++
	} else {
		enc := fec.BitsToByte(bits[:8])&0x80 != 0
		h.tg = fec.BitsToUint(bits[8:24])
		h.src = fec.BitsToUint(bits[24:40])
		h.muted = false
		if enc {
			h.muted = h.lock.Check(ProtoNXDN, 0, h.tg, AlgDES, 0)
		}
	}

	for i := 0; i < 4; i++ {
		vc, err := collect(src, nxdnVoiceDibits)
		if err != nil {
			return err
		}
		if h.deps.Voice != nil && !h.muted {
			h.deps.Voice.PushVoice(0, dibitPack(vc))
		}
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvVCSync, TG: h.tg, Source: h.src, IsGroup: true})
	return nil
}

// Builders used when synthesizing NXDN traffic.

func buildLICH(n byte) []Dibit {
	comp := ^n & 0xF
	return []Dibit{
		{Value: n >> 2 & 3, Reliability: 255},
		{Value: n & 3, Reliability: 255},
		{Value: comp >> 2 & 3, Reliability: 255},
		{Value: comp & 3, Reliability: 255},
	}
}

func buildRCCH(msgType byte, ch, tg, unit uint32) []Dibit {
	bits := make([]bool, 84)
	fec.ByteToBits(msgType, bits[:8])
	fec.UintToBits(ch, bits[8:24], 16)
	fec.UintToBits(tg, bits[24:40], 16)
	fec.UintToBits(unit, bits[40:64], 24)
	fec.UintToBits(fec.CRC16CAC(bits[:68]), bits[68:84], 16)
	return dibitsFromBits(bits)
}

func buildNXDNSACCH(msgType byte, tg, unit uint32) []Dibit {
	bits := make([]bool, 60)
	fec.ByteToBits(msgType, bits[:8])
	fec.UintToBits(tg, bits[8:24], 16)
	fec.UintToBits(unit, bits[24:40], 16)
	fec.UintToBits(fec.CRC16CAC(bits[:44]), bits[44:60], 16)
	return dibitsFromBits(bits)
}
