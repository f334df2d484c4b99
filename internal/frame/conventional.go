package frame

import (
	"fmt"

	"github.com/arancormonk/dsd-neo-sub003/internal/event"
	"github.com/arancormonk/dsd-neo-sub003/internal/fec"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

// The lighter air interfaces. YSF, D-STAR, dPMR and ProVoice are carried
// conventionally here: decode the signalling that identifies the call, pass
// the vocoder payload through, and keep the voice-activity events flowing so
// hangtime works. M17 and EDACS carry enough signalling for call metadata
// and, for EDACS, trunked grants.

// YSF frame: FICH in one extended Golay word (FI 2, CS 2, CM 2, FN 3, FT 3),
// then five vocoder frames.
type YSF struct {
	deps    *Deps
	fecErrs int
}

// NewYSF builds the handler.
func NewYSF(deps *Deps) *YSF { return &YSF{deps: deps} }

// Proto identifies the handler.
func (h *YSF) Proto() Protocol { return ProtoYSF }

// FECErrors reports uncorrectable frames since the last reset.
func (h *YSF) FECErrors() int { return h.fecErrs }

// ResetFECErrors clears the counter.
func (h *YSF) ResetFECErrors() { h.fecErrs = 0 }

// Process decodes one YSF frame.
func (h *YSF) Process(_ SyncMatch, src Source) error {
	fich, err := collect(src, 12)
	if err != nil {
		return err
	}
	var cw uint32
	for _, d := range fich {
		cw = cw<<2 | uint32(d.Value)
	}
	data, _, err := fec.Golay2412Decode(cw)
	if err != nil {
		h.fecErrs++
		return err
	}
	fi := byte(data >> 10 & 3)

	for i := 0; i < 5; i++ {
		vc, err := collect(src, 36)
		if err != nil {
			return err
		}
		if h.deps.Voice != nil {
			h.deps.Voice.PushVoice(0, dibitPack(vc))
		}
	}

	if fi == 0 && h.deps.Ring != nil {
		// Header frame opens the call record.
		rec := event.Record{Time: h.deps.now(), Protocol: "YSF", Summary: "call start"}
		h.deps.Ring.Push(rec)
		if h.deps.ELog != nil {
			h.deps.ELog.Log(&rec)
		}
	}
	if fi == 2 {
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvEnd})
	} else {
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvVCSync})
	}
	return nil
}

func buildFICH(fi, cs, cm, fn, ft byte) []Dibit {
	data := uint32(fi&3)<<10 | uint32(cs&3)<<8 | uint32(cm&3)<<6 |
		uint32(fn&7)<<3 | uint32(ft&7)
	cw := fec.Golay2412Encode(data)
	out := make([]Dibit, 12)
	for i := range out {
		out[i] = Dibit{Value: byte(cw >> (22 - 2*i) & 3), Reliability: 255}
	}
	return out
}

// DStar frame: one vocoder frame plus the slow-data bytes, passed through
// unchecked (the miniheader checksum lives in the data stream itself).
type DStar struct {
	deps *Deps
}

// NewDStar builds the handler.
func NewDStar(deps *Deps) *DStar { return &DStar{deps: deps} }

// Proto identifies the handler.
func (h *DStar) Proto() Protocol { return ProtoDStar }

// Process decodes one D-STAR voice frame.
func (h *DStar) Process(_ SyncMatch, src Source) error {
	vc, err := collect(src, 36)
	if err != nil {
		return err
	}
	sd, err := collect(src, 12)
	if err != nil {
		return err
	}
	if h.deps.Voice != nil {
		h.deps.Voice.PushVoice(0, dibitPack(vc))
	}
	if h.deps.Ring != nil {
		b := dibitPack(sd)
		if b[0] != 0 || b[1] != 0 || b[2] != 0 {
			h.deps.Ring.Update(func(r *event.Record) {
				r.Text = fmt.Sprintf("slow data %02X%02X%02X", b[0], b[1], b[2])
			})
		}
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvVCSync})
	return nil
}

// DPMR frame: a CRC-gated control channel word (type 8, TG 16, SRC 16) and
// two vocoder frames.
type DPMR struct {
	deps    *Deps
	lock    *Lockout
	tg      uint32
	muted   bool
	fecErrs int
}

// NewDPMR builds the handler.
func NewDPMR(deps *Deps) *DPMR { return &DPMR{deps: deps, lock: newLockout(deps)} }

// Proto identifies the handler.
func (h *DPMR) Proto() Protocol { return ProtoDPMR }

// FECErrors reports uncorrectable frames since the last reset.
func (h *DPMR) FECErrors() int { return h.fecErrs }

// ResetFECErrors clears the counter.
func (h *DPMR) ResetFECErrors() { h.fecErrs = 0 }

// Process decodes one dPMR frame.
func (h *DPMR) Process(_ SyncMatch, src Source) error {
	cch, err := collect(src, 24)
	if err != nil {
		return err
	}
	bits := dibitBits(cch)
	if fec.CRC8(bits[:40]) != fec.BitsToUint(bits[40:48]) {
		h.fecErrs++
	} else {
		typ := fec.BitsToByte(bits[:8])
		h.tg = fec.BitsToUint(bits[8:24])
		h.muted = false
		if typ&0x80 != 0 {
			h.muted = h.lock.Check(ProtoDPMR, 0, h.tg, AlgDES, 0)
		}
	}

	for i := 0; i < 2; i++ {
		vc, err := collect(src, 36)
		if err != nil {
			return err
		}
		if h.deps.Voice != nil && !h.muted {
			h.deps.Voice.PushVoice(0, dibitPack(vc))
		}
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvVCSync, TG: h.tg, IsGroup: true})
	return nil
}

func buildDPMRCCH(typ byte, tg, unit uint32) []Dibit {
	bits := make([]bool, 48)
	fec.ByteToBits(typ, bits[:8])
	fec.UintToBits(tg, bits[8:24], 16)
	fec.UintToBits(unit, bits[24:40], 16)
	fec.UintToBits(fec.CRC8(bits[:40]), bits[40:48], 8)
	return dibitsFromBits(bits)
}

// ProVoice frame: vocoder frames only; the call metadata rides on the EDACS
// control channel.
type ProVoice struct {
	deps *Deps
}

// NewProVoice builds the handler.
func NewProVoice(deps *Deps) *ProVoice { return &ProVoice{deps: deps} }

// Proto identifies the handler.
func (h *ProVoice) Proto() Protocol { return ProtoProVoice }

// Process decodes one ProVoice frame.
func (h *ProVoice) Process(_ SyncMatch, src Source) error {
	for i := 0; i < 4; i++ {
		vc, err := collect(src, 36)
		if err != nil {
			return err
		}
		if h.deps.Voice != nil {
			h.deps.Voice.PushVoice(0, dibitPack(vc))
		}
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvVCSync})
	return nil
}

// EDACS control word: command 8, AFS 16, LCN 8, pad 8, CRC-8.
const (
	edacsIdle  = 0xFC
	edacsGrant = 0xEE
)

// EDACS decodes the control channel of the GE/Ericsson trunking system.
// Voice channels carry ProVoice or analog FM; only the grants matter here.
type EDACS struct {
	deps    *Deps
	fecErrs int
}

// NewEDACS builds the handler.
func NewEDACS(deps *Deps) *EDACS { return &EDACS{deps: deps} }

// Proto identifies the handler.
func (h *EDACS) Proto() Protocol { return ProtoEDACS }

// FECErrors reports uncorrectable frames since the last reset.
func (h *EDACS) FECErrors() int { return h.fecErrs }

// ResetFECErrors clears the counter.
func (h *EDACS) ResetFECErrors() { h.fecErrs = 0 }

// Process decodes one EDACS control word.
func (h *EDACS) Process(_ SyncMatch, src Source) error {
	dibits, err := collect(src, 24)
	if err != nil {
		return err
	}
	bits := dibitBits(dibits)
	if fec.CRC8(bits[:40]) != fec.BitsToUint(bits[40:48]) {
		h.fecErrs++
		return fec.ErrCRCMismatch
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvCCSync})

	cmd := fec.BitsToByte(bits[:8])
	afs := fec.BitsToUint(bits[8:24])
	lcn := fec.BitsToUint(bits[24:32])

	if cmd == edacsGrant {
		h.deps.TSM.Event(trunk.Event{
			Kind: trunk.EvGrant, Channel: lcn, TG: afs, IsGroup: true,
		})
		if h.deps.Ring != nil {
			rec := event.Record{
				Time:     h.deps.now(),
				Protocol: "EDACS",
				TG:       afs,
				Target:   afs,
				Channel:  lcn,
				Summary:  "voice grant",
			}
			h.deps.Ring.Push(rec)
			if h.deps.ELog != nil {
				h.deps.ELog.Log(&rec)
			}
		}
	}
	return nil
}

func buildEDACSWord(cmd byte, afs uint32, lcn byte) []Dibit {
	bits := make([]bool, 48)
	fec.ByteToBits(cmd, bits[:8])
	fec.UintToBits(afs, bits[8:24], 16)
	fec.ByteToBits(lcn, bits[24:32])
	fec.UintToBits(fec.CRC8(bits[:40]), bits[40:48], 8)
	return dibitsFromBits(bits)
}
