package frame

import (
	"github.com/arancormonk/dsd-neo-sub003/internal/event"
	"github.com/arancormonk/dsd-neo-sub003/internal/fec"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

// DMR burst layout, in dibits after the sync word:
//
//	voice  CACH 12, EMB 8 (QR(16,7)), 3x36 vocoder frames, embedded LC
//	       fragment 16 (two Hamming(16,11) words)
//	data   CACH 12, slot type 10 (Golay(20,8)), info 98 (BPTC(196,96))
//
// The CACH TDMA-channel bit selects the slot. Embedded link control
// reassembles over four fragments flagged by the EMB LCSS field.

const (
	dmrCACHDibits  = 12
	dmrEMBDibits   = 8
	dmrSlotDibits  = 10
	dmrVoiceDibits = 36
	dmrInfoDibits  = 98
	dmrFragDibits  = 16
	dmrFragBits    = 22
	dmrEmbLCBits   = 88
)

// Slot-type data types.
const (
	dtVoiceLCHeader = 0x1
	dtTerminatorLC  = 0x2
	dtCSBK          = 0x3
	dtDataHeader    = 0x6
	dtRate12Data    = 0x7
)

// CSBK opcodes (Tier III).
const (
	csbkAloha      = 0x19
	csbkClear      = 0x2E
	csbkGrant      = 0x30
	csbkNeighbor   = 0x3C
	csbkAnnouncing = 0x28
)

type dmrSlot struct {
	tg    uint32
	src   uint32
	muted bool

	embBuf  []bool
	embSeen int
}

// DMR decodes Tier II voice and Tier III control bursts.
type DMR struct {
	deps *Deps
	lock *Lockout

	colorCode byte
	slots     [2]dmrSlot
	fecErrs   int
}

// NewDMR builds the handler.
func NewDMR(deps *Deps) *DMR {
	return &DMR{deps: deps, lock: newLockout(deps)}
}

// Proto identifies the handler.
func (h *DMR) Proto() Protocol { return ProtoDMR }

// FECErrors reports uncorrectable bursts since the last reset.
func (h *DMR) FECErrors() int { return h.fecErrs }

// ResetFECErrors clears the counter.
func (h *DMR) ResetFECErrors() { h.fecErrs = 0 }

// ColorCode reports the last decoded color code.
func (h *DMR) ColorCode() byte { return h.colorCode }

// Process decodes one burst following a DMR sync.
func (h *DMR) Process(match SyncMatch, src Source) error {
	slot, err := h.decodeCACH(src)
	if err != nil {
		h.fecErrs++
		return err
	}
	if match.Pattern.Type == FrameVoice {
		return h.processVoice(src, slot)
	}
	return h.processData(src, slot)
}

// decodeCACH reads the access-type/TDMA-channel word and returns the slot.
func (h *DMR) decodeCACH(src Source) (int, error) {
	dibits, err := collect(src, dmrCACHDibits)
	if err != nil {
		return 0, err
	}
	bits := dibitBits(dibits)
	if _, err := fec.Hamming74Decode(bits[:7]); err != nil {
		return 0, err
	}
	slot := 0
	if bits[1] {
		slot = 1
	}
	return slot, nil
}

func (h *DMR) processVoice(src Source, slot int) error {
	s := &h.slots[slot]

	emb, err := collect(src, dmrEMBDibits)
	if err != nil {
		return err
	}
	var cw uint32
	for _, d := range emb {
		cw = cw<<2 | uint32(d.Value)
	}
	lcss := -1
	if data, _, err := fec.QR1676Decode(cw); err == nil {
		h.colorCode = byte(data >> 3 & 0xF)
		lcss = int(data >> 1 & 3)
	} else {
		h.fecErrs++
	}

	for i := 0; i < 3; i++ {
		vc, err := collect(src, dmrVoiceDibits)
		if err != nil {
			return err
		}
		if h.deps.Voice != nil && !s.muted {
			h.deps.Voice.PushVoice(slot, dibitPack(vc))
		}
	}

	frag, err := collect(src, dmrFragDibits)
	if err != nil {
		return err
	}
	if lcss >= 0 {
		h.collectEmbedded(slot, lcss, dibitBits(frag))
	}

	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvVCSync, Slot: slot, TG: s.tg, IsGroup: true})
	return nil
}

// collectEmbedded reassembles link control carried one fragment per burst.
// LCSS 1 starts a sequence, 3 continues, 2 ends it.
func (h *DMR) collectEmbedded(slot, lcss int, bits []bool) {
	s := &h.slots[slot]
	frag, _, err := fec.BPTC16x2Decode(bits)
	if err != nil {
		h.fecErrs++
		s.embBuf = nil
		s.embSeen = 0
		return
	}
	switch lcss {
	case 1:
		s.embBuf = append(s.embBuf[:0], frag...)
		s.embSeen = 1
	case 2, 3:
		if s.embSeen == 0 {
			return
		}
		s.embBuf = append(s.embBuf, frag...)
		s.embSeen++
		if lcss == 2 {
			if len(s.embBuf) >= dmrEmbLCBits {
				h.applyEmbeddedLC(slot, s.embBuf[:dmrEmbLCBits])
			}
			s.embBuf = nil
			s.embSeen = 0
		}
	}
}

// applyEmbeddedLC decodes the 88-bit reassembled LC: FLCO 8, svc 8, TG 24,
// SRC 24, CRC-8, pad.
func (h *DMR) applyEmbeddedLC(slot int, bits []bool) {
	if fec.CRC8(bits[:72]) != fec.BitsToUint(bits[72:80]) {
		h.fecErrs++
		return
	}
	s := &h.slots[slot]
	svc := fec.BitsToByte(bits[8:16])
	s.tg = fec.BitsToUint(bits[16:40])
	s.src = fec.BitsToUint(bits[40:64])
	if svc&svcOptEnc != 0 {
		s.muted = h.lock.Check(ProtoDMR, slot, s.tg, AlgRC4, 0)
	}
	if h.deps.Ring != nil {
		h.deps.Ring.Update(func(r *event.Record) {
			r.TG = s.tg
			r.Target = s.tg
			r.Source = s.src
		})
	}
}

const svcOptEnc = 0x40

func (h *DMR) processData(src Source, slot int) error {
	st, err := collect(src, dmrSlotDibits)
	if err != nil {
		return err
	}
	var cw uint32
	for _, d := range st {
		cw = cw<<2 | uint32(d.Value)
	}
	data, _, err := fec.Golay208Decode(cw)
	if err != nil {
		h.fecErrs++
		return err
	}
	h.colorCode = byte(data >> 4 & 0xF)
	dataType := byte(data & 0xF)

	info, err := collect(src, dmrInfoDibits)
	if err != nil {
		return err
	}
	payload, _, err := fec.BPTC19696Decode(dibitBits(info))
	if err != nil {
		h.fecErrs++
		return err
	}
	msg := make([]byte, 12)
	for i := range msg {
		msg[i] = fec.BitsToByte(payload[8*i : 8*i+8])
	}

	switch dataType {
	case dtVoiceLCHeader:
		return h.applyFullLC(slot, msg, true)
	case dtTerminatorLC:
		if err := h.applyFullLC(slot, msg, false); err != nil {
			return err
		}
		h.deps.TSM.Event(trunk.Event{
			Kind: trunk.EvEnd, Slot: slot, TG: h.slots[slot].tg, IsGroup: true,
		})
		h.slots[slot] = dmrSlot{}
		return nil
	case dtCSBK:
		return h.processCSBK(msg)
	case dtDataHeader, dtRate12Data:
		if h.deps.Ring != nil {
			h.deps.Ring.Push(event.Record{
				Time:     h.deps.now(),
				Protocol: "DMR",
				Slot:     slot,
				Summary:  "data burst",
			})
		}
		return nil
	}
	return nil
}

// applyFullLC handles the BPTC-protected full link control: FLCO 8, FID 8,
// svc 8, TG 24, SRC 24, CRC-16.
func (h *DMR) applyFullLC(slot int, msg []byte, start bool) error {
	if fec.CRC16CCITT(msg[:9]) != uint32(msg[9])<<8|uint32(msg[10]) {
		h.fecErrs++
		return fec.ErrCRCMismatch
	}
	s := &h.slots[slot]
	svc := msg[2]
	s.tg = uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
	s.src = uint32(msg[6])<<16 | uint32(msg[7])<<8 | uint32(msg[8])
	s.muted = false
	if svc&svcOptEnc != 0 {
		s.muted = h.lock.Check(ProtoDMR, slot, s.tg, AlgRC4, 0)
	}

	if start {
		if h.deps.Ring != nil {
			rec := event.Record{
				Time:     h.deps.now(),
				Protocol: "DMR",
				TG:       s.tg,
				Target:   s.tg,
				Source:   s.src,
				Slot:     slot,
				SvcOpts:  svc,
				Summary:  "call start",
			}
			h.deps.Ring.Push(rec)
			if h.deps.ELog != nil {
				h.deps.ELog.Log(&rec)
			}
		}
		h.deps.TSM.Event(trunk.Event{
			Kind: trunk.EvPTT, Slot: slot, TG: s.tg, Source: s.src,
			SvcOpts: svc, IsGroup: true,
		})
	}
	return nil
}

// processCSBK handles Tier III control blocks, sharing the 12-byte message
// form with the LC: opcode, FID, 8 argument bytes, CRC-16.
func (h *DMR) processCSBK(msg []byte) error {
	if fec.CRC16CCITT(msg[:10]) != uint32(msg[10])<<8|uint32(msg[11]) {
		h.fecErrs++
		return fec.ErrCRCMismatch
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvCCSync})

	args := msg[2:10]
	be16 := func(i int) uint32 { return uint32(args[i])<<8 | uint32(args[i+1]) }
	be24 := func(i int) uint32 {
		return uint32(args[i])<<16 | uint32(args[i+1])<<8 | uint32(args[i+2])
	}

	switch msg[0] & 0x3F {
	case csbkGrant:
		h.deps.TSM.Event(trunk.Event{
			Kind:    trunk.EvGrant,
			SvcOpts: args[0],
			Channel: be16(1),
			TG:      be16(3),
			Source:  be24(5),
			IsGroup: true,
		})
	case csbkNeighbor:
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvNeighbor, Channel: be16(1)})
	case csbkClear:
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvEnd, IsGroup: true})
	case csbkAnnouncing:
		// C_BCAST channel plan: the Tier III equivalent of an IDEN_UP. The
		// trust ladder in the iden table applies; a single announcement is
		// only a learned entry.
		h.deps.TSM.Event(dmrChannelPlan(args))
	case csbkAloha:
		// Keepalive only; the CC sync above is the useful part.
	}
	return nil
}

// dmrChannelPlan unpacks the announcement's logical channel plan using the
// same field units as the P25 IDEN_UP: spacing and base in 125 Hz units,
// transmit offset in 250 kHz units. Tier III carriers are two-slot TDMA.
func dmrChannelPlan(args []byte) trunk.Event {
	spacing := int64(uint32(args[1])<<8|uint32(args[2])) * 125
	offset := int64(int16(uint16(args[3])<<8|uint16(args[4]))) * 250_000
	base := int64(uint32(args[5])<<16|uint32(args[6])<<8|uint32(args[7])) * 125
	return trunk.Event{
		Kind:    trunk.EvIden,
		IdenNum: int(args[0] >> 4),
		Iden: trunk.IdenEntry{
			BaseHz:    base,
			SpacingHz: spacing,
			OffsetHz:  offset,
			TDMA:      true,
			Slots:     2,
		},
	}
}

// Builders used when synthesizing DMR traffic.

func buildCACH(slot int) []Dibit {
	bits := make([]bool, 24)
	bits[1] = slot == 1
	fec.Hamming74Encode(bits[:7])
	return dibitsFromBits(bits)
}

func buildEMB(colorCode byte, lcss int) []Dibit {
	data := uint32(colorCode&0xF)<<3 | uint32(lcss&3)<<1
	cw := fec.QR1676Encode(data)
	out := make([]Dibit, dmrEMBDibits)
	for i := range out {
		out[i] = Dibit{Value: byte(cw >> (14 - 2*i) & 3), Reliability: 255}
	}
	return out
}

func buildSlotType(colorCode, dataType byte) []Dibit {
	cw := fec.Golay208Encode(uint32(colorCode&0xF)<<4 | uint32(dataType&0xF))
	out := make([]Dibit, dmrSlotDibits)
	for i := range out {
		out[i] = Dibit{Value: byte(cw >> (18 - 2*i) & 3), Reliability: 255}
	}
	return out
}

func buildFullLC(flco, svc byte, tg, src uint32) []Dibit {
	msg := make([]byte, 12)
	msg[0] = flco
	msg[2] = svc
	msg[3], msg[4], msg[5] = byte(tg>>16), byte(tg>>8), byte(tg)
	msg[6], msg[7], msg[8] = byte(src>>16), byte(src>>8), byte(src)
	crc := fec.CRC16CCITT(msg[:9])
	msg[9], msg[10] = byte(crc>>8), byte(crc)

	bits := make([]bool, 96)
	for i, b := range msg {
		fec.ByteToBits(b, bits[8*i:8*i+8])
	}
	return dibitsFromBits(fec.BPTC19696Encode(bits))
}

func buildCSBK(opcode byte, args [8]byte) []Dibit {
	msg := make([]byte, 12)
	msg[0] = opcode & 0x3F
	copy(msg[2:10], args[:])
	crc := fec.CRC16CCITT(msg[:10])
	msg[10], msg[11] = byte(crc>>8), byte(crc)

	bits := make([]bool, 96)
	for i, b := range msg {
		fec.ByteToBits(b, bits[8*i:8*i+8])
	}
	return dibitsFromBits(fec.BPTC19696Encode(bits))
}

func embeddedLCBits(svc byte, tg, src uint32) []bool {
	bits := make([]bool, dmrEmbLCBits)
	fec.ByteToBits(svc, bits[8:16])
	fec.UintToBits(tg, bits[16:40], 24)
	fec.UintToBits(src, bits[40:64], 24)
	fec.UintToBits(fec.CRC8(bits[:72]), bits[72:80], 8)
	return bits
}

// embeddedFragments splits the LC into the four per-burst BPTC fragments.
func embeddedFragments(bits []bool) [4][]Dibit {
	var out [4][]Dibit
	for i := 0; i < 4; i++ {
		out[i] = dibitsFromBits(fec.BPTC16x2Encode(bits[i*dmrFragBits : (i+1)*dmrFragBits]))
	}
	return out
}

func dibitsFromBits(bits []bool) []Dibit {
	out := make([]Dibit, len(bits)/2)
	for i := range out {
		var v byte
		if bits[2*i] {
			v |= 2
		}
		if bits[2*i+1] {
			v |= 1
		}
		out[i] = Dibit{Value: v, Reliability: 255}
	}
	return out
}
