package frame

import (
	"fmt"

	"github.com/arancormonk/dsd-neo-sub003/internal/event"
	"github.com/arancormonk/dsd-neo-sub003/internal/fec"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

// P25 phase 1 frame layout, in dibits after the sync word:
//
//	NID    16   extended Golay over NAC+DUID, zero padded
//	HDU    144  48 hexbits, shortened RS(63,35) over MI/ALG/KID/TG
//	TDU    0
//	TDULC  36   12 hexbits, RS(12,9) link control
//	LDU    740  link-control or encryption-sync block, 9 voice codewords, LSD
//	TSBK   98   per block, rate 1/2 trellis, up to 3 chained blocks
//
// Voice codewords are 72 dibits and pass through opaque to the vocoder.

const (
	duidHDU   = 0x0
	duidTDU   = 0x3
	duidLDU1  = 0x5
	duidTSBK  = 0x7
	duidLDU2  = 0xA
	duidMPDU  = 0xC
	duidTDULC = 0xF
)

const (
	p25NIDDibits   = 16
	p25HDUHexbits  = 48
	p25HDUData     = 20
	p25RSPad       = 15 // zero symbols reinserted for the shortened RS(63,35)
	p25VoiceDibits = 72
	p25LSDDibits   = 20
	p25TSBKDibits  = 98
)

// TSBK opcodes.
const (
	oscGrpVoiceGrant     = 0x00
	oscGrpVoiceGrantUpdt = 0x02
	oscUnitVoiceGrant    = 0x04
	oscGrpAffRsp         = 0x28
	oscPatchAdd          = 0x30
	oscIdenUpTDMA        = 0x33
	oscSecondaryCC       = 0x39
	oscNetStatus         = 0x3B
	oscAdjacentStatus    = 0x3C
	oscIdenUp            = 0x3D
)

// P25p1 decodes phase 1 frames. Per-call encryption state persists across
// LDUs so the expected MI can be checked superframe to superframe.
type P25p1 struct {
	deps *Deps
	lock *Lockout

	nac   uint32
	tg    uint32
	src   uint32
	alg   byte
	kid   uint16
	mi    [9]byte
	muted bool

	fecErrs   int
	voiceRel  int
	voiceRelN int
}

// NewP25p1 builds the handler.
func NewP25p1(deps *Deps) *P25p1 {
	return &P25p1{deps: deps, lock: newLockout(deps)}
}

// Proto identifies the handler.
func (h *P25p1) Proto() Protocol { return ProtoP25p1 }

// FECErrors reports the uncorrectable-frame count since the last reset; the
// dispatcher uses it to adapt sync tolerance.
func (h *P25p1) FECErrors() int { return h.fecErrs }

// ResetFECErrors clears the counter.
func (h *P25p1) ResetFECErrors() { h.fecErrs = 0 }

// Process decodes one frame body following a phase 1 sync.
func (h *P25p1) Process(_ SyncMatch, src Source) error {
	nac, duid, err := h.decodeNID(src)
	if err != nil {
		h.fecErrs++
		return err
	}
	h.nac = nac

	switch duid {
	case duidHDU:
		return h.processHDU(src)
	case duidLDU1:
		return h.processLDU(src, false)
	case duidLDU2:
		return h.processLDU(src, true)
	case duidTDU:
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvTDU})
		h.endCall()
		return nil
	case duidTDULC:
		return h.processTDULC(src)
	case duidTSBK:
		return h.processTSBK(src)
	case duidMPDU:
		return h.processMPDU(src)
	}
	return fmt.Errorf("p25p1: unknown duid 0x%X", duid)
}

func (h *P25p1) endCall() {
	h.alg = 0
	h.kid = 0
	h.mi = [9]byte{}
	h.muted = false
}

// decodeNID reads the network identifier: NAC(12)+DUID(4) in an extended
// Golay codeword, followed by pad dibits.
func (h *P25p1) decodeNID(src Source) (nac uint32, duid byte, err error) {
	dibits, err := collect(src, p25NIDDibits)
	if err != nil {
		return 0, 0, err
	}
	var cw uint32
	for _, d := range dibits[:12] {
		cw = cw<<2 | uint32(d.Value)
	}
	data, _, err := fec.Golay2412Decode(cw)
	if err != nil {
		return 0, 0, err
	}
	return data >> 4, byte(data & 0xF), nil
}

func buildNID(nac uint32, duid byte) []Dibit {
	cw := fec.Golay2412Encode(nac<<4 | uint32(duid))
	out := make([]Dibit, p25NIDDibits)
	for i := 0; i < 12; i++ {
		out[i] = Dibit{Value: byte(cw >> (22 - 2*i) & 3), Reliability: 255}
	}
	for i := 12; i < p25NIDDibits; i++ {
		out[i] = Dibit{Reliability: 255}
	}
	return out
}

// hexbits packs 3 dibits per 6-bit symbol.
func hexbitsFrom(dibits []Dibit) []byte {
	out := make([]byte, len(dibits)/3)
	for i := range out {
		out[i] = dibits[3*i].Value<<4 | dibits[3*i+1].Value<<2 | dibits[3*i+2].Value
	}
	return out
}

func dibitsFromHexbits(hexbits []byte) []Dibit {
	out := make([]Dibit, 3*len(hexbits))
	for i, hb := range hexbits {
		out[3*i] = Dibit{Value: hb >> 4 & 3, Reliability: 255}
		out[3*i+1] = Dibit{Value: hb >> 2 & 3, Reliability: 255}
		out[3*i+2] = Dibit{Value: hb & 3, Reliability: 255}
	}
	return out
}

// processHDU decodes the header: MI, algorithm, key id and talkgroup under
// the shortened RS(63,35).
func (h *P25p1) processHDU(src Source) error {
	dibits, err := collect(src, p25HDUHexbits*3)
	if err != nil {
		return err
	}
	full := make([]byte, p25RSPad+p25HDUHexbits)
	copy(full[p25RSPad:], hexbitsFrom(dibits))
	if _, err := rsHDU.Decode(full); err != nil {
		h.fecErrs++
		return err
	}
	hex := full[p25RSPad : p25RSPad+p25HDUData]

	// 20 hexbits: MI 72, ALGID 8, KID 16, TG 16, 8 spare.
	bits := make([]bool, 6*p25HDUData)
	for i, hb := range hex {
		for b := 0; b < 6; b++ {
			bits[6*i+b] = hb&(1<<(5-b)) != 0
		}
	}
	for i := 0; i < 9; i++ {
		h.mi[i] = fec.BitsToByte(bits[8*i : 8*i+8])
	}
	h.alg = fec.BitsToByte(bits[72:80])
	h.kid = uint16(fec.BitsToUint(bits[80:96]))
	h.tg = fec.BitsToUint(bits[96:112])

	h.muted = h.lock.Check(ProtoP25p1, 0, h.tg, h.alg, h.kid)
	h.pushCallRecord("voice header")
	h.deps.TSM.Event(trunk.Event{
		Kind: trunk.EvPTT, TG: h.tg, AlgID: h.alg, KeyID: h.kid, IsGroup: true,
	})
	return nil
}

var rsHDU = fec.RS6335

func buildHDU(mi [9]byte, alg byte, kid uint16, tg uint32) []Dibit {
	bits := make([]bool, 6*p25HDUData)
	for i, b := range mi {
		fec.ByteToBits(b, bits[8*i:8*i+8])
	}
	fec.ByteToBits(alg, bits[72:80])
	fec.UintToBits(uint32(kid), bits[80:96], 16)
	fec.UintToBits(tg, bits[96:112], 16)

	data := make([]byte, p25RSPad+p25HDUData)
	for i := 0; i < p25HDUData; i++ {
		var hb byte
		for b := 0; b < 6; b++ {
			hb <<= 1
			if bits[6*i+b] {
				hb |= 1
			}
		}
		data[p25RSPad+i] = hb
	}
	cw := rsHDU.Encode(data)
	return dibitsFromHexbits(cw[p25RSPad:])
}

// processLDU handles LDU1 (link control) and LDU2 (encryption sync). The
// encryption-sync path reads the raw pre-correction fields first for an
// early policy gate, then lets the corrected values overrule them.
func (h *P25p1) processLDU(src Source, es bool) error {
	lcDibits, err := collect(src, 72)
	if err != nil {
		return err
	}
	if es {
		// Early gate on raw symbols: mute before any voice of this
		// superframe is emitted. Only the corrected values below carry the
		// lockout side effects, so a correctable symbol error here can
		// never mark a group.
		raw := hexbitsFrom(lcDibits)
		rawAlg, rawKid := esFields(raw[:16])
		if !algClear(rawAlg) && (h.deps.Keys == nil || !h.deps.Keys.HasKeyFor(rawAlg, rawKid)) {
			h.muted = true
		}
	}

	cw := make([]byte, 24)
	copy(cw, hexbitsFrom(lcDibits))
	if _, err := fec.RS2416.Decode(cw); err != nil {
		h.fecErrs++
		if es && !algClear(h.alg) {
			// The sync word is lost but the cipher marches on: predict the
			// next superframe's MI so the keystream stays aligned.
			h.advanceMI()
		}
	} else if es {
		// Corrected values are authoritative and may differ from the raw
		// read above.
		h.applyES(cw[:16])
	} else {
		h.applyLC(cw[:16])
	}

	relSum, relN := 0, 0
	for i := 0; i < 9; i++ {
		vc, err := collect(src, p25VoiceDibits)
		if err != nil {
			return err
		}
		for _, d := range vc {
			relSum += int(d.Reliability)
			relN++
		}
		if h.deps.Voice != nil && !h.muted {
			h.deps.Voice.PushVoice(0, dibitPack(vc))
		}
	}
	h.trackVoiceQuality(relSum, relN)

	lsd, err := collect(src, p25LSDDibits)
	if err != nil {
		return err
	}
	h.processLSD(lsd)

	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvVCSync, TG: h.tg, Source: h.src, IsGroup: true})
	return nil
}

// esFields pulls ALGID and KID from the encryption-sync hexbits without any
// correction applied.
func esFields(hex []byte) (alg byte, kid uint16) {
	bits := esBits(hex)
	return fec.BitsToByte(bits[72:80]), uint16(fec.BitsToUint(bits[80:96]))
}

func esBits(hex []byte) []bool {
	bits := make([]bool, 96)
	for i, hb := range hex {
		for b := 0; b < 6; b++ {
			bits[6*i+b] = hb&(1<<(5-b)) != 0
		}
	}
	return bits
}

// applyES installs corrected encryption sync: MI 72, ALGID 8, KID 16.
func (h *P25p1) applyES(hex []byte) {
	bits := esBits(hex)
	var mi [9]byte
	for i := 0; i < 9; i++ {
		mi[i] = fec.BitsToByte(bits[8*i : 8*i+8])
	}
	alg := fec.BitsToByte(bits[72:80])
	kid := uint16(fec.BitsToUint(bits[80:96]))

	h.mi = mi
	h.alg = alg
	h.kid = kid
	h.muted = h.lock.Check(ProtoP25p1, 0, h.tg, alg, kid)
	if h.deps.Ring != nil {
		var iv [16]byte
		if algIsAES(alg) {
			iv = ExpandIV(miRegister(mi))
		}
		h.deps.Ring.Update(func(r *event.Record) {
			r.AlgID = alg
			r.KeyID = kid
			r.MI = mi
			r.IV = iv
		})
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvEnc, TG: h.tg, AlgID: alg, KeyID: kid})
}

// miRegister packs the first eight MI bytes into the 64-bit LFSR register;
// the ninth byte sits outside the shift register.
func miRegister(mi [9]byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(mi[i])
	}
	return v
}

// advanceMI predicts the next superframe's message indicator when the
// encryption sync word is unrecoverable, so a mid-call join survives a bad
// superframe without losing keystream alignment.
func (h *P25p1) advanceMI() {
	next := MIAdvance(miRegister(h.mi))
	for i := 0; i < 8; i++ {
		h.mi[i] = byte(next >> (56 - 8*i))
	}
	if h.deps.Ring != nil {
		mi := h.mi
		var iv [16]byte
		if algIsAES(h.alg) {
			iv = ExpandIV(miRegister(mi))
		}
		h.deps.Ring.Update(func(r *event.Record) {
			r.MI = mi
			r.IV = iv
		})
	}
}

// applyLC installs corrected link control: LCF 8, MFID 8, svc 8, TG 16,
// SRC 24.
func (h *P25p1) applyLC(hex []byte) {
	bits := esBits(hex)
	h.tg = fec.BitsToUint(bits[24:40])
	h.src = fec.BitsToUint(bits[40:64])
	if h.deps.Ring != nil {
		h.deps.Ring.Update(func(r *event.Record) {
			r.TG = h.tg
			r.Target = h.tg
			r.Source = h.src
		})
	}
}

func buildLDUControl(hex16 []byte) []Dibit {
	cw := fec.RS2416.Encode(hex16)
	return dibitsFromHexbits(cw)
}

func ldu1ControlHexbits(tg, src uint32, svc byte) []byte {
	bits := make([]bool, 96)
	fec.UintToBits(uint32(svc), bits[16:24], 8)
	fec.UintToBits(tg, bits[24:40], 16)
	fec.UintToBits(src, bits[40:64], 24)
	return packHexbits(bits)
}

func ldu2ControlHexbits(mi [9]byte, alg byte, kid uint16) []byte {
	bits := make([]bool, 96)
	for i, b := range mi {
		fec.ByteToBits(b, bits[8*i:8*i+8])
	}
	fec.ByteToBits(alg, bits[72:80])
	fec.UintToBits(uint32(kid), bits[80:96], 16)
	return packHexbits(bits)
}

func packHexbits(bits []bool) []byte {
	out := make([]byte, len(bits)/6)
	for i := range out {
		var hb byte
		for b := 0; b < 6; b++ {
			hb <<= 1
			if bits[6*i+b] {
				hb |= 1
			}
		}
		out[i] = hb
	}
	return out
}

// processLSD decodes the two low-speed-data bytes, each under a (20,8)
// Golay. Encrypted calls zero them rather than emitting keystream bytes.
func (h *P25p1) processLSD(dibits []Dibit) {
	var lsd [2]byte
	for i := 0; i < 2; i++ {
		var cw uint32
		for _, d := range dibits[10*i : 10*i+10] {
			cw = cw<<2 | uint32(d.Value)
		}
		data, _, err := fec.Golay208Decode(cw)
		if err != nil {
			return
		}
		lsd[i] = byte(data)
	}
	if !algClear(h.alg) {
		lsd = [2]byte{}
	}
	if h.deps.Ring != nil && (lsd[0] != 0 || lsd[1] != 0) {
		h.deps.Ring.Update(func(r *event.Record) {
			r.Text = fmt.Sprintf("LSD %02X%02X", lsd[0], lsd[1])
		})
	}
}

func buildLSD(b0, b1 byte) []Dibit {
	out := make([]Dibit, 0, p25LSDDibits)
	for _, b := range []byte{b0, b1} {
		cw := fec.Golay208Encode(uint32(b))
		for i := 0; i < 10; i++ {
			out = append(out, Dibit{Value: byte(cw >> (18 - 2*i) & 3), Reliability: 255})
		}
	}
	return out
}

// dibitPack packs dibits MSB-first into bytes, 4 per byte.
func dibitPack(dibits []Dibit) []byte {
	out := make([]byte, len(dibits)/4)
	for i := range out {
		out[i] = dibits[4*i].Value<<6 | dibits[4*i+1].Value<<4 |
			dibits[4*i+2].Value<<2 | dibits[4*i+3].Value
	}
	return out
}

func (h *P25p1) trackVoiceQuality(relSum, relN int) {
	h.voiceRel += relSum
	h.voiceRelN += relN
	if h.voiceRelN < 9*p25VoiceDibits {
		return
	}
	hot := h.voiceRel/h.voiceRelN < 96
	if eh, ok := h.deps.TSM.(interface{ SetVoiceErrorHot(bool) }); ok {
		eh.SetVoiceErrorHot(hot)
	}
	h.voiceRel, h.voiceRelN = 0, 0
}

// processTDULC decodes the terminator link control under RS(12,9).
func (h *P25p1) processTDULC(src Source) error {
	dibits, err := collect(src, 36)
	if err != nil {
		return err
	}
	cw := make([]byte, 12)
	copy(cw, hexbitsFrom(dibits))
	if _, err := fec.RS129.Decode(cw); err != nil {
		h.fecErrs++
	} else {
		// 9 hexbits: LCF 8, TG 16, SRC 24, 6 spare.
		bits := make([]bool, 54)
		for i, hb := range cw[:9] {
			for b := 0; b < 6; b++ {
				bits[6*i+b] = hb&(1<<(5-b)) != 0
			}
		}
		if tg := fec.BitsToUint(bits[8:24]); tg != 0 {
			h.tg = tg
		}
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvTDU, TG: h.tg})
	h.endCall()
	return nil
}

func buildTDULC(tg, src uint32) []Dibit {
	bits := make([]bool, 54)
	fec.UintToBits(tg, bits[8:24], 16)
	fec.UintToBits(src, bits[24:48], 24)
	data := make([]byte, 9)
	for i := range data {
		var hb byte
		for b := 0; b < 6; b++ {
			hb <<= 1
			if bits[6*i+b] {
				hb |= 1
			}
		}
		data[i] = hb
	}
	return dibitsFromHexbits(fec.RS129.Encode(data))
}

// processTSBK walks up to three chained trunking signalling blocks.
func (h *P25p1) processTSBK(src Source) error {
	for blk := 0; blk < 3; blk++ {
		dibits, err := collect(src, p25TSBKDibits)
		if err != nil {
			return err
		}
		dec, err := fec.Trellis12Decode(dibitValues(dibits), dibitReliability(dibits))
		if err != nil {
			h.fecErrs++
			return err
		}
		msg := dibitsToBytes(dec)
		if len(msg) < 12 {
			return ErrShortFrame
		}
		msg = msg[:12]
		if fec.CRC16CCITT(msg[:10]) != uint32(msg[10])<<8|uint32(msg[11]) {
			h.fecErrs++
			return fec.ErrCRCMismatch
		}
		last := msg[0]&0x80 != 0
		h.processTSBKMessage(msg)
		if last {
			return nil
		}
	}
	return nil
}

func dibitsToBytes(dibits []byte) []byte {
	out := make([]byte, len(dibits)/4)
	for i := range out {
		out[i] = dibits[4*i]<<6 | dibits[4*i+1]<<4 | dibits[4*i+2]<<2 | dibits[4*i+3]
	}
	return out
}

func bytesToDibits(data []byte) []byte {
	out := make([]byte, 0, 4*len(data))
	for _, b := range data {
		out = append(out, b>>6&3, b>>4&3, b>>2&3, b&3)
	}
	return out
}

// buildTSBK assembles one signalling block: opcode, 8 argument bytes, CRC,
// trellis encoded. last sets the chain-terminator bit.
func buildTSBK(opcode byte, args [8]byte, last bool) []Dibit {
	msg := make([]byte, 12)
	msg[0] = opcode & 0x3F
	if last {
		msg[0] |= 0x80
	}
	copy(msg[2:10], args[:])
	crc := fec.CRC16CCITT(msg[:10])
	msg[10], msg[11] = byte(crc>>8), byte(crc)

	enc := fec.Trellis12Encode(bytesToDibits(msg))
	out := make([]Dibit, len(enc))
	for i, d := range enc {
		out[i] = Dibit{Value: d, Reliability: 255}
	}
	return out
}

func (h *P25p1) processTSBKMessage(msg []byte) {
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvCCSync})
	op := msg[0] & 0x3F
	args := msg[2:10]
	be16 := func(i int) uint32 { return uint32(args[i])<<8 | uint32(args[i+1]) }
	be24 := func(i int) uint32 {
		return uint32(args[i])<<16 | uint32(args[i+1])<<8 | uint32(args[i+2])
	}

	switch op {
	case oscGrpVoiceGrant:
		h.emitGrant(trunk.Event{
			Kind:    trunk.EvGrant,
			SvcOpts: args[0],
			Channel: be16(1),
			TG:      be16(3),
			Source:  be24(5),
			IsGroup: true,
		})
	case oscGrpVoiceGrantUpdt:
		h.emitGrant(trunk.Event{
			Kind: trunk.EvGrant, Channel: be16(0), TG: be16(2), IsGroup: true,
		})
		if ch2, tg2 := be16(4), be16(6); ch2 != 0 {
			h.emitGrant(trunk.Event{
				Kind: trunk.EvGrant, Channel: ch2, TG: tg2, IsGroup: true,
			})
		}
	case oscUnitVoiceGrant:
		h.emitGrant(trunk.Event{
			Kind:    trunk.EvGrant,
			Channel: be16(0),
			TG:      be24(2),
			Source:  be24(5),
			IsGroup: false,
		})
	case oscGrpAffRsp:
		h.deps.TSM.Event(trunk.Event{
			Kind: trunk.EvIdle, TG: be16(0), Source: be24(2), IsGroup: true,
		})
	case oscIdenUp, oscIdenUpTDMA:
		h.deps.TSM.Event(idenEvent(op, args))
	case oscSecondaryCC, oscAdjacentStatus:
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvNeighbor, Channel: be16(1)})
	case oscNetStatus:
		if h.deps.Ring != nil {
			wacn := be24(0) >> 4
			sys := be24(2) & 0xFFF
			h.deps.Ring.Update(func(r *event.Record) {
				r.WACN = wacn
				r.SystemID = sys
				r.NAC = h.nac
			})
		}
	case oscPatchAdd:
		// Patch supergroup add: SGID then up to two member groups.
		if pa, ok := h.deps.TSM.(interface{ AddPatch(sg, wg uint32) }); ok {
			sg := be16(0)
			pa.AddPatch(sg, be16(2))
			if g2 := be16(4); g2 != 0 {
				pa.AddPatch(sg, g2)
			}
		}
	}
}

// idenEvent unpacks an IDEN_UP broadcast. Spacing is carried in 125 Hz
// units, the transmit offset in 250 kHz units, the base in 125 Hz units.
func idenEvent(op byte, args []byte) trunk.Event {
	iden := int(args[0] >> 4)
	slots := int(args[0] & 0xF)
	if slots < 1 {
		slots = 1
	}
	spacing := int64(uint32(args[1])<<8|uint32(args[2])) * 125
	offset := int64(int16(uint16(args[3])<<8|uint16(args[4]))) * 250_000
	base := int64(uint32(args[5])<<16|uint32(args[6])<<8|uint32(args[7])) * 125
	return trunk.Event{
		Kind:    trunk.EvIden,
		IdenNum: iden,
		Iden: trunk.IdenEntry{
			BaseHz:    base,
			SpacingHz: spacing,
			OffsetHz:  offset,
			TDMA:      op == oscIdenUpTDMA && slots > 1,
			Slots:     slots,
		},
	}
}

// buildIdenUpArgs is the inverse of idenEvent, used when synthesizing
// control traffic.
func buildIdenUpArgs(iden, slots int, baseHz, spacingHz, offsetHz int64) [8]byte {
	var args [8]byte
	args[0] = byte(iden)<<4 | byte(slots)
	sp := spacingHz / 125
	args[1], args[2] = byte(sp>>8), byte(sp)
	off := uint16(int16(offsetHz / 250_000))
	args[3], args[4] = byte(off>>8), byte(off)
	b := baseHz / 125
	args[5], args[6], args[7] = byte(b>>16), byte(b>>8), byte(b)
	return args
}

func (h *P25p1) emitGrant(ev trunk.Event) {
	h.deps.TSM.Event(ev)
	if h.deps.Ring != nil && ev.TG != 0 {
		rec := event.Record{
			Time:     h.deps.now(),
			Protocol: "P25p1",
			NAC:      h.nac,
			TG:       ev.TG,
			Target:   ev.TG,
			Source:   ev.Source,
			Channel:  ev.Channel,
			SvcOpts:  ev.SvcOpts,
			Summary:  "voice grant",
		}
		h.deps.Ring.Push(rec)
		if h.deps.ELog != nil {
			h.deps.ELog.Log(&rec)
		}
	}
	h.tg = ev.TG
	h.src = ev.Source
}

func (h *P25p1) pushCallRecord(summary string) {
	if h.deps.Ring == nil {
		return
	}
	rec := event.Record{
		Time:     h.deps.now(),
		Protocol: "P25p1",
		NAC:      h.nac,
		TG:       h.tg,
		Target:   h.tg,
		Source:   h.src,
		AlgID:    h.alg,
		KeyID:    h.kid,
		MI:       h.mi,
		Summary:  summary,
	}
	h.deps.Ring.Push(rec)
	if h.deps.ELog != nil {
		h.deps.ELog.Log(&rec)
	}
}

// processMPDU reads the packet data header block and reports the data call;
// the payload blocks are counted and skipped.
func (h *P25p1) processMPDU(src Source) error {
	dibits, err := collect(src, p25TSBKDibits)
	if err != nil {
		return err
	}
	dec, err := fec.Trellis12Decode(dibitValues(dibits), dibitReliability(dibits))
	if err != nil {
		h.fecErrs++
		return err
	}
	hdr := dibitsToBytes(dec)
	if len(hdr) < 12 {
		return ErrShortFrame
	}
	hdr = hdr[:12]
	if fec.CRC16CCITT(hdr[:10]) != uint32(hdr[10])<<8|uint32(hdr[11]) {
		h.fecErrs++
		return fec.ErrCRCMismatch
	}
	blocks := int(hdr[6] & 0x7F)
	llid := uint32(hdr[3])<<16 | uint32(hdr[4])<<8 | uint32(hdr[5])
	for i := 0; i < blocks; i++ {
		if _, err := collect(src, p25TSBKDibits); err != nil {
			return err
		}
	}
	if h.deps.Ring != nil {
		rec := event.Record{
			Time:     h.deps.now(),
			Protocol: "P25p1",
			NAC:      h.nac,
			Target:   llid,
			Summary:  fmt.Sprintf("data call, %d blocks", blocks),
		}
		h.deps.Ring.Push(rec)
	}
	return nil
}
