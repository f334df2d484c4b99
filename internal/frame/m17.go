package frame

import (
	"strings"

	"github.com/arancormonk/dsd-neo-sub003/internal/event"
	"github.com/arancormonk/dsd-neo-sub003/internal/fec"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
)

// M17 link setup frame: DST 6, SRC 6, TYPE 2, META 14, CRC-16 over the
// first 28 bytes, rate 1/2 trellis encoded. Stream frames are uncoded:
// frame number 16, payload 128, CRC-16, with the top FN bit flagging the
// last frame. Addresses are base-40 callsigns.

const (
	m17LSFBytes     = 30
	m17LSFDibits    = 2 * (4*m17LSFBytes + 1)
	m17StreamDibits = 80
)

const m17Alphabet = " ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-/."

// M17 decodes LSF and stream frames.
type M17 struct {
	deps *Deps
	lock *Lockout

	dst     string
	src     string
	muted   bool
	inCall  bool
	fecErrs int
}

// NewM17 builds the handler.
func NewM17(deps *Deps) *M17 { return &M17{deps: deps, lock: newLockout(deps)} }

// Proto identifies the handler.
func (h *M17) Proto() Protocol { return ProtoM17 }

// FECErrors reports uncorrectable frames since the last reset.
func (h *M17) FECErrors() int { return h.fecErrs }

// ResetFECErrors clears the counter.
func (h *M17) ResetFECErrors() { h.fecErrs = 0 }

// Process decodes one M17 frame; the sync word distinguishes LSF from
// stream.
func (h *M17) Process(match SyncMatch, src Source) error {
	if match.Pattern.Type == FrameVoiceHeader {
		return h.processLSF(src)
	}
	return h.processStream(src)
}

func (h *M17) processLSF(src Source) error {
	dibits, err := collect(src, m17LSFDibits)
	if err != nil {
		return err
	}
	dec, err := fec.Trellis12Decode(dibitValues(dibits), dibitReliability(dibits))
	if err != nil {
		h.fecErrs++
		return err
	}
	lsf := dibitsToBytes(dec)
	if len(lsf) < m17LSFBytes {
		return ErrShortFrame
	}
	lsf = lsf[:m17LSFBytes]
	if fec.CRC16CCITT(lsf[:28]) != uint32(lsf[28])<<8|uint32(lsf[29]) {
		h.fecErrs++
		return fec.ErrCRCMismatch
	}

	h.dst = decodeM17Callsign(lsf[0:6])
	h.src = decodeM17Callsign(lsf[6:12])
	typ := uint16(lsf[12])<<8 | uint16(lsf[13])
	encType := byte(typ >> 3 & 3)

	h.muted = false
	switch encType {
	case 1:
		h.muted = h.lock.Check(ProtoM17, 0, 0, AlgRC4, 0)
	case 2:
		h.muted = h.lock.Check(ProtoM17, 0, 0, AlgAES256, 0)
	}
	h.inCall = true

	if h.deps.Ring != nil {
		rec := event.Record{
			Time:     h.deps.now(),
			Protocol: "M17",
			Alias:    h.src,
			Text:     h.dst,
			Summary:  "link setup " + h.src + " > " + h.dst,
		}
		h.deps.Ring.Push(rec)
		if h.deps.ELog != nil {
			h.deps.ELog.Log(&rec)
		}
	}
	h.deps.TSM.Event(trunk.Event{Kind: trunk.EvPTT})
	return nil
}

func (h *M17) processStream(src Source) error {
	dibits, err := collect(src, m17StreamDibits)
	if err != nil {
		return err
	}
	bits := dibitBits(dibits)
	want := fec.CRC16CCITTBits(bits[:144])
	if fec.BitsToUint(bits[144:160]) != want {
		h.fecErrs++
		return fec.ErrCRCMismatch
	}

	fn := fec.BitsToUint(bits[:16])
	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = fec.BitsToByte(bits[16+8*i : 24+8*i])
	}
	if h.deps.Voice != nil && !h.muted {
		h.deps.Voice.PushVoice(0, payload)
	}

	if fn&0x8000 != 0 {
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvEnd})
		h.inCall = false
		h.muted = false
	} else {
		h.deps.TSM.Event(trunk.Event{Kind: trunk.EvVCSync})
	}
	return nil
}

// decodeM17Callsign expands a 48-bit base-40 address. The all-ones value is
// the broadcast address.
func decodeM17Callsign(b []byte) string {
	var v uint64
	for _, by := range b {
		v = v<<8 | uint64(by)
	}
	if v == 0xFFFFFFFFFFFF {
		return "BROADCAST"
	}
	var sb strings.Builder
	for v > 0 {
		sb.WriteByte(m17Alphabet[v%40])
		v /= 40
	}
	return sb.String()
}

// encodeM17Callsign is the inverse, used when synthesizing traffic.
func encodeM17Callsign(cs string) []byte {
	var v uint64
	for i := len(cs) - 1; i >= 0; i-- {
		idx := strings.IndexByte(m17Alphabet, cs[i])
		if idx < 0 {
			idx = 0
		}
		v = v*40 + uint64(idx)
	}
	out := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func buildM17LSF(dst, src string, typ uint16) []Dibit {
	lsf := make([]byte, m17LSFBytes)
	copy(lsf[0:6], encodeM17Callsign(dst))
	copy(lsf[6:12], encodeM17Callsign(src))
	lsf[12], lsf[13] = byte(typ>>8), byte(typ)
	crc := fec.CRC16CCITT(lsf[:28])
	lsf[28], lsf[29] = byte(crc>>8), byte(crc)

	enc := fec.Trellis12Encode(bytesToDibits(lsf))
	out := make([]Dibit, len(enc))
	for i, d := range enc {
		out[i] = Dibit{Value: d, Reliability: 255}
	}
	return out
}

func buildM17Stream(fn uint16, payload [16]byte) []Dibit {
	bits := make([]bool, 160)
	fec.UintToBits(uint32(fn), bits[:16], 16)
	for i, b := range payload {
		fec.ByteToBits(b, bits[16+8*i:24+8*i])
	}
	fec.UintToBits(fec.CRC16CCITTBits(bits[:144]), bits[144:160], 16)
	return dibitsFromBits(bits)
}
