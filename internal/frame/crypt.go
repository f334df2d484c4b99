package frame

// P25 message-indicator keystream alignment. The 64-bit MI register runs the
// LFSR x^64 + x^62 + x^46 + x^38 + x^27 + x^15 + 1; advancing a call's MI by
// one superframe is 64 ticks. AES algorithms expand the 64-bit MI into a
// 128-bit IV by appending the next 64 register bits.

// lfsrTick64 shifts the register once. The feedback taps are the polynomial
// exponents 64, 62, 46, 38, 27, 15 counted from the MSB end.
func lfsrTick64(v uint64) uint64 {
	fb := (v >> 63) ^ (v >> 61) ^ (v >> 45) ^ (v >> 37) ^ (v >> 26) ^ (v >> 14)
	return v<<1 | fb&1
}

// MIAdvance produces the next superframe's MI: 64 LFSR ticks. It is a pure
// function of its input.
func MIAdvance(mi uint64) uint64 {
	for i := 0; i < 64; i++ {
		mi = lfsrTick64(mi)
	}
	return mi
}

// ExpandIV builds the 128-bit AES IV: the MI itself followed by the 64 bits
// the LFSR produces next.
func ExpandIV(mi uint64) [16]byte {
	var iv [16]byte
	next := MIAdvance(mi)
	for i := 0; i < 8; i++ {
		iv[i] = byte(mi >> (56 - 8*i))
		iv[8+i] = byte(next >> (56 - 8*i))
	}
	return iv
}

// Encryption algorithm identifiers used by the policy checks.
const (
	AlgClear  = 0x80
	AlgAES256 = 0x84
	AlgAES128 = 0x89
	AlgDES    = 0x81
	AlgDESXL  = 0x9F
	AlgRC4    = 0xAA
)

// algIsAES reports whether the algorithm needs a loaded AES key.
func algIsAES(alg byte) bool { return alg == AlgAES256 || alg == AlgAES128 }

// algClear reports a clear or absent algorithm.
func algClear(alg byte) bool { return alg == 0 || alg == AlgClear }

// Keystore is the bounded key-id to key-material map loaded at startup.
type Keystore struct {
	keys map[uint16][]byte
}

// NewKeystore returns an empty store.
func NewKeystore() *Keystore {
	return &Keystore{keys: make(map[uint16][]byte)}
}

// Load registers key material for a key id.
func (k *Keystore) Load(keyID uint16, key []byte) {
	k.keys[keyID] = append([]byte(nil), key...)
}

// HasKeyFor reports whether usable key material exists for the algorithm.
// Legacy algorithms need a nonzero key register; AES needs a loaded key of
// full length.
func (k *Keystore) HasKeyFor(alg byte, keyID uint16) bool {
	if algClear(alg) {
		return true
	}
	key, ok := k.keys[keyID]
	if !ok {
		return false
	}
	if algIsAES(alg) {
		want := 32
		if alg == AlgAES128 {
			want = 16
		}
		return len(key) >= want
	}
	for _, b := range key {
		if b != 0 {
			return true
		}
	}
	return false
}
