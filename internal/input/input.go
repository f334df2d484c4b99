// Package input provides baseband sample sources for the decoder.
//
// All sources deliver interleaved I/Q blocks as complex64. The wire
// formats are little-endian int16 pairs (the rtl_tcp / GQRX UDP
// convention) or raw float32 pairs from capture files.
package input

import (
	"errors"
	"fmt"
	"math"
)

// ErrDeviceIO reports an unrecoverable sample transport failure, after
// the single reconnect attempt has been spent.
var ErrDeviceIO = errors.New("device io failure")

// Source delivers baseband sample blocks. Read fills buf with as many
// complete complex samples as available and returns the count; io.EOF
// marks end of a file source.
type Source interface {
	Read(buf []complex64) (int, error)
	Close() error
}

// Format selects the wire sample encoding.
type Format int

const (
	FormatInt16 Format = iota
	FormatFloat32
)

// ParseFormat maps the config strings onto a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "int16":
		return FormatInt16, nil
	case "float32":
		return FormatFloat32, nil
	}
	return 0, fmt.Errorf("unknown sample format %q", s)
}

// BytesPerSample is the wire size of one complex sample.
func (f Format) BytesPerSample() int {
	if f == FormatFloat32 {
		return 8
	}
	return 4
}

func (f Format) String() string {
	if f == FormatFloat32 {
		return "float32"
	}
	return "int16"
}

// decodeBlock converts whole complex samples from raw into out and
// returns how many it produced. Trailing partial samples are ignored;
// callers carry those bytes over to the next read.
func decodeBlock(f Format, raw []byte, out []complex64) int {
	bps := f.BytesPerSample()
	n := len(raw) / bps
	if n > len(out) {
		n = len(out)
	}
	switch f {
	case FormatInt16:
		for i := 0; i < n; i++ {
			re := int16(uint16(raw[4*i]) | uint16(raw[4*i+1])<<8)
			im := int16(uint16(raw[4*i+2]) | uint16(raw[4*i+3])<<8)
			out[i] = complex(float32(re)/32768, float32(im)/32768)
		}
	case FormatFloat32:
		for i := 0; i < n; i++ {
			re := math.Float32frombits(le32(raw[8*i:]))
			im := math.Float32frombits(le32(raw[8*i+4:]))
			out[i] = complex(re, im)
		}
	}
	return n
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
