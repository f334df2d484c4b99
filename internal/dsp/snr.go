package dsp

import "math"

// SNRMeter estimates SNR from sliced symbols: the signal power is the EMA of
// the squared nearest ideal level, the noise power the EMA of the squared
// distance from it. The mapping from that ratio to displayed dB carries a
// bias that differs per demodulation path and input source, so the bias is
// injected rather than fixed here.
type SNRMeter struct {
	sig   float64
	noise float64
	ready bool
	bias  func(db float64) float64
}

const snrAlpha = 0.01

// NewSNRMeter builds a meter; bias may be nil for the raw ratio.
func NewSNRMeter(bias func(db float64) float64) *SNRMeter {
	return &SNRMeter{bias: bias}
}

// Update folds one soft symbol into the estimate.
func (m *SNRMeter) Update(soft float32) {
	ideal := float64(nearestLevel(soft))
	err := float64(soft) - ideal
	s := ideal * ideal
	n := err * err
	if !m.ready {
		m.sig = s
		m.noise = n
		m.ready = true
		return
	}
	m.sig += snrAlpha * (s - m.sig)
	m.noise += snrAlpha * (n - m.noise)
}

// SNRdB reports the current estimate with the injected bias applied.
func (m *SNRMeter) SNRdB() float64 {
	if !m.ready || m.noise < 1e-12 {
		return 40
	}
	db := 10 * math.Log10(m.sig/m.noise)
	if m.bias != nil {
		db = m.bias(db)
	}
	return db
}

// Estimate adapts the meter to the reliability scaler's interface.
func (m *SNRMeter) Estimate() SNREstimate {
	return m.SNRdB
}
