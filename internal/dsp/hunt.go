package dsp

// spsHunt rotates the front end through candidate symbol rates while no sync
// lock is found. Each candidate gets a bounded number of symbols before the
// hunt moves on; the rotation order starts at the most common rate.
type spsHunt struct {
	idx     int
	symbols int
}

// huntRotation is the SPS try order.
var huntRotation = [...]int{10, 20, 5, 8}

// huntBudget is how many symbols a candidate rate gets before rotating.
const huntBudget = 4800

func (h *spsHunt) reset() {
	h.symbols = 0
}

// observe accounts nsyms demodulated symbols and rotates the front end's SPS
// when the budget runs out without a lock.
func (h *spsHunt) observe(f *FrontEnd, nsyms int) {
	if f.locked {
		h.symbols = 0
		return
	}
	h.symbols += nsyms
	if h.symbols < huntBudget {
		return
	}
	h.idx = (h.idx + 1) % len(huntRotation)
	next := huntRotation[h.idx]
	f.log.Debug().Int("sps", next).Msg("symbol hunt rotating rate")
	// Configure keeps the FLL frequency estimate and resets the counter.
	_ = f.Configure(f.chain, next, f.hint)
}
