package trunk

import "time"

// Candidate hunt constants.
const (
	candidateMax   = 16
	candidateCool  = 10 * time.Second
	huntInterval   = 5 * time.Second
	huntEvalWindow = 3 * time.Second
)

type candidate struct {
	freqHz    int64
	coolUntil time.Time
}

// Candidates is the bounded FIFO of recently observed control-channel
// frequencies. A candidate that fails an evaluation window goes into
// cooldown and is skipped until the deadline passes.
type Candidates struct {
	list []candidate
	next int
}

// Add records a CC frequency if not already present. When full, the oldest
// entry is evicted.
func (c *Candidates) Add(freqHz int64) {
	if freqHz == 0 {
		return
	}
	for _, cand := range c.list {
		if cand.freqHz == freqHz {
			return
		}
	}
	if len(c.list) >= candidateMax {
		copy(c.list, c.list[1:])
		c.list = c.list[:len(c.list)-1]
		if c.next > 0 {
			c.next--
		}
	}
	c.list = append(c.list, candidate{freqHz: freqHz})
}

// Len reports how many candidates are held.
func (c *Candidates) Len() int { return len(c.list) }

// NextReady returns the next candidate not in cooldown, round-robin. ok is
// false when every candidate is cooling down or the list is empty.
func (c *Candidates) NextReady(now time.Time) (int64, bool) {
	for i := 0; i < len(c.list); i++ {
		idx := (c.next + i) % len(c.list)
		if now.Before(c.list[idx].coolUntil) {
			continue
		}
		c.next = (idx + 1) % len(c.list)
		return c.list[idx].freqHz, true
	}
	return 0, false
}

// Cooldown marks a failed candidate so it is not retried before now plus the
// cooldown period.
func (c *Candidates) Cooldown(freqHz int64, now time.Time) {
	for i := range c.list {
		if c.list[i].freqHz == freqHz {
			c.list[i].coolUntil = now.Add(candidateCool)
			return
		}
	}
}

// InCooldown reports whether a frequency is currently cooling down.
func (c *Candidates) InCooldown(freqHz int64, now time.Time) bool {
	for _, cand := range c.list {
		if cand.freqHz == freqHz {
			return now.Before(cand.coolUntil)
		}
	}
	return false
}
