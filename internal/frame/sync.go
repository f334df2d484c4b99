package frame

// Sync hunting. A rolling window of recent dibits is compared against every
// enabled pattern each symbol. Patterns carry the protocol, frame-type and
// polarity tags the dispatcher needs; an inverted match means the channel is
// spectrally flipped and downstream dibits must be inverted too.

// Protocol identifies a decoded air interface.
type Protocol int

const (
	ProtoUnknown Protocol = iota
	ProtoP25p1
	ProtoP25p2
	ProtoDMR
	ProtoNXDN
	ProtoDPMR
	ProtoYSF
	ProtoDStar
	ProtoM17
	ProtoEDACS
	ProtoProVoice
)

func (p Protocol) String() string {
	switch p {
	case ProtoP25p1:
		return "P25p1"
	case ProtoP25p2:
		return "P25p2"
	case ProtoDMR:
		return "DMR"
	case ProtoNXDN:
		return "NXDN"
	case ProtoDPMR:
		return "dPMR"
	case ProtoYSF:
		return "YSF"
	case ProtoDStar:
		return "D-STAR"
	case ProtoM17:
		return "M17"
	case ProtoEDACS:
		return "EDACS"
	case ProtoProVoice:
		return "ProVoice"
	}
	return "unknown"
}

// FrameType tags what kind of frame follows a sync pattern.
type FrameType int

const (
	FrameVoice FrameType = iota
	FrameVoiceHeader
	FrameData
	FrameControl
)

// SyncPattern is one entry in the descriptor table.
type SyncPattern struct {
	Name     string
	Proto    Protocol
	Type     FrameType
	Dibits   []byte
	Inverted bool
	SPSHint  int
	CQPSK    bool
}

// invertDibit flips the symbol polarity: +3 <-> -3, +1 <-> -1.
func invertDibit(d byte) byte { return d ^ 2 }

func dibitsOf(hexes string) []byte {
	out := make([]byte, 0, len(hexes)*2)
	for _, c := range hexes {
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = byte(c - '0')
		case c >= 'A' && c <= 'F':
			v = byte(c-'A') + 10
		case c >= 'a' && c <= 'f':
			v = byte(c-'a') + 10
		}
		out = append(out, v>>2, v&3)
	}
	return out
}

func invertedPattern(p SyncPattern) SyncPattern {
	inv := make([]byte, len(p.Dibits))
	for i, d := range p.Dibits {
		inv[i] = invertDibit(d)
	}
	p.Name += "-inv"
	p.Dibits = inv
	p.Inverted = true
	return p
}

// syncTable is the descriptor table. Hex strings are the standard air
// interface sync words, two dibits per hex digit.
var syncTable = func() []SyncPattern {
	base := []SyncPattern{
		{Name: "P25p1", Proto: ProtoP25p1, Type: FrameControl, Dibits: dibitsOf("5575F5FF77FF"), SPSHint: 10},
		{Name: "P25p2", Proto: ProtoP25p2, Type: FrameVoice, Dibits: dibitsOf("575D57F7FF"), SPSHint: 8, CQPSK: true},
		{Name: "DMR-voice", Proto: ProtoDMR, Type: FrameVoice, Dibits: dibitsOf("755FD7DF75F7"), SPSHint: 10},
		{Name: "DMR-data", Proto: ProtoDMR, Type: FrameData, Dibits: dibitsOf("DFF57D75DF5D"), SPSHint: 10},
		{Name: "NXDN-voice", Proto: ProtoNXDN, Type: FrameVoice, Dibits: dibitsOf("5775FDCDF59"), SPSHint: 20},
		{Name: "dPMR", Proto: ProtoDPMR, Type: FrameVoice, Dibits: dibitsOf("57FF5F75D5"), SPSHint: 20},
		{Name: "YSF", Proto: ProtoYSF, Type: FrameVoice, Dibits: dibitsOf("D471C9634D"), SPSHint: 10},
		{Name: "M17-LSF", Proto: ProtoM17, Type: FrameVoiceHeader, Dibits: dibitsOf("55F7"), SPSHint: 10},
		{Name: "M17-stream", Proto: ProtoM17, Type: FrameVoice, Dibits: dibitsOf("FF5D"), SPSHint: 10},
		{Name: "EDACS", Proto: ProtoEDACS, Type: FrameControl, Dibits: dibitsOf("555557"), SPSHint: 5},
		{Name: "ProVoice", Proto: ProtoProVoice, Type: FrameVoice, Dibits: dibitsOf("5D5DF77F"), SPSHint: 5},
		{Name: "D-STAR", Proto: ProtoDStar, Type: FrameVoice, Dibits: dibitsOf("D5AB49"), SPSHint: 5},
	}
	// Some protocols use complementary word pairs (DMR voice/data, M17
	// LSF/stream); their inverted forms collide with an existing base word
	// and are skipped so a match is never misattributed.
	seen := make(map[string]bool, len(base))
	for _, p := range base {
		seen[string(p.Dibits)] = true
	}
	all := make([]SyncPattern, 0, len(base)*2)
	for _, p := range base {
		all = append(all, p)
		inv := invertedPattern(p)
		if !seen[string(inv.Dibits)] {
			seen[string(inv.Dibits)] = true
			all = append(all, inv)
		}
	}
	return all
}()

// SyncMatch describes a detected pattern.
type SyncMatch struct {
	Pattern *SyncPattern
	Errors  int
}

// Matcher is the rolling-window sync detector. Tolerance 0 requires an exact
// match; aggressive modes allow 1 or 2 symbol errors, trading false locks
// (rejected later by CRC gates) for weak-signal acquisition.
type Matcher struct {
	window    []byte
	n         int
	enabled   map[Protocol]bool
	tolerance int
}

// maxSyncLen is the longest pattern in the table.
var maxSyncLen = func() int {
	n := 0
	for _, p := range syncTable {
		if len(p.Dibits) > n {
			n = len(p.Dibits)
		}
	}
	return n
}()

// NewMatcher builds a matcher for the given protocols; nil enables all.
func NewMatcher(protos []Protocol) *Matcher {
	m := &Matcher{window: make([]byte, maxSyncLen)}
	if protos != nil {
		m.enabled = make(map[Protocol]bool, len(protos))
		for _, p := range protos {
			m.enabled[p] = true
		}
	}
	return m
}

// SetTolerance sets the permitted symbol errors (0 to 2).
func (m *Matcher) SetTolerance(tol int) {
	if tol < 0 {
		tol = 0
	}
	if tol > 2 {
		tol = 2
	}
	m.tolerance = tol
}

// Tolerance reports the current setting.
func (m *Matcher) Tolerance() int { return m.tolerance }

// Reset clears the window.
func (m *Matcher) Reset() { m.n = 0 }

// Feed shifts one dibit into the window and reports a match ending at it.
func (m *Matcher) Feed(d byte) (SyncMatch, bool) {
	copy(m.window, m.window[1:])
	m.window[len(m.window)-1] = d & 3
	if m.n < len(m.window) {
		m.n++
	}

	best := SyncMatch{Errors: m.tolerance + 1}
	for i := range syncTable {
		p := &syncTable[i]
		if m.enabled != nil && !m.enabled[p.Proto] {
			continue
		}
		if m.n < len(p.Dibits) {
			continue
		}
		tail := m.window[len(m.window)-len(p.Dibits):]
		errs := 0
		for j, want := range p.Dibits {
			if tail[j] != want {
				errs++
				if errs > m.tolerance {
					break
				}
			}
		}
		if errs <= m.tolerance && errs < best.Errors {
			best = SyncMatch{Pattern: p, Errors: errs}
			if errs == 0 {
				break
			}
		}
	}
	if best.Pattern == nil {
		return SyncMatch{}, false
	}
	return best, true
}
