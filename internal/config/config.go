// Package config loads the decoder's INI configuration file.
//
// The file carries the sections [input] [output] [mode] [trunking]
// [logging] [recording] [dsp], optional [profile.<name>] overlay
// sections, and include directives. Parsing collects per-line
// diagnostics instead of stopping at the first bad value; callers
// decide whether warnings are fatal.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrConfigInvalid is returned by Validate when at least one
// error-level diagnostic was collected.
var ErrConfigInvalid = errors.New("config invalid")

const maxIncludeDepth = 3

// DiagLevel classifies a parse diagnostic.
type DiagLevel int

const (
	DiagInfo DiagLevel = iota
	DiagWarning
	DiagError
)

func (l DiagLevel) String() string {
	switch l {
	case DiagInfo:
		return "info"
	case DiagWarning:
		return "warning"
	case DiagError:
		return "error"
	}
	return "unknown"
}

// Diagnostic is one parse or validation finding, tied to its source line.
type Diagnostic struct {
	File    string
	Line    int
	Level   DiagLevel
	Message string
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return fmt.Sprintf("line %d: %s: %s", d.Line, d.Level, d.Message)
	}
	return fmt.Sprintf("%s:%d: %s: %s", d.File, d.Line, d.Level, d.Message)
}

// Config holds the complete decoder configuration. Values are private
// and read through getters; the struct is immutable once loaded apart
// from ApplyProfile.
type Config struct {
	filename string

	// [input]
	inputSource  string
	inputPath    string
	inputAddress string
	inputPort    uint16
	inputFormat  string
	sampleRate   uint32

	// [output]
	outputSink   string
	outputRate   uint32
	outputStereo bool

	// [mode]
	protocols  []string
	aggressive bool
	autoDetect bool

	// [trunking]
	trunkEnable      bool
	hangtimeS        float64
	grantTimeoutS    float64
	ccGraceS         float64
	followEncrypted  bool
	allowListOnly    bool
	tuneDataCalls    bool
	tunePrivateCalls bool
	tuneEncCalls     bool
	tgHold           uint32
	controlFreqs     []int64
	groupFile        string
	channelFile      string
	keyFile          string

	// [logging]
	logLevel string
	logFile  string
	logJSON  bool

	// [recording]
	recordEnable   bool
	recordDir      string
	recordTemplate string

	// [dsp]
	dspChain string
	dspSPS   uint
	dspAGC   bool

	// [profile.<name>] overlays, applied on demand.
	profiles map[string][]profileEntry

	diags []Diagnostic
}

type profileEntry struct {
	section string
	key     string
	value   string
	file    string
	line    int
}

// NewConfig returns a Config preloaded with defaults.
func NewConfig(filename string) *Config {
	return &Config{
		filename: filename,

		inputSource:  "file",
		inputAddress: "127.0.0.1",
		inputPort:    7355,
		inputFormat:  "int16",
		sampleRate:   48000,

		outputSink: "null",
		outputRate: 8000,

		autoDetect: true,

		trunkEnable:     true,
		hangtimeS:       2,
		grantTimeoutS:   3,
		ccGraceS:        5,
		followEncrypted: false,

		logLevel: "info",

		recordDir:      ".",
		recordTemplate: "%date_%time_%proto_TG%tg.wav",

		dspChain: "c4fm",
		dspSPS:   10,
		dspAGC:   true,

		profiles: make(map[string][]profileEntry),
	}
}

// Load reads and parses the configuration file given to NewConfig,
// following include directives up to the depth limit.
func (c *Config) Load() error {
	return c.loadFile(c.filename, 1, map[string]bool{})
}

// LoadFromString parses configuration text directly. Include
// directives resolve relative to the current directory.
func (c *Config) LoadFromString(data string) error {
	return c.parse(bufio.NewScanner(strings.NewReader(data)), "", ".", 1, map[string]bool{})
}

func (c *Config) loadFile(name string, depth int, seen map[string]bool) error {
	abs, err := filepath.Abs(name)
	if err != nil {
		abs = name
	}
	if seen[abs] {
		c.diags = append(c.diags, Diagnostic{File: name, Level: DiagError,
			Message: "circular include"})
		return fmt.Errorf("circular include of %s", name)
	}
	seen[abs] = true

	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("cannot open config file %s: %w", name, err)
	}
	defer f.Close()

	return c.parse(bufio.NewScanner(f), name, filepath.Dir(name), depth, seen)
}

func (c *Config) parse(scanner *bufio.Scanner, file, dir string, depth int, seen map[string]bool) error {
	section := ""
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			if !c.knownSection(section) {
				c.diags = append(c.diags, Diagnostic{File: file, Line: lineNo,
					Level: DiagWarning, Message: "unknown section [" + section + "]"})
			}
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			c.diags = append(c.diags, Diagnostic{File: file, Line: lineNo,
				Level: DiagError, Message: "not a key=value line"})
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := unquote(strings.TrimSpace(parts[1]))

		if key == "include" {
			if depth >= maxIncludeDepth {
				c.diags = append(c.diags, Diagnostic{File: file, Line: lineNo,
					Level: DiagError, Message: "include depth limit exceeded"})
				continue
			}
			target := value
			if !filepath.IsAbs(target) {
				target = filepath.Join(dir, target)
			}
			if err := c.loadFile(target, depth+1, seen); err != nil {
				c.diags = append(c.diags, Diagnostic{File: file, Line: lineNo,
					Level: DiagError, Message: err.Error()})
			}
			continue
		}

		if name, ok := strings.CutPrefix(section, "profile."); ok {
			sec, k, found := strings.Cut(key, ".")
			if !found {
				c.diags = append(c.diags, Diagnostic{File: file, Line: lineNo,
					Level: DiagError, Message: "profile keys must be section.key"})
				continue
			}
			c.profiles[name] = append(c.profiles[name],
				profileEntry{section: sec, key: k, value: value, file: file, line: lineNo})
			continue
		}

		c.apply(section, key, value, file, lineNo)
	}
	return scanner.Err()
}

func (c *Config) knownSection(s string) bool {
	switch s {
	case "input", "output", "mode", "trunking", "logging", "recording", "dsp":
		return true
	}
	return strings.HasPrefix(s, "profile.")
}

// apply routes one key=value into its section parser.
func (c *Config) apply(section, key, value, file string, line int) {
	var ok bool
	switch section {
	case "input":
		ok = c.parseInput(key, value, file, line)
	case "output":
		ok = c.parseOutput(key, value, file, line)
	case "mode":
		ok = c.parseMode(key, value)
	case "trunking":
		ok = c.parseTrunking(key, value, file, line)
	case "logging":
		ok = c.parseLogging(key, value)
	case "recording":
		ok = c.parseRecording(key, value)
	case "dsp":
		ok = c.parseDSP(key, value, file, line)
	default:
		return // unknown section already warned at its header
	}
	if !ok {
		c.diags = append(c.diags, Diagnostic{File: file, Line: line,
			Level: DiagWarning, Message: "unknown key " + key + " in [" + section + "]"})
	}
}

func (c *Config) parseInput(key, value, file string, line int) bool {
	switch key {
	case "source":
		switch value {
		case "file", "tcp", "udp":
			c.inputSource = value
		default:
			c.badValue(file, line, "source", value)
		}
	case "path":
		c.inputPath = value
	case "address":
		c.inputAddress = value
	case "port":
		if v, err := strconv.ParseUint(value, 10, 16); err == nil {
			c.inputPort = uint16(v)
		} else {
			c.badValue(file, line, "port", value)
		}
	case "format":
		switch value {
		case "int16", "float32":
			c.inputFormat = value
		default:
			c.badValue(file, line, "format", value)
		}
	case "samplerate":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil && v > 0 {
			c.sampleRate = uint32(v)
		} else {
			c.badValue(file, line, "samplerate", value)
		}
	default:
		return false
	}
	return true
}

func (c *Config) parseOutput(key, value, file string, line int) bool {
	switch key {
	case "sink":
		switch value {
		case "null", "wav":
			c.outputSink = value
		default:
			c.badValue(file, line, "sink", value)
		}
	case "rate":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil && v > 0 {
			c.outputRate = uint32(v)
		} else {
			c.badValue(file, line, "rate", value)
		}
	case "stereo":
		c.outputStereo = parseBool(value)
	default:
		return false
	}
	return true
}

func (c *Config) parseMode(key, value string) bool {
	switch key {
	case "protocols":
		c.protocols = nil
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
				c.protocols = append(c.protocols, p)
			}
		}
		c.autoDetect = len(c.protocols) == 0
	case "aggressive":
		c.aggressive = parseBool(value)
	default:
		return false
	}
	return true
}

func (c *Config) parseTrunking(key, value, file string, line int) bool {
	switch key {
	case "enable":
		c.trunkEnable = parseBool(value)
	case "hangtime":
		c.parseSeconds(&c.hangtimeS, key, value, file, line)
	case "granttimeout":
		c.parseSeconds(&c.grantTimeoutS, key, value, file, line)
	case "ccgrace":
		c.parseSeconds(&c.ccGraceS, key, value, file, line)
	case "followencrypted":
		c.followEncrypted = parseBool(value)
	case "allowlist":
		c.allowListOnly = parseBool(value)
	case "tunedata":
		c.tuneDataCalls = parseBool(value)
	case "tuneprivate":
		c.tunePrivateCalls = parseBool(value)
	case "tuneencrypted":
		c.tuneEncCalls = parseBool(value)
	case "tghold":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			c.tgHold = uint32(v)
		} else {
			c.badValue(file, line, key, value)
		}
	case "controlfreqs":
		c.controlFreqs = nil
		for _, s := range strings.Split(value, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > 0 {
				c.controlFreqs = append(c.controlFreqs, v)
			} else {
				c.badValue(file, line, "controlfreqs", s)
			}
		}
	case "groupfile":
		c.groupFile = value
	case "channelfile":
		c.channelFile = value
	case "keyfile":
		c.keyFile = value
	default:
		return false
	}
	return true
}

func (c *Config) parseSeconds(dst *float64, key, value, file string, line int) {
	if v, err := strconv.ParseFloat(value, 64); err == nil && v >= 0 {
		*dst = v
	} else {
		c.badValue(file, line, key, value)
	}
}

func (c *Config) parseLogging(key, value string) bool {
	switch key {
	case "level":
		c.logLevel = strings.ToLower(value)
	case "file":
		c.logFile = value
	case "json":
		c.logJSON = parseBool(value)
	default:
		return false
	}
	return true
}

func (c *Config) parseRecording(key, value string) bool {
	switch key {
	case "enable":
		c.recordEnable = parseBool(value)
	case "dir":
		c.recordDir = value
	case "template":
		c.recordTemplate = value
	default:
		return false
	}
	return true
}

func (c *Config) parseDSP(key, value, file string, line int) bool {
	switch key {
	case "chain":
		switch value {
		case "c4fm", "cqpsk":
			c.dspChain = value
		default:
			c.badValue(file, line, "chain", value)
		}
	case "sps":
		if v, err := strconv.ParseUint(value, 10, 8); err == nil && v >= 2 {
			c.dspSPS = uint(v)
		} else {
			c.badValue(file, line, "sps", value)
		}
	case "agc":
		c.dspAGC = parseBool(value)
	default:
		return false
	}
	return true
}

func (c *Config) badValue(file string, line int, key, value string) {
	c.diags = append(c.diags, Diagnostic{File: file, Line: line, Level: DiagError,
		Message: fmt.Sprintf("bad value %q for %s", value, key)})
}

// Profiles lists the overlay names found in the file.
func (c *Config) Profiles() []string {
	names := make([]string, 0, len(c.profiles))
	for n := range c.profiles {
		names = append(names, n)
	}
	return names
}

// ApplyProfile overlays the named profile's keys onto the loaded
// configuration. Values run through the same per-section parsers, so
// a bad overlay value produces a diagnostic just like a bad base value.
func (c *Config) ApplyProfile(name string) error {
	entries, ok := c.profiles[name]
	if !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	for _, e := range entries {
		c.apply(e.section, e.key, e.value, e.file, e.line)
	}
	return nil
}

// Diagnostics returns everything collected during parsing, in order.
func (c *Config) Diagnostics() []Diagnostic { return c.diags }

// Validate returns ErrConfigInvalid when any error-level diagnostic
// exists, and checks cross-field constraints.
func (c *Config) Validate() error {
	if c.inputSource == "file" && c.inputPath == "" {
		c.diags = append(c.diags, Diagnostic{Level: DiagError,
			Message: "input source is file but no path set"})
	}
	for _, d := range c.diags {
		if d.Level == DiagError {
			return fmt.Errorf("%w: %s", ErrConfigInvalid, d)
		}
	}
	return nil
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}

// Input section getters.
func (c *Config) GetInputSource() string { return c.inputSource }
func (c *Config) GetInputPath() string { return c.inputPath }
func (c *Config) GetInputAddress() string { return c.inputAddress }
func (c *Config) GetInputPort() uint16 { return c.inputPort }
func (c *Config) GetInputFormat() string { return c.inputFormat }
func (c *Config) GetSampleRate() uint32 { return c.sampleRate }

// Output section getters.
func (c *Config) GetOutputSink() string { return c.outputSink }
func (c *Config) GetOutputRate() uint32 { return c.outputRate }
func (c *Config) GetOutputStereo() bool { return c.outputStereo }

// Mode section getters.
func (c *Config) GetProtocols() []string { return c.protocols }
func (c *Config) GetAggressiveSync() bool { return c.aggressive }
func (c *Config) GetAutoDetect() bool { return c.autoDetect }

// Trunking section getters.
func (c *Config) GetTrunkingEnable() bool { return c.trunkEnable }
func (c *Config) GetHangtimeS() float64 { return c.hangtimeS }
func (c *Config) GetGrantTimeoutS() float64 { return c.grantTimeoutS }
func (c *Config) GetCCGraceS() float64 { return c.ccGraceS }
func (c *Config) GetFollowEncrypted() bool { return c.followEncrypted }
func (c *Config) GetAllowListOnly() bool { return c.allowListOnly }
func (c *Config) GetTuneDataCalls() bool { return c.tuneDataCalls }
func (c *Config) GetTunePrivateCalls() bool { return c.tunePrivateCalls }
func (c *Config) GetTuneEncCalls() bool { return c.tuneEncCalls }
func (c *Config) GetTGHold() uint32 { return c.tgHold }
func (c *Config) GetControlFreqs() []int64 { return c.controlFreqs }
func (c *Config) GetGroupFile() string { return c.groupFile }
func (c *Config) GetChannelFile() string { return c.channelFile }
func (c *Config) GetKeyFile() string { return c.keyFile }

// Logging section getters.
func (c *Config) GetLogLevel() string { return c.logLevel }
func (c *Config) GetLogFile() string { return c.logFile }
func (c *Config) GetLogJSON() bool { return c.logJSON }

// Recording section getters.
func (c *Config) GetRecordEnable() bool { return c.recordEnable }
func (c *Config) GetRecordDir() string { return c.recordDir }
func (c *Config) GetRecordTemplate() string { return c.recordTemplate }

// DSP section getters.
func (c *Config) GetDSPChain() string { return c.dspChain }
func (c *Config) GetDSPSPS() uint { return c.dspSPS }
func (c *Config) GetDSPAGC() bool { return c.dspAGC }
