package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_LoadFromFile(t *testing.T) {
	testConfig := `[input]
source=udp
address=192.168.1.50
port=7356
format=int16
samplerate=48000

[output]
sink=wav
rate=8000
stereo=0

[mode]
protocols=p25p1,p25p2
aggressive=1

[trunking]
enable=1
hangtime=2.5
granttimeout=3
ccgrace=5
followencrypted=0
tunedata=1
tuneprivate=1
tuneencrypted=1
tghold=52198
controlfreqs=851006250,852012500
groupfile=groups.csv

[logging]
level=debug
json=1

[recording]
enable=1
dir=/tmp/calls
template=%date_%tg.wav

[dsp]
chain=cqpsk
sps=10
agc=1`

	tmpfile, err := os.CreateTemp("", "test_config_*.ini")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(testConfig)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatalf("Failed to close temp file: %v", err)
	}

	config := NewConfig(tmpfile.Name())
	if err := config.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.GetInputSource() != "udp" {
		t.Errorf("GetInputSource() = %q, want %q", config.GetInputSource(), "udp")
	}
	if config.GetInputAddress() != "192.168.1.50" {
		t.Errorf("GetInputAddress() = %q, want %q", config.GetInputAddress(), "192.168.1.50")
	}
	if config.GetInputPort() != 7356 {
		t.Errorf("GetInputPort() = %d, want 7356", config.GetInputPort())
	}
	if config.GetSampleRate() != 48000 {
		t.Errorf("GetSampleRate() = %d, want 48000", config.GetSampleRate())
	}

	if config.GetOutputSink() != "wav" {
		t.Errorf("GetOutputSink() = %q, want %q", config.GetOutputSink(), "wav")
	}
	if config.GetOutputStereo() {
		t.Error("GetOutputStereo() = true, want false")
	}

	protos := config.GetProtocols()
	if len(protos) != 2 || protos[0] != "p25p1" || protos[1] != "p25p2" {
		t.Errorf("GetProtocols() = %v, want [p25p1 p25p2]", protos)
	}
	if config.GetAutoDetect() {
		t.Error("GetAutoDetect() = true, want false when protocols are named")
	}
	if !config.GetAggressiveSync() {
		t.Error("GetAggressiveSync() = false, want true")
	}

	if config.GetHangtimeS() != 2.5 {
		t.Errorf("GetHangtimeS() = %f, want 2.5", config.GetHangtimeS())
	}
	freqs := config.GetControlFreqs()
	if len(freqs) != 2 || freqs[0] != 851006250 || freqs[1] != 852012500 {
		t.Errorf("GetControlFreqs() = %v", freqs)
	}
	if config.GetGroupFile() != "groups.csv" {
		t.Errorf("GetGroupFile() = %q, want %q", config.GetGroupFile(), "groups.csv")
	}
	if !config.GetTuneDataCalls() || !config.GetTunePrivateCalls() {
		t.Error("per-call-type tune flags not set")
	}
	if !config.GetTuneEncCalls() {
		t.Error("GetTuneEncCalls() = false, want true")
	}
	if config.GetFollowEncrypted() {
		t.Error("tuneencrypted must not imply followencrypted")
	}
	if config.GetTGHold() != 52198 {
		t.Errorf("GetTGHold() = %d, want 52198", config.GetTGHold())
	}

	if config.GetLogLevel() != "debug" {
		t.Errorf("GetLogLevel() = %q, want %q", config.GetLogLevel(), "debug")
	}
	if !config.GetLogJSON() {
		t.Error("GetLogJSON() = false, want true")
	}

	if !config.GetRecordEnable() {
		t.Error("GetRecordEnable() = false, want true")
	}
	if config.GetRecordDir() != "/tmp/calls" {
		t.Errorf("GetRecordDir() = %q, want %q", config.GetRecordDir(), "/tmp/calls")
	}

	if config.GetDSPChain() != "cqpsk" {
		t.Errorf("GetDSPChain() = %q, want %q", config.GetDSPChain(), "cqpsk")
	}
	if config.GetDSPSPS() != 10 {
		t.Errorf("GetDSPSPS() = %d, want 10", config.GetDSPSPS())
	}

	for _, d := range config.Diagnostics() {
		t.Errorf("unexpected diagnostic: %s", d)
	}
}

func TestConfig_DefaultValues(t *testing.T) {
	config := NewConfig("")

	if config.GetInputSource() != "file" {
		t.Errorf("GetInputSource() default = %q, want %q", config.GetInputSource(), "file")
	}
	if config.GetSampleRate() != 48000 {
		t.Errorf("GetSampleRate() default = %d, want 48000", config.GetSampleRate())
	}
	if config.GetOutputSink() != "null" {
		t.Errorf("GetOutputSink() default = %q, want %q", config.GetOutputSink(), "null")
	}
	if !config.GetAutoDetect() {
		t.Error("GetAutoDetect() default = false, want true")
	}
	if config.GetHangtimeS() != 2 {
		t.Errorf("GetHangtimeS() default = %f, want 2", config.GetHangtimeS())
	}
	if config.GetGrantTimeoutS() != 3 {
		t.Errorf("GetGrantTimeoutS() default = %f, want 3", config.GetGrantTimeoutS())
	}
	if config.GetCCGraceS() != 5 {
		t.Errorf("GetCCGraceS() default = %f, want 5", config.GetCCGraceS())
	}
	if config.GetFollowEncrypted() {
		t.Error("GetFollowEncrypted() default = true, want false")
	}
	if config.GetLogLevel() != "info" {
		t.Errorf("GetLogLevel() default = %q, want %q", config.GetLogLevel(), "info")
	}
	if config.GetDSPChain() != "c4fm" {
		t.Errorf("GetDSPChain() default = %q, want %q", config.GetDSPChain(), "c4fm")
	}
	if config.GetDSPSPS() != 10 {
		t.Errorf("GetDSPSPS() default = %d, want 10", config.GetDSPSPS())
	}
}

func TestConfig_InvalidFile(t *testing.T) {
	config := NewConfig("/nonexistent/file.ini")
	if err := config.Load(); err == nil {
		t.Error("Load() with nonexistent file should return error")
	}
}

func TestConfig_BooleanValues(t *testing.T) {
	tests := []struct {
		name     string
		config   string
		getValue func(*Config) bool
		want     bool
	}{
		{
			name:     "aggressive true with 1",
			config:   "[mode]\naggressive=1",
			getValue: func(c *Config) bool { return c.GetAggressiveSync() },
			want:     true,
		},
		{
			name:     "aggressive true with yes",
			config:   "[mode]\naggressive=yes",
			getValue: func(c *Config) bool { return c.GetAggressiveSync() },
			want:     true,
		},
		{
			name:     "trunking disabled with 0",
			config:   "[trunking]\nenable=0",
			getValue: func(c *Config) bool { return c.GetTrunkingEnable() },
			want:     false,
		},
		{
			name:     "follow encrypted true",
			config:   "[trunking]\nfollowencrypted=true",
			getValue: func(c *Config) bool { return c.GetFollowEncrypted() },
			want:     true,
		},
		{
			name:     "tune encrypted separate from follow",
			config:   "[trunking]\ntuneencrypted=true",
			getValue: func(c *Config) bool { return c.GetTuneEncCalls() },
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig("")
			if err := config.LoadFromString(tt.config); err != nil {
				t.Fatalf("LoadFromString() error = %v", err)
			}
			if got := tt.getValue(config); got != tt.want {
				t.Errorf("getValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_CommentedLines(t *testing.T) {
	testConfig := `[logging]
level=warn
# This is a comment
#file=commented.log
; semicolon comment
file=active.log`

	config := NewConfig("")
	if err := config.LoadFromString(testConfig); err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	if config.GetLogLevel() != "warn" {
		t.Errorf("GetLogLevel() = %q, want %q", config.GetLogLevel(), "warn")
	}
	if config.GetLogFile() != "active.log" {
		t.Errorf("GetLogFile() = %q, want %q", config.GetLogFile(), "active.log")
	}
}

func TestConfig_BadValuesProduceDiagnostics(t *testing.T) {
	testConfig := `[input]
source=carrier-pigeon
port=notaport

[dsp]
sps=1`

	config := NewConfig("")
	if err := config.LoadFromString(testConfig); err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	var errs int
	for _, d := range config.Diagnostics() {
		if d.Level == DiagError {
			errs++
		}
	}
	if errs != 3 {
		t.Errorf("error diagnostics = %d, want 3: %v", errs, config.Diagnostics())
	}

	// Bad values leave defaults untouched.
	if config.GetInputSource() != "file" {
		t.Errorf("GetInputSource() = %q, want default", config.GetInputSource())
	}
	if config.GetDSPSPS() != 10 {
		t.Errorf("GetDSPSPS() = %d, want default 10", config.GetDSPSPS())
	}

	if err := config.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("Validate() = %v, want ErrConfigInvalid", err)
	}
}

func TestConfig_UnknownKeysWarn(t *testing.T) {
	testConfig := `[logging]
verbosity=11

[made up section]
key=value`

	config := NewConfig("")
	if err := config.LoadFromString(testConfig); err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	var warns int
	for _, d := range config.Diagnostics() {
		if d.Level == DiagWarning {
			warns++
		}
		if d.Level == DiagError {
			t.Errorf("unexpected error diagnostic: %s", d)
		}
	}
	if warns != 2 {
		t.Errorf("warning diagnostics = %d, want 2: %v", warns, config.Diagnostics())
	}
}

func TestConfig_Profiles(t *testing.T) {
	testConfig := `[trunking]
hangtime=2

[logging]
level=info

[profile.mobile]
trunking.hangtime=4.5
logging.level=error

[profile.lab]
dsp.chain=cqpsk`

	config := NewConfig("")
	if err := config.LoadFromString(testConfig); err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	if len(config.Profiles()) != 2 {
		t.Fatalf("Profiles() = %v, want 2 entries", config.Profiles())
	}

	// Before overlay the base values hold.
	if config.GetHangtimeS() != 2 {
		t.Errorf("GetHangtimeS() = %f, want 2", config.GetHangtimeS())
	}

	if err := config.ApplyProfile("mobile"); err != nil {
		t.Fatalf("ApplyProfile() error = %v", err)
	}
	if config.GetHangtimeS() != 4.5 {
		t.Errorf("GetHangtimeS() after overlay = %f, want 4.5", config.GetHangtimeS())
	}
	if config.GetLogLevel() != "error" {
		t.Errorf("GetLogLevel() after overlay = %q, want %q", config.GetLogLevel(), "error")
	}
	// The other profile stays unapplied.
	if config.GetDSPChain() != "c4fm" {
		t.Errorf("GetDSPChain() = %q, want %q", config.GetDSPChain(), "c4fm")
	}

	if err := config.ApplyProfile("missing"); err == nil {
		t.Error("ApplyProfile(missing) should return error")
	}
}

func TestConfig_ProfileBadKeyShape(t *testing.T) {
	testConfig := `[profile.broken]
hangtime=4`

	config := NewConfig("")
	if err := config.LoadFromString(testConfig); err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	found := false
	for _, d := range config.Diagnostics() {
		if d.Level == DiagError {
			found = true
		}
	}
	if !found {
		t.Error("profile key without section prefix should produce an error diagnostic")
	}
}

func TestConfig_Includes(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.ini")
	common := filepath.Join(dir, "common.ini")

	if err := os.WriteFile(common, []byte("[logging]\nlevel=trace\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(base, []byte("include = \"common.ini\"\n[trunking]\nhangtime=7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	config := NewConfig(base)
	if err := config.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.GetLogLevel() != "trace" {
		t.Errorf("GetLogLevel() = %q, want %q from included file", config.GetLogLevel(), "trace")
	}
	if config.GetHangtimeS() != 7 {
		t.Errorf("GetHangtimeS() = %f, want 7", config.GetHangtimeS())
	}
}

func TestConfig_CircularIncludeDetected(t *testing.T) {
	dir := t.TempDir()

	a := filepath.Join(dir, "a.ini")
	b := filepath.Join(dir, "b.ini")
	if err := os.WriteFile(a, []byte("include = b.ini\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("include = a.ini\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	config := NewConfig(a)
	if err := config.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	found := false
	for _, d := range config.Diagnostics() {
		if d.Level == DiagError {
			found = true
		}
	}
	if !found {
		t.Error("circular include should produce an error diagnostic")
	}
}

func TestConfig_IncludeDepthLimit(t *testing.T) {
	dir := t.TempDir()

	// a -> b -> c -> d: d sits past the depth limit.
	names := []string{"a.ini", "b.ini", "c.ini", "d.ini"}
	for i := 0; i < 3; i++ {
		line := "include = " + names[i+1] + "\n"
		if err := os.WriteFile(filepath.Join(dir, names[i]), []byte(line), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "d.ini"), []byte("[logging]\nlevel=trace\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	config := NewConfig(filepath.Join(dir, "a.ini"))
	if err := config.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.GetLogLevel() == "trace" {
		t.Error("include past the depth limit must not be loaded")
	}
	found := false
	for _, d := range config.Diagnostics() {
		if d.Level == DiagError {
			found = true
		}
	}
	if !found {
		t.Error("depth limit should produce an error diagnostic")
	}
}

func TestConfig_ValidateFileSourceNeedsPath(t *testing.T) {
	config := NewConfig("")
	if err := config.LoadFromString("[input]\nsource=file\n"); err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}
	if err := config.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("Validate() = %v, want ErrConfigInvalid", err)
	}

	config = NewConfig("")
	if err := config.LoadFromString("[input]\nsource=file\npath=capture.raw\n"); err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func BenchmarkConfig_Load(b *testing.B) {
	testConfig := `[input]
source=udp
port=7356

[trunking]
hangtime=2.5
controlfreqs=851006250,852012500`

	tmpfile, err := os.CreateTemp("", "bench_config_*.ini")
	if err != nil {
		b.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(testConfig)); err != nil {
		b.Fatalf("Failed to write temp file: %v", err)
	}
	if err := tmpfile.Close(); err != nil {
		b.Fatalf("Failed to close temp file: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		config := NewConfig(tmpfile.Name())
		config.Load()
	}
}
