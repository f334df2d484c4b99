// dsdneo is the narrowband digital voice decoder: it demodulates a
// baseband sample stream, hunts frame sync across the enabled
// protocols, decodes voice and control channels and follows trunked
// voice grants.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/arancormonk/dsd-neo-sub003/internal/config"
	"github.com/arancormonk/dsd-neo-sub003/internal/frame"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dsdneo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = pflag.StringP("config", "c", "", "configuration file path")
		profile     = pflag.String("profile", "", "configuration profile overlay to apply")
		inputSource = pflag.String("input", "", "input source: file, tcp or udp")
		inputPath   = pflag.String("file", "", "I/Q capture file to replay")
		address     = pflag.String("address", "", "sample server address (tcp) ")
		port        = pflag.Uint16("port", 0, "sample port (tcp/udp)")
		protocols   = pflag.String("protocols", "", "comma separated protocol list, empty for auto")
		aggressive  = pflag.Bool("aggressive", false, "widen sync tolerance immediately")
		noTrunking  = pflag.Bool("no-trunking", false, "disable grant following")
		allowList   = pflag.Bool("allow-list", false, "only follow group calls present in the group CSV")
		tuneData    = pflag.Bool("tune-data", false, "follow data call grants")
		tunePrivate = pflag.Bool("tune-private", false, "follow private call grants")
		tuneEnc     = pflag.Bool("tune-encrypted", false, "follow encrypted call grants")
		tgHold      = pflag.Uint32("tg-hold", 0, "hold on one talkgroup, ignore others")
		groupFile   = pflag.String("groups", "", "talkgroup CSV path")
		channelFile = pflag.String("channels", "", "channel map CSV path (channel,freqHz)")
		keyFile     = pflag.String("keys", "", "keystore CSV path (keyid,hexkey)")
		record      = pflag.Bool("record", false, "write per-call WAV files")
		recordDir   = pflag.String("record-dir", "", "directory for call recordings")
		dbPath      = pflag.String("db", "", "SQLite database path for call history")
		logLevel    = pflag.String("log-level", "", "log level: trace, debug, info, warn, error")
		showVersion = pflag.Bool("version", false, "print version and exit")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("dsdneo %s\n", version)
		return nil
	}

	cfg := config.NewConfig(*configPath)
	if *configPath != "" {
		if err := cfg.Load(); err != nil {
			return err
		}
		if *profile != "" {
			if err := cfg.ApplyProfile(*profile); err != nil {
				return err
			}
		}
	}

	// Flags override the file.
	applyFlagOverrides(cfg, flagOverrides{
		inputSource: *inputSource, inputPath: *inputPath, address: *address,
		port: *port, protocols: *protocols, aggressive: *aggressive,
		noTrunking: *noTrunking, allowList: *allowList,
		tuneData: *tuneData, tunePrivate: *tunePrivate, tuneEnc: *tuneEnc,
		tgHold: *tgHold, groupFile: *groupFile, channelFile: *channelFile,
		keyFile: *keyFile, record: *record, recordDir: *recordDir, logLevel: *logLevel,
	})

	log := buildLogger(cfg)
	for _, d := range cfg.Diagnostics() {
		switch d.Level {
		case config.DiagError:
			log.Error().Msg(d.String())
		case config.DiagWarning:
			log.Warn().Msg(d.String())
		default:
			log.Info().Msg(d.String())
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Info().Str("version", version).Msg("dsdneo starting")
	return newReceiver(cfg, log, *dbPath).run()
}

type flagOverrides struct {
	inputSource, inputPath, address string
	port                            uint16
	protocols                       string
	aggressive, noTrunking          bool
	allowList, tuneData             bool
	tunePrivate, tuneEnc            bool
	tgHold                          uint32
	groupFile, channelFile, keyFile string
	record                          bool
	recordDir, logLevel             string
}

// applyFlagOverrides replays CLI values through the config parsers so
// the same validation and diagnostics apply.
func applyFlagOverrides(cfg *config.Config, o flagOverrides) {
	set := func(section, key, value string) {
		cfg.LoadFromString(fmt.Sprintf("[%s]\n%s=%s\n", section, key, value))
	}
	if o.inputSource != "" {
		set("input", "source", o.inputSource)
	}
	if o.inputPath != "" {
		set("input", "source", "file")
		set("input", "path", o.inputPath)
	}
	if o.address != "" {
		set("input", "address", o.address)
	}
	if o.port != 0 {
		set("input", "port", fmt.Sprintf("%d", o.port))
	}
	if o.protocols != "" {
		set("mode", "protocols", o.protocols)
	}
	if o.aggressive {
		set("mode", "aggressive", "1")
	}
	if o.noTrunking {
		set("trunking", "enable", "0")
	}
	if o.allowList {
		set("trunking", "allowlist", "1")
	}
	if o.tuneData {
		set("trunking", "tunedata", "1")
	}
	if o.tunePrivate {
		set("trunking", "tuneprivate", "1")
	}
	if o.tuneEnc {
		set("trunking", "tuneencrypted", "1")
	}
	if o.tgHold != 0 {
		set("trunking", "tghold", fmt.Sprintf("%d", o.tgHold))
	}
	if o.groupFile != "" {
		set("trunking", "groupfile", o.groupFile)
	}
	if o.channelFile != "" {
		set("trunking", "channelfile", o.channelFile)
	}
	if o.keyFile != "" {
		set("trunking", "keyfile", o.keyFile)
	}
	if o.record {
		set("recording", "enable", "1")
	}
	if o.recordDir != "" {
		set("recording", "dir", o.recordDir)
	}
	if o.logLevel != "" {
		set("logging", "level", o.logLevel)
	}
}

func buildLogger(cfg *config.Config) zerolog.Logger {
	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if cfg.GetLogJSON() {
		w = os.Stderr
	}
	if path := cfg.GetLogFile(); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		}
	}
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// protoSet maps the config protocol names onto the sync table.
var protoSet = map[string]frame.Protocol{
	"p25p1":    frame.ProtoP25p1,
	"p25p2":    frame.ProtoP25p2,
	"dmr":      frame.ProtoDMR,
	"nxdn":     frame.ProtoNXDN,
	"nxdn48":   frame.ProtoNXDN,
	"nxdn96":   frame.ProtoNXDN,
	"dpmr":     frame.ProtoDPMR,
	"ysf":      frame.ProtoYSF,
	"dstar":    frame.ProtoDStar,
	"m17":      frame.ProtoM17,
	"edacs":    frame.ProtoEDACS,
	"provoice": frame.ProtoProVoice,
}

func parseProtocols(names []string) ([]frame.Protocol, error) {
	var out []frame.Protocol
	for _, n := range names {
		if n == "auto" {
			return nil, nil
		}
		p, ok := protoSet[n]
		if !ok {
			return nil, fmt.Errorf("unknown protocol %q", n)
		}
		out = append(out, p)
	}
	return out, nil
}
