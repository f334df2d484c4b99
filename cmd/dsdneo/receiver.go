package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo-sub003/internal/audio"
	"github.com/arancormonk/dsd-neo-sub003/internal/config"
	"github.com/arancormonk/dsd-neo-sub003/internal/database"
	"github.com/arancormonk/dsd-neo-sub003/internal/dsp"
	"github.com/arancormonk/dsd-neo-sub003/internal/event"
	"github.com/arancormonk/dsd-neo-sub003/internal/frame"
	"github.com/arancormonk/dsd-neo-sub003/internal/grouplist"
	"github.com/arancormonk/dsd-neo-sub003/internal/input"
	"github.com/arancormonk/dsd-neo-sub003/internal/trunk"
	"github.com/arancormonk/dsd-neo-sub003/internal/vocoder"
)

const sampleBlock = 4096

// receiver wires the sample source, demodulator front end, frame
// decoder, trunking state machine and audio output together.
type receiver struct {
	cfg    *config.Config
	log    zerolog.Logger
	dbPath string

	fe    *dsp.FrontEnd
	meter *dsp.SNRMeter
	dec   *frame.Decoder
	tsm   *trunk.TSM
	out   *audio.Output
	sink  audio.Sink
	ring  *event.Ring

	db     *database.DB
	events *database.CallEventRepository
	units  *database.RadioUnitRepository
}

func newReceiver(cfg *config.Config, log zerolog.Logger, dbPath string) *receiver {
	return &receiver{cfg: cfg, log: log, dbPath: dbPath}
}

func (r *receiver) run() error {
	groups := grouplist.New(r.log, r.cfg.GetGroupFile())
	if r.cfg.GetGroupFile() != "" {
		if err := groups.Read(); err != nil {
			return err
		}
	}
	if path := r.cfg.GetChannelFile(); path != "" {
		if err := groups.ReadChannels(path); err != nil {
			return err
		}
	}

	keys := frame.NewKeystore()
	if path := r.cfg.GetKeyFile(); path != "" {
		if err := loadKeys(keys, path); err != nil {
			return err
		}
	}

	if r.dbPath != "" {
		db, err := database.NewDB(database.Config{Path: r.dbPath}, r.log)
		if err != nil {
			return err
		}
		r.db = db
		r.events = database.NewCallEventRepository(db.GetDB())
		r.units = database.NewRadioUnitRepository(db.GetDB())
		defer db.Close()
	}

	// Audio path.
	r.meter = dsp.NewSNRMeter(nil)
	r.fe = dsp.NewFrontEnd(r.log, r.meter.Estimate())
	chain := dsp.ChainC4FM
	if r.cfg.GetDSPChain() == "cqpsk" {
		chain = dsp.ChainCQPSK
	}
	if err := r.fe.Configure(chain, int(r.cfg.GetDSPSPS()), dsp.HintNone); err != nil {
		return err
	}

	var wav *audio.WAVWriter
	if r.cfg.GetRecordEnable() {
		wav = audio.NewWAVWriter(r.log, r.cfg.GetRecordDir(), r.cfg.GetRecordTemplate(), r.cfg.GetOutputRate())
		r.sink = wav
	} else {
		r.sink = audio.NewNullSink()
	}
	defer r.sink.Close()
	r.out = audio.NewOutput(r.log, vocoder.NewSilence(), r.sink)

	// Trunking.
	tcfg := trunk.DefaultConfig()
	tcfg.Hangtime = secondsDur(r.cfg.GetHangtimeS())
	tcfg.GrantTimeout = secondsDur(r.cfg.GetGrantTimeoutS())
	tcfg.CCGrace = secondsDur(r.cfg.GetCCGraceS())
	tcfg.TuneDataCalls = r.cfg.GetTuneDataCalls()
	tcfg.TunePrivateCalls = r.cfg.GetTunePrivateCalls()
	tcfg.TuneEncCalls = r.cfg.GetTuneEncCalls()
	tcfg.AllowListOnly = r.cfg.GetAllowListOnly()
	tcfg.TGHold = r.cfg.GetTGHold()
	r.tsm = trunk.New(tcfg, &retuner{fe: r.fe, log: r.log}, groups, r.log)
	r.tsm.SetAudioFlusher(r.out)
	r.out.SetGate(r.tsm)
	for i, f := range r.cfg.GetControlFreqs() {
		if i == 0 {
			r.tsm.SetCCFrequency(f)
		} else {
			r.tsm.Cands.Add(f)
		}
	}

	// Frame layer.
	r.ring = event.NewRing()
	tee := &eventTee{
		tsm:      r.tsm,
		wav:      wav,
		ring:     r.ring,
		events:   r.events,
		units:    r.units,
		trunking: r.cfg.GetTrunkingEnable(),
		log:      r.log,
	}
	deps := &frame.Deps{
		TSM:             tee,
		Groups:          groups,
		Voice:           r.out,
		Ring:            r.ring,
		ELog:            event.NewLogger(os.Stdout, nil),
		Keys:            keys,
		Log:             r.log,
		FollowEncrypted: r.cfg.GetFollowEncrypted(),
	}
	protos, err := parseProtocols(r.cfg.GetProtocols())
	if err != nil {
		return err
	}
	r.dec = frame.NewDecoder(deps, protos)
	if r.cfg.GetAggressiveSync() {
		r.dec.Matcher().SetTolerance(2)
	}
	r.dec.OnSync = r.followHints

	src, err := r.openInput()
	if err != nil {
		return err
	}
	defer src.Close()

	return r.loop(src)
}

// loop is the decode thread: it owns the front end, the decoder and
// the trunking state machine.
func (r *receiver) loop(src input.Source) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	buf := make([]complex64, sampleBlock)
	dibits := make([]frame.Dibit, 0, sampleBlock)

	for ctx.Err() == nil {
		n, err := src.Read(buf)
		if n > 0 {
			r.fe.Push(buf[:n])
			dibits = dibits[:0]
			for {
				sym, perr := r.fe.PopSymbol()
				if perr != nil {
					break
				}
				r.meter.Update(sym.Soft)
				dibits = append(dibits, frame.Dibit{Value: sym.Dibit, Reliability: sym.Reliability})
			}
			if derr := r.dec.Run(frame.NewSliceSource(dibits)); derr != nil {
				return derr
			}
		}
		r.tsm.Tick()

		if err != nil {
			if errors.Is(err, io.EOF) {
				r.log.Info().Msg("capture exhausted")
				return nil
			}
			return err
		}
	}
	r.log.Info().Msg("shutting down")
	return nil
}

// followHints retunes the front end when a sync match implies a
// different symbol rate or modulation than the current chain.
func (r *receiver) followHints(m frame.SyncMatch) {
	p := m.Pattern
	want := dsp.ChainC4FM
	if p.CQPSK {
		want = dsp.ChainCQPSK
	}
	if r.fe.SPS() != p.SPSHint || r.fe.ChainKind() != want {
		if err := r.fe.Configure(want, p.SPSHint, hintFor(p.Proto)); err != nil {
			r.log.Warn().Err(err).Str("sync", p.Name).Msg("front end reconfigure failed")
			return
		}
	}
	r.fe.SetLocked(true)
}

func hintFor(p frame.Protocol) dsp.ProtocolHint {
	switch p {
	case frame.ProtoP25p1:
		return dsp.HintP25p1
	case frame.ProtoP25p2:
		return dsp.HintP25p2
	case frame.ProtoDMR:
		return dsp.HintDMR
	case frame.ProtoNXDN:
		return dsp.HintNXDN48
	case frame.ProtoDPMR:
		return dsp.HintDPMR
	case frame.ProtoM17:
		return dsp.HintM17
	}
	return dsp.HintNone
}

func (r *receiver) openInput() (input.Source, error) {
	format, err := input.ParseFormat(r.cfg.GetInputFormat())
	if err != nil {
		return nil, err
	}
	switch r.cfg.GetInputSource() {
	case "file":
		return input.NewFileSource(r.cfg.GetInputPath(), format)
	case "tcp":
		addr := fmt.Sprintf("%s:%d", r.cfg.GetInputAddress(), r.cfg.GetInputPort())
		return input.NewTCPSource(r.log, addr, format)
	case "udp":
		return input.NewUDPSource(r.log, int(r.cfg.GetInputPort()), format)
	}
	return nil, fmt.Errorf("unknown input source %q", r.cfg.GetInputSource())
}

// retuner receives tune commands from the trunking state machine. SDR
// device control is out of scope; the retuner prepares the front end
// for the new channel and reports the command.
type retuner struct {
	fe  *dsp.FrontEnd
	log zerolog.Logger
}

func (t *retuner) Tune(freqHz int64, tdma bool) error {
	t.log.Info().Int64("freq_hz", freqHz).Bool("tdma", tdma).Msg("retune")
	t.fe.ResetOnRetune(true)
	if tdma {
		return t.fe.Configure(dsp.ChainCQPSK, 8, dsp.HintP25p2)
	}
	return nil
}

// eventTee sits between the frame layer and the trunking state
// machine: it forwards every event, drives the per-call recorder and
// mirrors call starts into the database.
type eventTee struct {
	tsm      *trunk.TSM
	wav      *audio.WAVWriter
	ring     *event.Ring
	events   *database.CallEventRepository
	units    *database.RadioUnitRepository
	trunking bool
	log      zerolog.Logger
}

func (t *eventTee) Event(ev trunk.Event) {
	switch ev.Kind {
	case trunk.EvGrant:
		if !t.trunking {
			return
		}
	case trunk.EvPTT:
		if rec, ok := t.ring.Current(); ok {
			if t.wav != nil {
				if err := t.wav.BeginCall(ev.Slot, rec); err != nil {
					t.log.Warn().Err(err).Msg("recording start failed")
				}
			}
			if t.events != nil {
				if rec.Alias == "" && t.units != nil {
					rec.Alias = t.units.AliasOf(rec.Source)
				}
				if err := t.events.Insert(rec); err != nil {
					t.log.Warn().Err(err).Msg("call history insert failed")
				}
			}
		}
	case trunk.EvEnd, trunk.EvIdle:
		if t.wav != nil {
			t.wav.EndCall(ev.Slot)
		}
	}
	t.tsm.Event(ev)
}

// The frame layer's optional surfaces pass straight through.
func (t *eventTee) SetAudioAllowed(slot int, ok bool) { t.tsm.SetAudioAllowed(slot, ok) }
func (t *eventTee) RequestRelease() { t.tsm.RequestRelease() }
func (t *eventTee) AddPatch(sg, wg uint32) { t.tsm.AddPatch(sg, wg) }
func (t *eventTee) SetVoiceErrorHot(hot bool) { t.tsm.SetVoiceErrorHot(hot) }

// loadKeys imports "keyid,hexkey" rows into the keystore.
func loadKeys(ks *frame.Keystore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open key file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, key, ok := strings.Cut(line, ",")
		if !ok {
			return fmt.Errorf("key file %s line %d: want keyid,hexkey", path, lineNo)
		}
		keyID, err := strconv.ParseUint(strings.TrimSpace(id), 0, 16)
		if err != nil {
			return fmt.Errorf("key file %s line %d: bad key id: %w", path, lineNo, err)
		}
		raw, err := hex.DecodeString(strings.TrimSpace(key))
		if err != nil {
			return fmt.Errorf("key file %s line %d: bad hex key: %w", path, lineNo, err)
		}
		ks.Load(uint16(keyID), raw)
	}
	return scanner.Err()
}

func secondsDur(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
