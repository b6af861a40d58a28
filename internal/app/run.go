package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/685Degrees/echo-reader/internal/apidocs"
	"github.com/685Degrees/echo-reader/internal/audio"
	"github.com/685Degrees/echo-reader/internal/broker"
	"github.com/685Degrees/echo-reader/internal/config"
	"github.com/685Degrees/echo-reader/internal/inbox"
	"github.com/685Degrees/echo-reader/internal/orchestrator"
	"github.com/685Degrees/echo-reader/internal/player"
	"github.com/685Degrees/echo-reader/internal/reader"
	"github.com/685Degrees/echo-reader/internal/storage"
	"github.com/685Degrees/echo-reader/internal/synth"
	"github.com/685Degrees/echo-reader/internal/textproc"
	"github.com/685Degrees/echo-reader/internal/util"
	"github.com/685Degrees/echo-reader/internal/viewer"
	"github.com/685Degrees/echo-reader/internal/voice"
)

type Options struct {
	DataDir string
	CfgPath string
	Cfg     config.Config
	// Mute plays through a device-less output.
	Mute bool
}

// Run starts every component and blocks until ctx is cancelled or the
// viewer fails.
func Run(ctx context.Context, opt Options) error {
	logBuf := viewer.NewLogBuffer(800)
	log.SetOutput(io.MultiWriter(os.Stderr, logBuf))

	logBanner(opt.DataDir, opt.CfgPath)

	return run(ctx, opt, logBuf)
}

func run(ctx context.Context, o Options, logs *viewer.LogBuffer) error {
	cfg := o.Cfg

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ── Library
	db, err := storage.Open(o.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()
	if last, ok := db.GetMeta("last_started"); ok {
		log.Printf("STORAGE: last run %s", last)
	}
	if err := db.SetMeta("last_started", time.Now().Format(time.RFC3339)); err != nil {
		log.Printf("STORAGE: record start: %v", err)
	}

	var norm textproc.Normalizer = textproc.BasicNormalizer
	if cfg.Paths.NormalizeScript != "" {
		ln, err := textproc.NewLuaNormalizer(util.ResolvePath(o.DataDir, cfg.Paths.NormalizeScript))
		if err != nil {
			log.Printf("TEXT: lua normalizer disabled: %v", err)
		} else {
			defer ln.Close()
			norm = ln
		}
	}

	// ── Audio out
	out, err := newOutput(cfg.Player, o.Mute)
	if err != nil {
		return err
	}

	// ── Reading
	speech := newSynthesizer(cfg)
	p := player.New(player.Options{
		Output:         out,
		DefaultBitrate: cfg.Player.DefaultBitrate,
		PrimeSeconds:   cfg.Player.PrimeSeconds,
		ChunkSize:      cfg.Player.ChunkBytes,
		TickInterval:   time.Duration(cfg.Player.TickMS) * time.Millisecond,
		BufferMemory:   int64(cfg.Player.MemoryBufferMB) << 20,
		MaxBufferBytes: int64(cfg.Player.MaxBufferMB) << 20,
	})

	// ── Discussion
	mic, err := voice.NewDeviceMicrophone()
	if err != nil {
		return fmt.Errorf("microphone: %w", err)
	}
	sess := voice.New(voice.Config{
		Credentials: voice.NewHTTPCredentials(cfg.SessionURL()),
		Negotiator:  voice.NewHTTPNegotiator(cfg.Realtime.NegotiateURL, cfg.Realtime.Model),
		Microphone:  mic,
		Remote:      voice.NewSpeaker(out),
		ICEServers:  cfg.Realtime.ICEServers,
	})

	orch := orchestrator.New(p, sess, orchestrator.Options{
		Trailing:  cfg.Realtime.TrailingChars,
		Lookahead: cfg.Realtime.LookaheadChars,
		Preamble:  cfg.Realtime.Preamble,
		TurnDetection: voice.TurnDetection{
			Type:              "server_vad",
			Threshold:         cfg.Realtime.VADThreshold,
			PrefixPaddingMS:   cfg.Realtime.PrefixPaddingMS,
			SilenceDurationMS: cfg.Realtime.SilenceDurationMS,
			CreateResponse:    true,
		},
	})
	defer orch.Close()

	rd := reader.New(db, speech, orch)
	defer rd.Close()

	// ── Inbox
	if cfg.Paths.Inbox != "" {
		in, err := inbox.New(util.ResolvePath(o.DataDir, cfg.Paths.Inbox), db, norm, inbox.Options{})
		if err != nil {
			log.Printf("INBOX: disabled: %v", err)
		} else {
			go func() {
				if err := in.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("INBOX: stopped: %v", err)
				}
			}()
			log.Printf("INBOX: watching %s", in.Dir())
		}
	}

	// ── Viewer
	addr, url := NormalizeLocalViewer(cfg.Viewer.HTTPAddr)
	v := viewer.Viewer{
		Logs:         logs,
		DB:           db,
		Reader:       rd,
		Orch:         orch,
		Normalizer:   norm,
		PlayerEvents: p.Subscribe,
		Session:      sess,
		SkipSeconds:  cfg.Player.SkipSeconds,
		OpenAPI:      apidocs.Doc,
	}
	if cfg.Broker.Enabled {
		v.Broker = newBroker(cfg)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Start(ctx, addr, v) }()

	if err := WaitTCP(addr, util.ShortTimeout); err != nil {
		log.Printf("VIEWER: %v", err)
	} else {
		log.Printf("🌐 Reader: %s", url)
		if cfg.Viewer.OpenBrowser {
			if err := util.OpenURL(url); err != nil {
				log.Printf("VIEWER: open browser: %v", err)
			}
		}
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	// let the viewer finish its graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-time.After(util.DefaultShutdownTimeout + time.Second):
		return nil
	}
}

func newOutput(c config.Player, mute bool) (audio.Output, error) {
	if mute {
		log.Printf("AUDIO: muted")
		return audio.NullOutput{}, nil
	}
	f := audio.Format{SampleRate: c.SampleRate, Channels: 2}
	out, err := audio.NewOtoOutput(f, time.Duration(c.OutputBufferMS)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// newSynthesizer builds the speech source used for reading. Long texts are
// chunked and paced by the sequence.
func newSynthesizer(cfg config.Config) synth.Synthesizer {
	var s synth.Synthesizer
	switch strings.ToLower(cfg.Speech.Provider) {
	case "http":
		u := cfg.Speech.URL
		if u == "" {
			u = util.NormalizeURL(cfg.Viewer.HTTPAddr) + "/api/tts"
		}
		s = synth.NewClient(u)
		log.Printf("SPEECH: intermediary %s", u)
	default:
		s = newElevenLabs(cfg)
		log.Printf("SPEECH: elevenlabs voice %s", cfg.Speech.Voice)
	}
	return synth.NewSequence(s, cfg.Speech.RequestsPerMinute)
}

func newElevenLabs(cfg config.Config) *synth.ElevenLabs {
	el := synth.NewElevenLabs(cfg.Speech.APIKey)
	if cfg.Broker.ElevenLabsURL != "" {
		el.BaseURL = util.NormalizeURL(cfg.Broker.ElevenLabsURL)
	}
	if cfg.Speech.Voice != "" {
		el.Voice = cfg.Speech.Voice
	}
	if cfg.Speech.Model != "" {
		el.Model = cfg.Speech.Model
	}
	return el
}

func newBroker(cfg config.Config) *broker.Broker {
	if cfg.Broker.OpenAIKey == "" {
		log.Printf("BROKER: %s not set, /session will fail", config.EnvOpenAIKey)
	}
	return broker.New(broker.Options{
		OpenAIBaseURL:     cfg.Broker.OpenAIBaseURL,
		OpenAIKey:         cfg.Broker.OpenAIKey,
		Model:             cfg.Realtime.Model,
		Voice:             cfg.Broker.Voice,
		Speech:            newElevenLabs(cfg),
		SessionsPerMinute: cfg.Broker.SessionsPerMinute,
	})
}
