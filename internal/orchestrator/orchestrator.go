// Package orchestrator holds audio focus: it makes sure the reading and the
// live discussion never make sound at the same time, and it is the only path
// from the outer layers to the player and the voice session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/685Degrees/echo-reader/internal/player"
	"github.com/685Degrees/echo-reader/internal/voice"
)

var (
	ErrAlreadyInProgress = errors.New("discussion already starting")
	ErrNotListening      = errors.New("not listening")
	ErrFocusHeld         = errors.New("audio focus held by the discussion")
)

type Mode int

const (
	Listening Mode = iota
	ConnectingToDiscuss
	Discussing
)

func (m Mode) String() string {
	switch m {
	case Listening:
		return "listening"
	case ConnectingToDiscuss:
		return "connecting"
	case Discussing:
		return "discussing"
	default:
		return "unknown"
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Player is the part of *player.Player the orchestrator drives.
type Player interface {
	PrepareFromStream(ctx context.Context, src player.Source) error
	PrepareFromBlob(ctx context.Context, src player.Source) error
	Play() error
	Pause() error
	Seek(percent float64) error
	SkipForward(d time.Duration) error
	SkipBack(d time.Duration) error
	Teardown()
	State() player.State
}

// Session is the part of *voice.Session the orchestrator drives.
type Session interface {
	Start(ctx context.Context, opt voice.StartOptions) error
	Stop()
	SendInstruction(text string) error
}

type Options struct {
	// Runes of text before and after the playback position handed to the AI.
	Trailing  int
	Lookahead int
	// Preamble is prepended to the heard text in the session instructions.
	Preamble      string
	TurnDetection voice.TurnDetection
}

const DefaultPreamble = "The listener paused an audiobook to talk about what they just heard. " +
	"Answer briefly and conversationally. The passage around the pause point:"

func (o *Options) defaults() {
	if o.Trailing <= 0 {
		o.Trailing = 1000
	}
	if o.Lookahead < 0 {
		o.Lookahead = 0
	} else if o.Lookahead == 0 {
		o.Lookahead = 200
	}
	if o.Preamble == "" {
		o.Preamble = DefaultPreamble
	}
}

// Event reports a mode change.
type Event struct {
	Mode  Mode   `json:"mode"`
	Error string `json:"error,omitempty"`
}

type Orchestrator struct {
	player  Player
	session Session
	opt     Options

	entering atomic.Bool

	mu   sync.Mutex
	mode Mode
	// gen changes on every exit, so an enter that finishes late can tell
	// that it was cancelled.
	gen  uint64
	text string
	// connecting is the enter attempt in flight, if any.
	connecting *attempt

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

type attempt struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func New(p Player, s Session, opt Options) *Orchestrator {
	opt.defaults()
	return &Orchestrator{
		player:  p,
		session: s,
		opt:     opt,
		subs:    make(map[chan Event]struct{}),
	}
}

func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// ── Discussion ──────────────────────────────────────────────────────────────

// EnterDiscussion pauses the reading and connects the live session, seeded
// with the text around the pause point. On failure the mode returns to
// Listening and the reading stays paused.
func (o *Orchestrator) EnterDiscussion(ctx context.Context) error {
	if !o.entering.CompareAndSwap(false, true) {
		return ErrAlreadyInProgress
	}
	defer o.entering.Store(false)

	// The pause and the mode change happen under one lock, so an exit either
	// precedes both or sees the reading paused and resumes it.
	o.mu.Lock()
	if o.mode != Listening {
		mode := o.mode
		o.mu.Unlock()
		if mode == ConnectingToDiscuss {
			return ErrAlreadyInProgress
		}
		return fmt.Errorf("%w: %s", ErrNotListening, mode)
	}
	if err := o.player.Pause(); err != nil && !errors.Is(err, player.ErrNotReady) {
		log.Printf("ORCH: pause before discussion: %v", err)
	}
	gen := o.gen
	text := o.text
	st := o.player.State()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.connecting = &attempt{cancel: cancel, done: done}
	o.setModeLocked(ConnectingToDiscuss, nil)
	o.mu.Unlock()
	defer func() {
		cancel()
		close(done)
	}()

	heard := HeardWindow(text, Position(st, text), o.opt.Trailing, o.opt.Lookahead)
	log.Printf("ORCH: entering discussion (%d runes of context)", len([]rune(heard)))

	if !o.current(gen) {
		return fmt.Errorf("discussion cancelled: %w", context.Canceled)
	}
	err := o.session.Start(ctx, voice.StartOptions{
		Instructions:  o.instructions(heard),
		TurnDetection: o.opt.TurnDetection,
	})

	o.mu.Lock()
	if o.gen != gen {
		// exited while connecting; the exit restores Listening and stops
		// the session once this returns
		o.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("discussion cancelled: %w", context.Canceled)
		}
		return err
	}
	o.connecting = nil
	if err != nil {
		o.setModeLocked(Listening, err)
		o.mu.Unlock()
		log.Printf("ORCH: discussion failed: %v", err)
		return err
	}
	o.setModeLocked(Discussing, nil)
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

func (o *Orchestrator) instructions(heard string) string {
	if heard == "" {
		return ""
	}
	return o.opt.Preamble + "\n\n" + heard
}

// ExitDiscussion stops the live session and resumes the reading where it was
// paused. It is safe in every mode; from Listening it only makes sure the
// session is stopped. A connect in progress is cancelled and has finished by
// the time ExitDiscussion returns.
func (o *Orchestrator) ExitDiscussion(ctx context.Context) error {
	was := o.leave()
	if was == Listening {
		return nil
	}
	log.Printf("ORCH: left discussion (%s)", was)

	st := o.player.State()
	if st.Resource == 0 || (st.Status != player.Paused && st.Status != player.Ready) {
		return nil
	}
	if err := o.player.Play(); err != nil {
		return fmt.Errorf("resume reading: %w", err)
	}
	return nil
}

// leave returns to Listening, waits out any connect attempt and stops the
// session. It reports the mode it left.
func (o *Orchestrator) leave() Mode {
	o.mu.Lock()
	was := o.mode
	o.gen++
	a := o.connecting
	o.connecting = nil
	o.setModeLocked(Listening, nil)
	o.mu.Unlock()

	if a != nil {
		a.cancel()
		<-a.done
	}
	o.session.Stop()
	return was
}

// SendInstruction forwards text to the live session.
func (o *Orchestrator) SendInstruction(text string) error {
	return o.session.SendInstruction(text)
}

// ── Reading ─────────────────────────────────────────────────────────────────

// Load prepares src for playback, streaming it as it arrives. whole reads
// the body completely first, for cached audio.
func (o *Orchestrator) Load(ctx context.Context, src player.Source, whole bool) error {
	o.mu.Lock()
	if o.mode != Listening {
		o.mu.Unlock()
		src.Body.Close()
		return ErrFocusHeld
	}
	o.text = src.Text
	o.mu.Unlock()

	if whole {
		return o.player.PrepareFromBlob(ctx, src)
	}
	return o.player.PrepareFromStream(ctx, src)
}

// Play starts the reading; refused while a discussion holds audio focus.
func (o *Orchestrator) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mode != Listening {
		return ErrFocusHeld
	}
	return o.player.Play()
}

func (o *Orchestrator) Pause() error { return o.player.Pause() }

func (o *Orchestrator) Seek(percent float64) error { return o.player.Seek(percent) }

// Skip moves by d, backwards when d is negative.
func (o *Orchestrator) Skip(d time.Duration) error {
	if d < 0 {
		return o.player.SkipBack(-d)
	}
	return o.player.SkipForward(d)
}

// Unload releases the loaded audio.
func (o *Orchestrator) Unload() {
	o.mu.Lock()
	o.text = ""
	o.mu.Unlock()
	o.player.Teardown()
}

func (o *Orchestrator) State() player.State { return o.player.State() }

// Close stops the session and releases the player.
func (o *Orchestrator) Close() {
	o.leave()
	o.player.Teardown()
}

// ── Observation ─────────────────────────────────────────────────────────────

// Subscribe returns a channel of mode changes and a cancel func.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	o.subMu.Lock()
	o.subs[ch] = struct{}{}
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		if _, ok := o.subs[ch]; ok {
			delete(o.subs, ch)
			close(ch)
		}
		o.subMu.Unlock()
	}
	return ch, cancel
}

func (o *Orchestrator) setModeLocked(m Mode, cause error) {
	if o.mode == m && cause == nil {
		return
	}
	o.mode = m
	ev := Event{Mode: m}
	if cause != nil {
		ev.Error = cause.Error()
	}
	o.subMu.Lock()
	for ch := range o.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	o.subMu.Unlock()
}
