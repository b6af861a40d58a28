package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/685Degrees/echo-reader/internal/player"
	"github.com/685Degrees/echo-reader/internal/voice"
)

// fakePlayer tracks status and position like the real player without audio.
type fakePlayer struct {
	mu       sync.Mutex
	st       player.State
	plays    int
	prepared []string
}

func (p *fakePlayer) prepare(src player.Source) error {
	src.Body.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prepared = append(p.prepared, src.Text)
	p.st = player.State{Status: player.Ready, Resource: p.st.Resource + 1, Duration: 100}
	return nil
}

func (p *fakePlayer) PrepareFromStream(_ context.Context, src player.Source) error {
	return p.prepare(src)
}

func (p *fakePlayer) PrepareFromBlob(_ context.Context, src player.Source) error {
	return p.prepare(src)
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.st.Status {
	case player.Ready, player.Paused:
		p.st.Status = player.Playing
		p.plays++
		return nil
	case player.Playing:
		return nil
	}
	return player.ErrNotReady
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st.Resource == 0 {
		return player.ErrNotReady
	}
	if p.st.Status == player.Playing {
		p.st.Status = player.Paused
	}
	return nil
}

func (p *fakePlayer) Seek(percent float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st.Resource == 0 {
		return player.ErrNotReady
	}
	p.st.CurrentTime = percent / 100 * p.st.Duration
	return nil
}

func (p *fakePlayer) SkipForward(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.CurrentTime = min(p.st.CurrentTime+d.Seconds(), p.st.Duration)
	return nil
}

func (p *fakePlayer) SkipBack(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.CurrentTime = max(p.st.CurrentTime-d.Seconds(), 0)
	return nil
}

func (p *fakePlayer) Teardown() {
	p.mu.Lock()
	p.st = player.State{}
	p.mu.Unlock()
}

func (p *fakePlayer) State() player.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st
}

// fakeSession mimics voice.Session states; gate blocks Start until closed.
type fakeSession struct {
	starts  atomic.Int32
	stops   atomic.Int32
	err     error
	gate    chan struct{}
	started chan struct{}

	mu          sync.Mutex
	conn        voice.ConnState
	channelOpen bool
	lastOpt     voice.StartOptions
	sent        []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{started: make(chan struct{}, 8)}
}

func (s *fakeSession) Start(ctx context.Context, opt voice.StartOptions) error {
	s.starts.Add(1)
	s.mu.Lock()
	s.conn = voice.Connecting
	s.lastOpt = opt
	gate := s.gate
	s.mu.Unlock()
	s.started <- struct{}{}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != voice.Connecting {
		return voice.ErrNegotiationFailed
	}
	if s.err != nil {
		s.conn = voice.Disconnected
		return s.err
	}
	s.conn = voice.Connected
	return nil
}

func (s *fakeSession) Stop() {
	s.stops.Add(1)
	s.mu.Lock()
	s.conn = voice.Disconnected
	s.channelOpen = false
	s.mu.Unlock()
}

func (s *fakeSession) SendInstruction(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.channelOpen {
		return voice.ErrChannelNotOpen
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *fakeSession) connState() voice.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func loaded(t *testing.T, text string) (*Orchestrator, *fakePlayer, *fakeSession) {
	t.Helper()
	p := &fakePlayer{}
	s := newFakeSession()
	o := New(p, s, Options{})
	src := player.Source{Text: text, MIMEType: "audio/mpeg", Body: io.NopCloser(strings.NewReader(""))}
	if err := o.Load(context.Background(), src, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return o, p, s
}

func TestEnterAndExitResumesAtPausedPosition(t *testing.T) {
	o, p, s := loaded(t, strings.Repeat("a", 1000))
	if err := o.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := o.Seek(42); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	if err := o.EnterDiscussion(context.Background()); err != nil {
		t.Fatalf("EnterDiscussion: %v", err)
	}
	if o.Mode() != Discussing {
		t.Fatalf("mode = %s", o.Mode())
	}
	if st := p.State(); st.Status != player.Paused || st.CurrentTime != 42 {
		t.Fatalf("player during discussion = %+v", st)
	}
	if err := o.Play(); !errors.Is(err, ErrFocusHeld) {
		t.Fatalf("Play while discussing = %v, want ErrFocusHeld", err)
	}

	if err := o.ExitDiscussion(context.Background()); err != nil {
		t.Fatalf("ExitDiscussion: %v", err)
	}
	if o.Mode() != Listening || s.connState() != voice.Disconnected {
		t.Fatalf("mode %s conn %s after exit", o.Mode(), s.connState())
	}
	if st := p.State(); st.Status != player.Playing || st.CurrentTime != 42 {
		t.Fatalf("player after exit = %+v", st)
	}
}

func TestEnterTwiceStartsOnce(t *testing.T) {
	o, _, s := loaded(t, "some text")
	s.gate = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- o.EnterDiscussion(context.Background()) }()
	<-s.started

	if err := o.EnterDiscussion(context.Background()); !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("second enter = %v, want ErrAlreadyInProgress", err)
	}
	close(s.gate)
	if err := <-errc; err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if n := s.starts.Load(); n != 1 {
		t.Fatalf("Start called %d times", n)
	}
	if err := o.EnterDiscussion(context.Background()); !errors.Is(err, ErrNotListening) {
		t.Fatalf("enter while discussing = %v, want ErrNotListening", err)
	}
}

func TestExitWhileConnecting(t *testing.T) {
	o, p, s := loaded(t, "some text")
	p.Play()
	s.gate = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- o.EnterDiscussion(context.Background()) }()
	<-s.started
	if o.Mode() != ConnectingToDiscuss {
		t.Fatalf("mode = %s", o.Mode())
	}

	if err := o.ExitDiscussion(context.Background()); err != nil {
		t.Fatalf("ExitDiscussion: %v", err)
	}
	if s.connState() != voice.Disconnected {
		t.Fatalf("conn = %s", s.connState())
	}
	close(s.gate)

	if err := <-errc; err == nil {
		t.Fatal("enter succeeded after exit")
	}
	if o.Mode() != Listening {
		t.Fatalf("stale enter changed mode to %s", o.Mode())
	}
	if p.State().Status != player.Playing {
		t.Fatal("reading not resumed")
	}
}

// slowPausePlayer holds Pause until release is closed.
type slowPausePlayer struct {
	*fakePlayer
	pausing chan struct{}
	release chan struct{}
}

func (p *slowPausePlayer) Pause() error {
	close(p.pausing)
	<-p.release
	return p.fakePlayer.Pause()
}

func TestExitDuringEnterPause(t *testing.T) {
	p := &slowPausePlayer{fakePlayer: &fakePlayer{}, pausing: make(chan struct{}), release: make(chan struct{})}
	s := newFakeSession()
	o := New(p, s, Options{})
	src := player.Source{Text: "some text", Body: io.NopCloser(strings.NewReader(""))}
	if err := o.Load(context.Background(), src, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	p.Play()

	errc := make(chan error, 1)
	go func() { errc <- o.EnterDiscussion(context.Background()) }()
	<-p.pausing

	exited := make(chan error, 1)
	go func() { exited <- o.ExitDiscussion(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(p.release)

	if err := <-exited; err != nil {
		t.Fatalf("ExitDiscussion: %v", err)
	}
	startsAtExit := s.starts.Load()
	if s.connState() != voice.Disconnected {
		t.Fatalf("conn = %s after exit", s.connState())
	}
	if st := p.State(); st.Status != player.Playing {
		t.Fatalf("reading %s after exit, want playing", st.Status)
	}

	<-errc
	if n := s.starts.Load(); n != startsAtExit {
		t.Fatalf("Start called after exit returned (%d then %d)", startsAtExit, n)
	}
	if o.Mode() != Listening || s.connState() != voice.Disconnected {
		t.Fatalf("mode %s conn %s after enter returned", o.Mode(), s.connState())
	}
	if st := p.State(); st.Status != player.Playing {
		t.Fatalf("reading left %s", st.Status)
	}
}

func TestFailedEnterReturnsToListeningWithoutResume(t *testing.T) {
	o, p, s := loaded(t, "some text")
	p.Play()
	s.err = voice.ErrMicrophoneDenied

	events, cancel := o.Subscribe()
	defer cancel()

	err := o.EnterDiscussion(context.Background())
	if !errors.Is(err, voice.ErrMicrophoneDenied) {
		t.Fatalf("enter = %v", err)
	}
	if o.Mode() != Listening {
		t.Fatalf("mode = %s", o.Mode())
	}
	if st := p.State(); st.Status != player.Paused || p.plays != 1 {
		t.Fatalf("player = %+v after %d plays", st, p.plays)
	}

	var last Event
	for len(events) > 0 {
		last = <-events
	}
	if last.Mode != Listening || last.Error == "" {
		t.Fatalf("last event = %+v", last)
	}

	// listening again: play works
	if err := o.Play(); err != nil {
		t.Fatalf("Play after failed enter: %v", err)
	}
}

func TestSendInstructionBeforeChannelOpens(t *testing.T) {
	o, _, s := loaded(t, "text")
	if err := o.EnterDiscussion(context.Background()); err != nil {
		t.Fatalf("EnterDiscussion: %v", err)
	}
	if err := o.SendInstruction("hello"); !errors.Is(err, voice.ErrChannelNotOpen) {
		t.Fatalf("SendInstruction = %v, want ErrChannelNotOpen", err)
	}

	s.mu.Lock()
	s.channelOpen = true
	s.mu.Unlock()
	if err := o.SendInstruction("hello"); err != nil {
		t.Fatalf("SendInstruction: %v", err)
	}
}

func TestExitWithoutResource(t *testing.T) {
	p := &fakePlayer{}
	s := newFakeSession()
	o := New(p, s, Options{})
	if err := o.EnterDiscussion(context.Background()); err != nil {
		t.Fatalf("EnterDiscussion: %v", err)
	}
	if err := o.ExitDiscussion(context.Background()); err != nil {
		t.Fatalf("ExitDiscussion: %v", err)
	}
	if p.plays != 0 {
		t.Fatal("resumed with nothing loaded")
	}
	if err := o.ExitDiscussion(context.Background()); err != nil {
		t.Fatalf("exit while listening: %v", err)
	}
	if s.stops.Load() != 2 {
		t.Fatalf("Stop called %d times, want 2", s.stops.Load())
	}
}

func TestLoadRefusedWhileDiscussing(t *testing.T) {
	o, _, _ := loaded(t, "text")
	if err := o.EnterDiscussion(context.Background()); err != nil {
		t.Fatalf("EnterDiscussion: %v", err)
	}
	src := player.Source{Text: "other", Body: io.NopCloser(strings.NewReader(""))}
	if err := o.Load(context.Background(), src, true); !errors.Is(err, ErrFocusHeld) {
		t.Fatalf("Load = %v, want ErrFocusHeld", err)
	}
}

func TestInstructionsCarryHeardText(t *testing.T) {
	text := strings.Repeat("x", 3000) + "HERE" + strings.Repeat("y", 1000)
	o, p, s := loaded(t, text)
	p.mu.Lock()
	p.st.CurrentTime = 3000.0 / 4004.0 * p.st.Duration
	p.mu.Unlock()

	if err := o.EnterDiscussion(context.Background()); err != nil {
		t.Fatalf("EnterDiscussion: %v", err)
	}
	s.mu.Lock()
	got := s.lastOpt.Instructions
	s.mu.Unlock()
	if !strings.HasPrefix(got, DefaultPreamble) {
		t.Fatalf("instructions missing preamble: %.60q", got)
	}
	heard := strings.TrimPrefix(got, DefaultPreamble+"\n\n")
	if n := len([]rune(heard)); n != 1200 {
		t.Fatalf("heard window is %d runes, want 1200", n)
	}
	if !strings.Contains(heard, "HERE") {
		t.Fatal("heard window misses the pause point")
	}
}

func TestSkipDirection(t *testing.T) {
	o, p, _ := loaded(t, "text")
	o.Skip(30 * time.Second)
	if p.State().CurrentTime != 30 {
		t.Fatalf("after forward skip: %v", p.State().CurrentTime)
	}
	o.Skip(-10 * time.Second)
	if p.State().CurrentTime != 20 {
		t.Fatalf("after back skip: %v", p.State().CurrentTime)
	}
}
