package player

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/685Degrees/echo-reader/internal/audio"
)

// 8 kHz mono s16le: 16000 bytes per second.
const (
	testMIME = "audio/pcm;rate=8000;channels=1"
	bps      = 16000
)

type fakeStream struct {
	mu       sync.Mutex
	r        io.Reader
	start    int64
	playing  bool
	finished bool
	closed   bool
}

func (s *fakeStream) Play() {
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
}

func (s *fakeStream) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && !s.finished && !s.closed
}

func (s *fakeStream) Queued() int { return 0 }

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// consume plays n bytes of audio.
func (s *fakeStream) consume(t *testing.T, n int) {
	t.Helper()
	if _, err := io.ReadFull(s.r, make([]byte, n)); err != nil {
		t.Fatalf("consume %d: %v", n, err)
	}
}

// drain plays everything that is left.
func (s *fakeStream) drain() {
	io.Copy(io.Discard, s.r)
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
}

type fakeOutput struct {
	mu      sync.Mutex
	streams []*fakeStream
}

func (o *fakeOutput) NewStream(f audio.Format, r io.Reader) (audio.Stream, error) {
	s := &fakeStream{r: r}
	if ar, ok := r.(*audio.Reader); ok {
		s.start = ar.Offset()
	}
	o.mu.Lock()
	o.streams = append(o.streams, s)
	o.mu.Unlock()
	return s, nil
}

func (o *fakeOutput) last(t *testing.T) *fakeStream {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.streams) == 0 {
		t.Fatal("no output stream opened")
	}
	return o.streams[len(o.streams)-1]
}

func (o *fakeOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.streams)
}

func newTestPlayer() (*Player, *fakeOutput) {
	out := &fakeOutput{}
	p := New(Options{
		Output:       out,
		PrimeSeconds: 0.25,
		ChunkSize:    4096,
		TickInterval: 5 * time.Millisecond,
	})
	return p, out
}

func blob(seconds float64) Source {
	return Source{
		Text:     "one two three",
		MIMEType: testMIME,
		Body:     io.NopCloser(bytes.NewReader(make([]byte, int(seconds*bps)))),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestPlayBeforePrepare(t *testing.T) {
	p, _ := newTestPlayer()
	if err := p.Play(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Play = %v, want ErrNotReady", err)
	}
}

func TestEstimateDuration(t *testing.T) {
	got := EstimateDuration("The quick brown fox jumps.")
	if math.Abs(got-5.0/3.0) > 1e-9 {
		t.Fatalf("EstimateDuration = %v, want 5/3", got)
	}
}

func TestStreamBufferingReachesHundredOnlyOnClose(t *testing.T) {
	p, _ := newTestPlayer()
	defer p.Teardown()

	pr, pw := io.Pipe()
	more := make(chan struct{})
	finish := make(chan struct{})
	go func() {
		pw.Write(make([]byte, 8000))
		<-more
		pw.Write(make([]byte, 30000))
		<-finish
		pw.Close()
	}()

	err := p.PrepareFromStream(context.Background(), Source{
		Text:     "The quick brown fox jumps.",
		MIMEType: testMIME,
		Body:     pr,
	})
	if err != nil {
		t.Fatalf("PrepareFromStream: %v", err)
	}

	st := p.State()
	if st.Status != Ready {
		t.Fatalf("status = %s, want ready", st.Status)
	}
	if math.Abs(st.EstimatedDuration-5.0/3.0) > 1e-9 {
		t.Fatalf("estimated = %v", st.EstimatedDuration)
	}
	if st.Duration != 0 {
		t.Fatalf("duration known before close: %v", st.Duration)
	}
	// 8000 of an expected 5/3 s * 16000 B/s
	waitFor(t, "first chunk counted", func() bool { return p.State().Buffering > 0 })
	if b := p.State().Buffering; b >= 100 {
		t.Fatalf("buffering = %v after first chunk", b)
	}

	close(more)
	waitFor(t, "buffering capped at 99", func() bool { return near(p.State().Buffering, 99) })
	if p.State().Duration != 0 {
		t.Fatal("duration known before the stream closed")
	}

	close(finish)
	waitFor(t, "buffering 100", func() bool { return p.State().Buffering == 100 })
	st = p.State()
	if !near(st.Duration, 38000.0/bps) {
		t.Fatalf("duration = %v, want %v", st.Duration, 38000.0/bps)
	}
	if st.DisplayDuration() != st.Duration {
		t.Fatal("display duration still uses the estimate")
	}
}

func TestSeekBeyondBufferedIsRejected(t *testing.T) {
	p, _ := newTestPlayer()
	defer p.Teardown()

	pr, pw := io.Pipe()
	go pw.Write(make([]byte, 8000)) // 0.5 s of a ~1.67 s estimate
	defer pw.Close()

	err := p.PrepareFromStream(context.Background(), Source{
		Text:     "The quick brown fox jumps.",
		MIMEType: testMIME,
		Body:     pr,
	})
	if err != nil {
		t.Fatalf("PrepareFromStream: %v", err)
	}
	waitFor(t, "first chunk decoded", func() bool { return p.State().Buffering > 0 })

	before := p.State().CurrentTime
	if err := p.Seek(90); !errors.Is(err, ErrNotBuffered) {
		t.Fatalf("Seek(90) = %v, want ErrNotBuffered", err)
	}
	if got := p.State().CurrentTime; got != before {
		t.Fatalf("current time moved from %v to %v", before, got)
	}

	if err := p.Seek(15); err != nil {
		t.Fatalf("Seek(15) inside buffered range: %v", err)
	}
	if got := p.State().CurrentTime; !near(got, 0.25) {
		t.Fatalf("current time = %v, want 0.25", got)
	}
}

func TestTeardownRejectsTransport(t *testing.T) {
	p, _ := newTestPlayer()
	if err := p.PrepareFromBlob(context.Background(), blob(1)); err != nil {
		t.Fatalf("PrepareFromBlob: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	p.Teardown()
	p.Teardown()

	ops := map[string]func() error{
		"Play":        p.Play,
		"Pause":       p.Pause,
		"Seek":        func() error { return p.Seek(10) },
		"SkipForward": func() error { return p.SkipForward(time.Second) },
		"SkipBack":    func() error { return p.SkipBack(time.Second) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrNotReady) {
			t.Errorf("%s after Teardown = %v, want ErrNotReady", name, err)
		}
	}
	if st := p.State(); st.Status != Idle || st.Resource != 0 {
		t.Fatalf("state after teardown = %+v", st)
	}
}

func TestPauseResumeKeepsPosition(t *testing.T) {
	p, out := newTestPlayer()
	defer p.Teardown()

	if err := p.PrepareFromBlob(context.Background(), blob(2)); err != nil {
		t.Fatalf("PrepareFromBlob: %v", err)
	}
	if st := p.State(); st.Buffering != 100 || !near(st.Duration, 2) {
		t.Fatalf("blob state = %+v", st)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	out.last(t).consume(t, bps) // one second audible

	if err := p.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := p.State().CurrentTime; !near(got, 1) {
		t.Fatalf("paused at %v, want 1", got)
	}
	if err := p.Pause(); err != nil {
		t.Fatalf("second Pause: %v", err)
	}

	if err := p.Play(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := out.last(t).start; got != bps {
		t.Fatalf("resumed at byte %d, want %d", got, bps)
	}
	if p.State().Status != Playing {
		t.Fatal("not playing after resume")
	}
}

func TestSeekWhilePlayingRestartsAtTarget(t *testing.T) {
	p, out := newTestPlayer()
	defer p.Teardown()

	if err := p.PrepareFromBlob(context.Background(), blob(4)); err != nil {
		t.Fatalf("PrepareFromBlob: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	first := out.last(t)

	if err := p.Seek(50); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if out.count() != 2 {
		t.Fatalf("streams = %d, want 2", out.count())
	}
	if !first.isClosed() {
		t.Fatal("old stream still open after seek")
	}
	if got := out.last(t).start; got != 2*bps {
		t.Fatalf("new stream starts at %d, want %d", got, 2*bps)
	}
	if st := p.State(); st.Status != Playing || !near(st.CurrentTime, 2) {
		t.Fatalf("state after seek = %+v", st)
	}
}

func TestSkipClampsToBounds(t *testing.T) {
	p, _ := newTestPlayer()
	defer p.Teardown()

	if err := p.PrepareFromBlob(context.Background(), blob(10)); err != nil {
		t.Fatalf("PrepareFromBlob: %v", err)
	}

	if err := p.SkipBack(30 * time.Second); err != nil {
		t.Fatalf("SkipBack at start: %v", err)
	}
	if got := p.State().CurrentTime; got != 0 {
		t.Fatalf("time = %v after skip back at start", got)
	}

	if err := p.SkipForward(4 * time.Second); err != nil {
		t.Fatalf("SkipForward: %v", err)
	}
	if got := p.State().CurrentTime; !near(got, 4) {
		t.Fatalf("time = %v, want 4", got)
	}

	if err := p.SkipForward(30 * time.Second); err != nil {
		t.Fatalf("SkipForward past end: %v", err)
	}
	if got := p.State().CurrentTime; !near(got, 10) {
		t.Fatalf("time = %v, want 10", got)
	}

	if err := p.SkipBack(3 * time.Second); err != nil {
		t.Fatalf("SkipBack: %v", err)
	}
	if got := p.State().CurrentTime; !near(got, 7) {
		t.Fatalf("time = %v, want 7", got)
	}
}

func TestPlaybackEnds(t *testing.T) {
	p, out := newTestPlayer()
	defer p.Teardown()

	events, cancel := p.Subscribe()
	defer cancel()

	if err := p.PrepareFromBlob(context.Background(), blob(0.5)); err != nil {
		t.Fatalf("PrepareFromBlob: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	out.last(t).drain()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind != EndedEvent {
				continue
			}
			st := p.State()
			if st.Status != Ended || !near(st.CurrentTime, 0.5) {
				t.Fatalf("state after end = %+v", st)
			}
			if err := p.Play(); !errors.Is(err, ErrNotReady) {
				t.Fatalf("Play after end = %v, want ErrNotReady", err)
			}
			return
		case <-timeout:
			t.Fatal("no ended event")
		}
	}
}

func TestStaleResourceEventsAreDropped(t *testing.T) {
	p, _ := newTestPlayer()
	defer p.Teardown()

	events, cancel := p.Subscribe()
	defer cancel()

	// first resource: a stream that never finishes on its own
	pr, pw := io.Pipe()
	go pw.Write(make([]byte, 8000))
	if err := p.PrepareFromStream(context.Background(), Source{Text: "a b c", MIMEType: testMIME, Body: pr}); err != nil {
		t.Fatalf("first prepare: %v", err)
	}
	firstID := p.State().Resource

	if err := p.PrepareFromBlob(context.Background(), blob(1)); err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	secondID := p.State().Resource
	if secondID == firstID {
		t.Fatal("resource id reused")
	}

	// the first stream's producer keeps writing into a torn-down resource
	go pw.Write(make([]byte, 8000))
	time.Sleep(30 * time.Millisecond)

	seenSecond := false
	for {
		select {
		case ev := <-events:
			if ev.Resource == secondID {
				seenSecond = true
			}
			if seenSecond && ev.Resource == firstID {
				t.Fatalf("event %s from released resource %d", ev.Kind, firstID)
			}
		default:
			if !seenSecond {
				t.Fatal("no events from the second resource")
			}
			return
		}
	}
}

func TestPrepareIsNotReentrant(t *testing.T) {
	p, _ := newTestPlayer()
	defer p.Teardown()

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- p.PrepareFromStream(ctx, Source{Text: "a b", MIMEType: testMIME, Body: pr})
	}()
	waitFor(t, "first prepare in flight", func() bool { return p.State().Status == Preparing })

	err := p.PrepareFromBlob(context.Background(), blob(1))
	if !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("second prepare = %v, want ErrAlreadyInProgress", err)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("first prepare = %v, want context.Canceled", err)
	}
	if p.State().Status != Idle {
		t.Fatalf("status = %s after abandoned prepare", p.State().Status)
	}
}

func TestUnsupportedFormatFails(t *testing.T) {
	p, _ := newTestPlayer()
	err := p.PrepareFromStream(context.Background(), Source{
		Text:     "hi",
		MIMEType: "video/mp4",
		Body:     io.NopCloser(bytes.NewReader(nil)),
	})
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Fatalf("prepare = %v, want ErrUnsupportedFormat", err)
	}
	if st := p.State(); st.Status != Failed || st.Error == "" {
		t.Fatalf("state = %+v", st)
	}
	if err := p.Play(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Play = %v, want ErrNotReady", err)
	}
}

func TestDecodeErrorFailsPlayer(t *testing.T) {
	p, _ := newTestPlayer()
	err := p.PrepareFromBlob(context.Background(), Source{
		Text:     "hi",
		MIMEType: "audio/wav",
		Body:     io.NopCloser(bytes.NewReader([]byte("this is not a riff header"))),
	})
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("prepare = %v, want ErrDecode", err)
	}
	if p.State().Status != Failed {
		t.Fatalf("status = %s, want failed", p.State().Status)
	}
}

func TestLongResourceSpillsOutOfMemory(t *testing.T) {
	out := &fakeOutput{}
	p := New(Options{
		Output:       out,
		PrimeSeconds: 0.25,
		ChunkSize:    4096,
		TickInterval: 5 * time.Millisecond,
		BufferMemory: bps, // one second
		SpillDir:     t.TempDir(),
	})
	defer p.Teardown()

	if err := p.PrepareFromBlob(context.Background(), blob(10)); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	p.mu.Lock()
	buf := p.res.buf
	p.mu.Unlock()
	if !buf.Spilled() || buf.Resident() > bps {
		t.Fatalf("spilled=%v resident=%d", buf.Spilled(), buf.Resident())
	}
	if st := p.State(); !near(st.Duration, 10) {
		t.Fatalf("duration = %v", st.Duration)
	}

	if err := p.Seek(50); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	s := out.last(t)
	if s.start != 5*bps {
		t.Fatalf("stream opened at byte %d, want %d", s.start, 5*bps)
	}
	s.consume(t, bps)
	if got := p.State().CurrentTime; !near(got, 6) {
		t.Fatalf("position = %v, want 6", got)
	}
}

func TestResourceOverCapFails(t *testing.T) {
	out := &fakeOutput{}
	p := New(Options{
		Output:         out,
		PrimeSeconds:   0.25,
		ChunkSize:      4096,
		TickInterval:   5 * time.Millisecond,
		MaxBufferBytes: 2 * bps,
		SpillDir:       t.TempDir(),
	})

	err := p.PrepareFromBlob(context.Background(), blob(3))
	if !errors.Is(err, audio.ErrTooLong) {
		t.Fatalf("prepare = %v, want ErrTooLong", err)
	}
	st := p.State()
	if st.Status != Failed || st.Error == "" {
		t.Fatalf("state = %+v", st)
	}
}
