// Package player owns the one playable audio resource of the reader and
// mediates every transport operation on it.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/685Degrees/echo-reader/internal/audio"
	"github.com/685Degrees/echo-reader/internal/textproc"
)

// WordsPerSecond is the speaking rate used to estimate durations from text.
const WordsPerSecond = 3.0

// EstimateDuration estimates the spoken length of text in seconds.
func EstimateDuration(text string) float64 {
	return float64(textproc.CountWords(text)) / WordsPerSecond
}

// Source is one audio payload to prepare.
type Source struct {
	Text     string // the text the audio speaks, for duration estimates
	MIMEType string
	Body     io.ReadCloser
}

type Options struct {
	Output audio.Output
	Codecs audio.Codecs

	// DefaultBitrate (bits/s) sizes the expected stream when the stream does
	// not reveal its own bitrate.
	DefaultBitrate int
	// PrimeSeconds of decoded audio make a streamed resource Ready.
	PrimeSeconds float64
	ChunkSize    int
	TickInterval time.Duration

	// Decoded PCM past BufferMemory bytes moves to a temp file in SpillDir.
	// MaxBufferBytes caps a resource; longer audio fails with audio.ErrTooLong.
	BufferMemory   int64
	MaxBufferBytes int64
	SpillDir       string
}

func (o *Options) defaults() {
	if o.Codecs == nil {
		o.Codecs = audio.DefaultCodecs()
	}
	if o.DefaultBitrate <= 0 {
		o.DefaultBitrate = 128000
	}
	if o.PrimeSeconds <= 0 {
		o.PrimeSeconds = 0.5
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 32 * 1024
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 250 * time.Millisecond
	}
}

// Player is the streaming audio player. All methods are safe for concurrent
// use; state changes are pushed to subscribers.
type Player struct {
	opt Options

	preparing atomic.Bool

	mu        sync.Mutex
	res       *resource
	nextID    uint64
	status    Status
	current   float64
	duration  float64
	estimated float64
	buffering float64
	lastTick  float64
	err       error

	// live while Playing
	stream audio.Stream
	reader *audio.Reader

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// resource is one prepared audio payload. Identity (the pointer) guards every
// asynchronous update: work done for a resource that is no longer current is
// dropped.
type resource struct {
	id     uint64
	buf    *audio.Buffer
	sink   *audio.Sink
	body   io.Closer
	ctx    context.Context
	cancel context.CancelFunc

	primeOnce sync.Once
	primed    chan struct{}
}

func (r *resource) markPrimed() { r.primeOnce.Do(func() { close(r.primed) }) }

func New(opt Options) *Player {
	opt.defaults()
	return &Player{
		opt:  opt,
		subs: make(map[chan Event]struct{}),
	}
}

// ── Preparation ─────────────────────────────────────────────────────────────

// PrepareFromStream replaces the current resource with one fed incrementally
// from src.Body. It returns once enough audio is decoded to start playback,
// the stream ended, or preparation failed; the rest keeps streaming in the
// background.
func (p *Player) PrepareFromStream(ctx context.Context, src Source) error {
	if !p.preparing.CompareAndSwap(false, true) {
		src.Body.Close()
		return ErrAlreadyInProgress
	}
	defer p.preparing.Store(false)

	res, err := p.begin(src)
	if err != nil {
		return err
	}
	go p.pump(res, src.Body)
	return p.waitPrimed(ctx, res)
}

// PrepareFromBlob reads src.Body to the end before decoding it as a single
// buffer. Used for cached audio and short content.
func (p *Player) PrepareFromBlob(ctx context.Context, src Source) error {
	if !p.preparing.CompareAndSwap(false, true) {
		src.Body.Close()
		return ErrAlreadyInProgress
	}
	defer p.preparing.Store(false)

	res, err := p.begin(src)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { src.Body.Close() })
	data, err := io.ReadAll(src.Body)
	stop()
	src.Body.Close()
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		p.fail(res, fmt.Errorf("read blob: %w", err))
		return err
	}

	if err := res.sink.Append(res.ctx, data); err != nil {
		p.fail(res, err)
		return err
	}
	p.progress(res)
	if err := res.sink.Close(res.ctx); err != nil {
		p.fail(res, err)
		return err
	}
	p.complete(res)
	return p.waitPrimed(ctx, res)
}

// begin tears down the previous resource and installs a fresh one in
// Preparing.
func (p *Player) begin(src Source) (*resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.teardownLocked()

	p.nextID++
	buf := audio.NewBufferWith(audio.BufferOptions{
		MemoryLimit: p.opt.BufferMemory,
		MaxBytes:    p.opt.MaxBufferBytes,
		Dir:         p.opt.SpillDir,
	})
	ctx, cancel := context.WithCancel(context.Background())
	res := &resource{
		id:     p.nextID,
		buf:    buf,
		sink:   audio.NewSink(p.opt.Codecs, buf),
		body:   src.Body,
		ctx:    ctx,
		cancel: cancel,
		primed: make(chan struct{}),
	}
	p.res = res
	p.current = 0
	p.duration = 0
	p.buffering = 0
	p.lastTick = -1
	p.err = nil
	p.estimated = EstimateDuration(src.Text)
	p.setStatusLocked(Preparing)
	p.emitLocked(Event{Kind: BufferingUpdate, Percent: 0})

	if err := res.sink.Open(src.MIMEType); err != nil {
		src.Body.Close()
		p.failLocked(res, err)
		return nil, err
	}
	log.Printf("PLAYER [%d]: preparing %s (estimated %.1fs)", res.id, src.MIMEType, p.estimated)

	go p.clock(res)
	return res, nil
}

// pump copies the body into the sink chunk by chunk. Each Append blocks until
// the decoder took the chunk, which is the backpressure on the network read.
func (p *Player) pump(res *resource, body io.ReadCloser) {
	defer body.Close()

	chunk := make([]byte, p.opt.ChunkSize)
	for {
		n, rerr := body.Read(chunk)
		if n > 0 {
			if err := res.sink.Append(res.ctx, chunk[:n]); err != nil {
				p.fail(res, err)
				return
			}
			p.progress(res)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			p.fail(res, fmt.Errorf("read stream: %w", rerr))
			return
		}
	}
	if err := res.sink.Close(res.ctx); err != nil {
		p.fail(res, err)
		return
	}
	p.complete(res)
}

func (p *Player) waitPrimed(ctx context.Context, res *resource) error {
	select {
	case <-res.primed:
	case <-ctx.Done():
		p.mu.Lock()
		if p.res == res {
			p.teardownLocked()
		}
		p.mu.Unlock()
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.res != res {
		return fmt.Errorf("%w: resource released during prepare", ErrNotReady)
	}
	if p.status == Failed {
		return p.err
	}
	return nil
}

// progress updates the buffering estimate after a chunk was ingested.
func (p *Player) progress(res *resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.res != res {
		return
	}

	bitrate := res.buf.Bitrate()
	if bitrate <= 0 {
		bitrate = p.opt.DefaultBitrate
	}
	total := p.estimated * float64(bitrate) / 8
	pct := 0.0
	if total > 0 {
		pct = math.Min(float64(res.sink.Ingested())/total*100, 99)
	}
	if pct > p.buffering {
		p.buffering = pct
		p.emitLocked(Event{Kind: BufferingUpdate, Percent: pct})
	}
	p.refreshLocked(res)
}

// complete runs once the sink closed cleanly: everything is decoded.
func (p *Player) complete(res *resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.res != res {
		return
	}
	p.buffering = 100
	p.emitLocked(Event{Kind: BufferingUpdate, Percent: 100})
	p.refreshLocked(res)
	if p.status == Preparing {
		p.setStatusLocked(Ready)
	}
	res.markPrimed()
	log.Printf("PLAYER [%d]: fully buffered (%.1fs)", res.id, p.duration)
}

// refreshLocked publishes a newly known duration and promotes Preparing to
// Ready once enough audio is decoded.
func (p *Player) refreshLocked(res *resource) {
	if p.duration == 0 {
		if d, ok := res.buf.Duration(); ok && d > 0 {
			p.duration = d
			p.emitLocked(Event{Kind: DurationKnown, Seconds: d})
		}
	}
	if p.status == Preparing && res.buf.Buffered() >= p.opt.PrimeSeconds {
		p.setStatusLocked(Ready)
		res.markPrimed()
	}
}

func (p *Player) fail(res *resource, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.res != res {
		return
	}
	p.failLocked(res, err)
}

func (p *Player) failLocked(res *resource, err error) {
	log.Printf("PLAYER [%d]: failed: %v", res.id, err)
	p.stopStreamLocked()
	res.cancel()
	p.err = err
	p.setStatusLocked(Failed)
	res.markPrimed()
}

// ── Transport ───────────────────────────────────────────────────────────────

// Play starts or resumes playback at the current position.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.res == nil {
		return ErrNotReady
	}
	switch p.status {
	case Playing:
		return nil
	case Ready, Paused:
	default:
		return fmt.Errorf("%w: %s", ErrNotReady, p.status)
	}
	return p.startStreamLocked()
}

// Pause stops playback and keeps the exact position.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.res == nil {
		return ErrNotReady
	}
	if p.status != Playing {
		return nil
	}
	p.current = p.positionLocked()
	p.stopStreamLocked()
	p.setStatusLocked(Paused)
	p.emitLocked(Event{Kind: TimeUpdate, Seconds: p.current})
	return nil
}

// Seek moves to percent (0-100) of the duration, or of the estimate while
// the duration is unknown.
func (p *Player) Seek(percent float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.seekableLocked(); err != nil {
		return err
	}
	percent = math.Max(0, math.Min(percent, 100))
	return p.moveLocked(percent / 100 * p.displayDurationLocked())
}

// SkipForward moves ahead by d, stopping at the end of the decoded audio.
func (p *Player) SkipForward(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.seekableLocked(); err != nil {
		return err
	}
	cur := p.positionLocked()
	limit := p.displayDurationLocked()
	if !p.res.buf.Complete() {
		limit = math.Min(limit, p.res.buf.Buffered())
	}
	target := math.Min(cur+d.Seconds(), limit)
	if target <= cur {
		return nil
	}
	return p.moveLocked(target)
}

// SkipBack moves back by d, stopping at the start.
func (p *Player) SkipBack(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.seekableLocked(); err != nil {
		return err
	}
	cur := p.positionLocked()
	target := math.Max(cur-d.Seconds(), 0)
	if target >= cur {
		return nil
	}
	return p.moveLocked(target)
}

func (p *Player) seekableLocked() error {
	if p.res == nil {
		return ErrNotReady
	}
	switch p.status {
	case Ready, Playing, Paused:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrNotReady, p.status)
	}
}

// moveLocked jumps to target seconds. A running stream is paused, moved and
// resumed so playback never continues from a stale position.
func (p *Player) moveLocked(target float64) error {
	target = math.Max(0, math.Min(target, p.displayDurationLocked()))
	if !p.res.buf.Complete() && target > p.res.buf.Buffered() {
		return ErrNotBuffered
	}

	wasPlaying := p.status == Playing
	if wasPlaying {
		p.stopStreamLocked()
	}
	p.current = target
	p.emitLocked(Event{Kind: TimeUpdate, Seconds: target})
	if wasPlaying {
		if err := p.startStreamLocked(); err != nil {
			p.setStatusLocked(Paused)
			return err
		}
	}
	return nil
}

// Teardown releases the resource and returns to Idle. Safe to call in any
// state, repeatedly.
func (p *Player) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardownLocked()
}

func (p *Player) teardownLocked() {
	res := p.res
	if res == nil {
		return
	}
	p.stopStreamLocked()
	res.cancel()
	res.sink.Abort()
	res.body.Close()
	res.buf.Release()
	res.markPrimed()

	p.res = nil
	p.current = 0
	p.duration = 0
	p.estimated = 0
	p.buffering = 0
	p.err = nil
	p.setStatusLocked(Idle)
	log.Printf("PLAYER [%d]: released", res.id)
}

// ── Output stream ───────────────────────────────────────────────────────────

func (p *Player) startStreamLocked() error {
	if p.opt.Output == nil {
		return fmt.Errorf("%w: no audio output", ErrNotReady)
	}
	f, ok := p.res.buf.Format()
	if !ok {
		return fmt.Errorf("%w: format not decoded yet", ErrNotReady)
	}
	r := p.res.buf.NewReader(f.Offset(p.current))
	s, err := p.opt.Output.NewStream(f, r)
	if err != nil {
		r.Close()
		return fmt.Errorf("open output: %w", err)
	}
	p.reader = r
	p.stream = s
	s.Play()
	p.setStatusLocked(Playing)
	return nil
}

func (p *Player) stopStreamLocked() {
	if p.reader != nil {
		// the device may be blocked in Read; unblock it before closing
		p.reader.Close()
	}
	if p.stream != nil {
		if err := p.stream.Close(); err != nil {
			log.Printf("PLAYER: close output: %v", err)
		}
	}
	p.reader = nil
	p.stream = nil
}

// positionLocked is the audible position: bytes handed to the device minus
// the bytes it still holds.
func (p *Player) positionLocked() float64 {
	if p.status != Playing || p.reader == nil || p.stream == nil {
		return p.current
	}
	f, _ := p.res.buf.Format()
	start := f.Offset(p.current)
	pos := p.reader.Offset() - int64(p.stream.Queued())
	if pos < start {
		pos = start
	}
	return p.clampLocked(f.Seconds(pos))
}

func (p *Player) clampLocked(t float64) float64 {
	return math.Max(0, math.Min(t, math.Max(p.duration, p.estimated)))
}

func (p *Player) displayDurationLocked() float64 {
	if p.duration > 0 {
		return p.duration
	}
	return p.estimated
}

// clock emits time updates while playing and notices the end of playback.
func (p *Player) clock(res *resource) {
	t := time.NewTicker(p.opt.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-res.ctx.Done():
			return
		case <-t.C:
			p.tick(res)
		}
	}
}

func (p *Player) tick(res *resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.res != res {
		return
	}
	p.refreshLocked(res)
	if p.status != Playing {
		return
	}

	if res.buf.Complete() && p.reader.Offset() >= res.buf.Len() && !p.stream.Playing() {
		p.stopStreamLocked()
		p.current = p.displayDurationLocked()
		p.emitLocked(Event{Kind: TimeUpdate, Seconds: p.current})
		p.setStatusLocked(Ended)
		p.emitLocked(Event{Kind: EndedEvent})
		log.Printf("PLAYER [%d]: ended", res.id)
		return
	}

	pos := p.positionLocked()
	if pos != p.lastTick {
		p.lastTick = pos
		p.emitLocked(Event{Kind: TimeUpdate, Seconds: pos})
	}
}

// ── Observation ─────────────────────────────────────────────────────────────

// State returns a snapshot.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := State{
		Status:            p.status,
		CurrentTime:       p.positionLocked(),
		Duration:          p.duration,
		EstimatedDuration: p.estimated,
		Buffering:         p.buffering,
	}
	if p.res != nil {
		st.Resource = p.res.id
	}
	if p.err != nil {
		st.Error = p.err.Error()
	}
	return st
}

// Subscribe returns a channel of events and a cancel func. Slow subscribers
// miss events rather than block the player.
func (p *Player) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	p.subMu.Lock()
	p.subs[ch] = struct{}{}
	p.subMu.Unlock()

	cancel := func() {
		p.subMu.Lock()
		if _, ok := p.subs[ch]; ok {
			delete(p.subs, ch)
			close(ch)
		}
		p.subMu.Unlock()
	}
	return ch, cancel
}

func (p *Player) setStatusLocked(s Status) {
	if p.status == s {
		return
	}
	p.status = s
	p.emitLocked(Event{Kind: StatusChange})
}

// emitLocked stamps ev with the current resource and status. Callers hold
// p.mu, which orders all events.
func (p *Player) emitLocked(ev Event) {
	if p.res != nil {
		ev.Resource = p.res.id
	}
	ev.Status = p.status

	p.subMu.Lock()
	for ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	p.subMu.Unlock()
}
