package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

type SinkState int

const (
	SinkIdle SinkState = iota
	SinkOpen
	SinkComplete
	SinkFailed
	SinkAborted
)

func (s SinkState) String() string {
	switch s {
	case SinkIdle:
		return "idle"
	case SinkOpen:
		return "open"
	case SinkComplete:
		return "complete"
	case SinkFailed:
		return "failed"
	case SinkAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Sink feeds chunks of an encoded stream to a decoder as they arrive.
//
// Append hands each chunk to the decoder through a pipe and returns only once
// the decoder has read all of it, so a slow decoder pushes back on the
// producer. Appends and Close are serialized: chunks reach the decoder in call
// order.
type Sink struct {
	codecs Codecs
	buf    *Buffer

	ingested atomic.Int64

	// serializes Append and Close
	appendMu sync.Mutex

	mu     sync.Mutex
	state  SinkState
	pw     *io.PipeWriter
	done   chan struct{}
	decErr error
}

// NewSink returns a sink that decodes into buf.
func NewSink(codecs Codecs, buf *Buffer) *Sink {
	if codecs == nil {
		codecs = DefaultCodecs()
	}
	return &Sink{codecs: codecs, buf: buf}
}

// Open selects a decoder for mimeType and starts it.
func (s *Sink) Open(mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SinkIdle {
		return fmt.Errorf("open sink: already %s", s.state)
	}
	dec, err := s.codecs.Lookup(mimeType)
	if err != nil {
		return err
	}
	pr, pw := io.Pipe()
	s.pw = pw
	s.done = make(chan struct{})
	s.state = SinkOpen
	go s.decode(dec, pr)
	return nil
}

func (s *Sink) decode(dec Decoder, pr *io.PipeReader) {
	err := dec.Decode(pr, s.buf)

	s.mu.Lock()
	if err != nil && s.state == SinkOpen {
		s.state = SinkFailed
		s.decErr = err
	}
	s.mu.Unlock()

	if err != nil {
		pr.CloseWithError(err)
		s.buf.Finish(fmt.Errorf("%w: %w", ErrDecode, err))
	} else {
		pr.Close()
		s.buf.Finish(nil)
	}
	close(s.done)
}

// Append queues chunk for the decoder and blocks until it has been consumed.
func (s *Sink) Append(ctx context.Context, chunk []byte) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	s.mu.Lock()
	state, pw := s.state, s.pw
	s.mu.Unlock()
	if err := s.stateErr(state); err != nil {
		return err
	}
	if len(chunk) == 0 {
		return nil
	}

	errc := make(chan error, 1)
	go func() {
		_, err := pw.Write(chunk)
		errc <- err
	}()

	select {
	case err := <-errc:
		if err != nil {
			return s.writeErr()
		}
		s.ingested.Add(int64(len(chunk)))
		return nil
	case <-ctx.Done():
		s.Abort()
		<-errc
		return ctx.Err()
	}
}

// Close signals the end of input and waits until the decoder has consumed it.
func (s *Sink) Close(ctx context.Context) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	s.mu.Lock()
	state, pw, done := s.state, s.pw, s.done
	s.mu.Unlock()
	if err := s.stateErr(state); err != nil {
		return err
	}

	pw.Close()
	select {
	case <-done:
	case <-ctx.Done():
		s.Abort()
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SinkFailed {
		return fmt.Errorf("%w: %w", ErrDecode, s.decErr)
	}
	if s.state == SinkOpen {
		s.state = SinkComplete
	}
	return nil
}

// Abort stops the decoder without waiting for queued data. Pending and later
// appends fail with ErrSinkClosed.
func (s *Sink) Abort() {
	s.mu.Lock()
	pw := s.pw
	if s.state == SinkOpen || s.state == SinkIdle {
		s.state = SinkAborted
	}
	s.mu.Unlock()
	if pw != nil {
		pw.CloseWithError(ErrSinkClosed)
	}
}

func (s *Sink) stateErr(state SinkState) error {
	switch state {
	case SinkOpen:
		return nil
	case SinkIdle:
		return fmt.Errorf("%w: not open", ErrSinkClosed)
	case SinkFailed:
		s.mu.Lock()
		err := s.decErr
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDecode, err)
	default:
		return ErrSinkClosed
	}
}

func (s *Sink) writeErr() error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == SinkFailed {
		return s.stateErr(state)
	}
	return ErrSinkClosed
}

// Ingested is the number of bytes accepted so far.
func (s *Sink) Ingested() int64 { return s.ingested.Load() }

func (s *Sink) State() SinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Buffer is the PCM store the decoder writes into.
func (s *Sink) Buffer() *Buffer { return s.buf }
