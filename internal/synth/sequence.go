package synth

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"time"

	"golang.org/x/time/rate"

	"github.com/685Degrees/echo-reader/internal/textproc"
)

// Sequence synthesizes long text in chunks and joins the responses into one
// stream. Chunks are requested one after another, paced by a limiter; the
// next request starts only when the previous body has been read.
type Sequence struct {
	synth   Synthesizer
	limiter *rate.Limiter
}

// NewSequence paces chunk requests to at most perMinute; zero means
// unpaced.
func NewSequence(s Synthesizer, perMinute int) *Sequence {
	lim := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return &Sequence{synth: s, limiter: lim}
}

// joinable reports whether back-to-back payloads of mt still decode as one
// stream. MP3 frames and headerless PCM concatenate; WAV does not.
func joinable(mimeType string) bool {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	switch mt {
	case "audio/mpeg", "audio/mp3", "audio/pcm":
		return true
	}
	return false
}

// Synthesize requests the first chunk synchronously, so errors such as rate
// limiting surface to the caller, then streams the rest in the background.
func (q *Sequence) Synthesize(ctx context.Context, text string) (*Stream, error) {
	chunks := textproc.Chunk(text)
	if len(chunks) <= 1 {
		if err := q.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return q.synth.Synthesize(ctx, text)
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := q.limiter.Wait(ctx); err != nil {
		cancel()
		return nil, err
	}
	first, err := q.synth.Synthesize(ctx, chunks[0])
	if err != nil {
		cancel()
		return nil, err
	}
	if !joinable(first.MIMEType) {
		first.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: cannot join %s chunks", ErrSynthesisUnavailable, first.MIMEType)
	}

	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		pw.CloseWithError(q.run(ctx, first, chunks[1:], pw))
	}()
	log.Printf("SYNTH: %d chunks", len(chunks))
	return &Stream{Body: &cancelReader{PipeReader: pr, cancel: cancel}, MIMEType: first.MIMEType}, nil
}

func (q *Sequence) run(ctx context.Context, first *Stream, rest []string, w io.Writer) error {
	_, err := io.Copy(w, first.Body)
	first.Body.Close()
	if err != nil {
		return err
	}
	for i, chunk := range rest {
		if err := q.limiter.Wait(ctx); err != nil {
			return err
		}
		s, err := q.synth.Synthesize(ctx, chunk)
		if err != nil {
			return fmt.Errorf("synthesize chunk %d: %w", i+2, err)
		}
		if s.MIMEType != first.MIMEType {
			s.Body.Close()
			return fmt.Errorf("%w: chunk %d is %s, want %s", ErrSynthesisUnavailable, i+2, s.MIMEType, first.MIMEType)
		}
		_, err = io.Copy(w, s.Body)
		s.Body.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// cancelReader stops the producer when the consumer goes away.
type cancelReader struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (r *cancelReader) Close() error {
	r.cancel()
	return r.PipeReader.Close()
}
