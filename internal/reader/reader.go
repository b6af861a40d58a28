// Package reader opens library books for listening: cached audio is loaded
// whole, anything else is synthesized and streamed while it fills the cache.
package reader

import (
	"context"
	"fmt"
	"log"
	"mime"
	"sync"

	"github.com/685Degrees/echo-reader/internal/player"
	"github.com/685Degrees/echo-reader/internal/storage"
	"github.com/685Degrees/echo-reader/internal/synth"
)

// Loader hands a prepared source to playback. The orchestrator is the only
// production implementation.
type Loader interface {
	Load(ctx context.Context, src player.Source, whole bool) error
	Unload()
}

type Reader struct {
	db     *storage.DB
	speech synth.Synthesizer
	loader Loader

	mu      sync.Mutex
	cancel  context.CancelFunc
	current *storage.Book
}

func New(db *storage.DB, speech synth.Synthesizer, loader Loader) *Reader {
	return &Reader{db: db, speech: speech, loader: loader}
}

// Open loads book id into the player. ctx bounds preparation only; a
// synthesized stream keeps running until the next Open or Close.
func (r *Reader) Open(ctx context.Context, id string) (storage.Book, error) {
	b, err := r.db.GetBook(id)
	if err != nil {
		return storage.Book{}, err
	}

	if b.AudioPath != "" {
		f, err := r.db.OpenAudio(id)
		if err == nil {
			src := player.Source{Text: b.Text, MIMEType: "audio/mpeg", Body: f}
			if err := r.loader.Load(ctx, src, true); err != nil {
				return storage.Book{}, err
			}
			log.Printf("READER [%s]: loaded cached audio", id)
			r.swap(&b, nil)
			return b, nil
		}
		log.Printf("READER [%s]: cache unusable, synthesizing: %v", id, err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	stream, err := r.speech.Synthesize(streamCtx, b.Text)
	if !stop() {
		cancel()
		if err == nil {
			stream.Body.Close()
		}
		return storage.Book{}, ctx.Err()
	}
	if err != nil {
		cancel()
		return storage.Book{}, fmt.Errorf("synthesize book: %w", err)
	}

	body := stream.Body
	if mt, _, _ := mime.ParseMediaType(stream.MIMEType); mt == "audio/mpeg" {
		if w, err := r.db.CreateAudio(id); err != nil {
			log.Printf("READER [%s]: no cache: %v", id, err)
		} else {
			body = w.Tee(body, player.EstimateDuration(b.Text))
		}
	}

	src := player.Source{Text: b.Text, MIMEType: stream.MIMEType, Body: body}
	if err := r.loader.Load(ctx, src, false); err != nil {
		cancel()
		return storage.Book{}, err
	}
	log.Printf("READER [%s]: streaming %q", id, b.Title)
	r.swap(&b, cancel)
	return b, nil
}

func (r *Reader) swap(b *storage.Book, cancel context.CancelFunc) {
	r.mu.Lock()
	prev := r.cancel
	r.cancel = cancel
	r.current = b
	r.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Current is the book last opened, if any.
func (r *Reader) Current() (storage.Book, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return storage.Book{}, false
	}
	return *r.current, true
}

// Close unloads the player and stops any synthesis in flight.
func (r *Reader) Close() {
	r.loader.Unload()
	r.swap(nil, nil)
}

// Forget drops id as current book, used when it is deleted.
func (r *Reader) Forget(id string) {
	r.mu.Lock()
	isCurrent := r.current != nil && r.current.ID == id
	r.mu.Unlock()
	if isCurrent {
		r.Close()
	}
}
