package storage

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/685Degrees/echo-reader/internal/audio"
)

// AudioPath is the cache file for a book's synthesized speech.
func (d *DB) AudioPath(id string) string {
	return filepath.Join(d.audioDir, id+".mp3")
}

// OpenAudio opens a book's cached audio. It fails with ErrNotFound when the
// book has no complete cache entry.
func (d *DB) OpenAudio(id string) (*os.File, error) {
	b, err := d.GetBook(id)
	if err != nil {
		return nil, err
	}
	if b.AudioPath == "" {
		return nil, ErrNotFound
	}
	f, err := os.Open(b.AudioPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	return f, nil
}

func (d *DB) removeAudio(id string) {
	for _, p := range []string{d.AudioPath(id), d.AudioPath(id) + ".part"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("STORAGE: remove %s: %v", p, err)
		}
	}
}

// AudioWriter fills a book's cache entry. Nothing is recorded until Commit;
// Abort drops the partial file.
type AudioWriter struct {
	d    *DB
	id   string
	f    *os.File
	once sync.Once
	err  error
}

// CreateAudio starts a cache entry for the book.
func (d *DB) CreateAudio(id string) (*AudioWriter, error) {
	f, err := os.Create(d.AudioPath(id) + ".part")
	if err != nil {
		return nil, fmt.Errorf("create audio: %w", err)
	}
	return &AudioWriter{d: d, id: id, f: f}, nil
}

func (w *AudioWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Commit finalizes the cache entry and records its length. The length comes
// from the MP3 frame headers, or fallback seconds when they can't be read.
func (w *AudioWriter) Commit(fallback float64) error {
	w.once.Do(func() { w.err = w.commit(fallback) })
	return w.err
}

func (w *AudioWriter) commit(fallback float64) error {
	part := w.f.Name()
	if err := w.f.Close(); err != nil {
		os.Remove(part)
		return fmt.Errorf("close audio: %w", err)
	}
	data, err := os.ReadFile(part)
	if err != nil {
		os.Remove(part)
		return fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		os.Remove(part)
		return errors.New("commit audio: empty")
	}
	seconds, ok := audio.EstimateMPEGDuration(data)
	if !ok {
		seconds = fallback
	}
	final := w.d.AudioPath(w.id)
	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		return fmt.Errorf("rename audio: %w", err)
	}
	if err := w.d.SetAudio(w.id, final, seconds); err != nil {
		os.Remove(final)
		return err
	}
	log.Printf("STORAGE [%s]: cached %d bytes (%.1fs)", w.id, len(data), seconds)
	return nil
}

// Abort discards the partial entry.
func (w *AudioWriter) Abort() {
	w.once.Do(func() {
		w.f.Close()
		os.Remove(w.f.Name())
		w.err = errors.New("audio cache aborted")
	})
}

// Tee copies everything read from r into the cache entry. Commit runs when
// r reaches EOF, Abort on any other error or an early Close.
func (w *AudioWriter) Tee(r io.ReadCloser, fallback float64) io.ReadCloser {
	return &teeReader{r: r, w: w, fallback: fallback}
}

type teeReader struct {
	r        io.ReadCloser
	w        *AudioWriter
	fallback float64
	failed   bool
}

func (t *teeReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 && !t.failed {
		if _, werr := t.w.Write(p[:n]); werr != nil {
			log.Printf("STORAGE [%s]: cache write: %v", t.w.id, werr)
			t.failed = true
			t.w.Abort()
		}
	}
	switch {
	case err == io.EOF && !t.failed:
		if cerr := t.w.Commit(t.fallback); cerr != nil {
			log.Printf("STORAGE [%s]: cache commit: %v", t.w.id, cerr)
		}
	case err != nil && err != io.EOF:
		t.w.Abort()
	}
	return n, err
}

func (t *teeReader) Close() error {
	t.w.Abort()
	return t.r.Close()
}
