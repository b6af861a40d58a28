// Package inbox imports text files dropped into a watched directory as books.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/685Degrees/echo-reader/internal/storage"
	"github.com/685Degrees/echo-reader/internal/textproc"
)

// ImportedDir holds files that were imported, below the inbox.
const ImportedDir = "imported"

// maxFileSize guards against importing something that isn't a book.
const maxFileSize = 8 << 20

// Store saves imported books.
type Store interface {
	SaveBook(title, text, source string) (storage.Book, error)
}

// Inbox watches a directory for .txt and .md files.
type Inbox struct {
	dir      string
	store    Store
	norm     textproc.Normalizer
	settle   time.Duration
	onImport func(storage.Book)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

type Options struct {
	// Settle is how long a file must stay unchanged before it is imported.
	Settle   time.Duration
	OnImport func(storage.Book)
}

func New(dir string, store Store, norm textproc.Normalizer, opt Options) (*Inbox, error) {
	if err := os.MkdirAll(filepath.Join(dir, ImportedDir), 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}
	if norm == nil {
		norm = textproc.BasicNormalizer
	}
	if opt.Settle <= 0 {
		opt.Settle = 500 * time.Millisecond
	}
	return &Inbox{
		dir:      dir,
		store:    store,
		norm:     norm,
		settle:   opt.Settle,
		onImport: opt.OnImport,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Dir is the watched directory.
func (in *Inbox) Dir() string { return in.dir }

func accepted(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// Run imports files already waiting, then watches until ctx is done.
func (in *Inbox) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}

	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && accepted(e.Name()) {
			in.schedule(ctx, filepath.Join(in.dir, e.Name()))
		}
	}

	log.Printf("INBOX: watching %s", in.dir)
	defer in.stopPending()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !accepted(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				in.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("INBOX: watcher error: %v", err)
		}
	}
}

// schedule (re)starts the settle timer for path; writers emit many events.
func (in *Inbox) schedule(ctx context.Context, path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Reset(in.settle)
		return
	}
	in.pending[path] = time.AfterFunc(in.settle, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if _, err := in.Import(ctx, path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("INBOX: import %s: %v", filepath.Base(path), err)
		}
	})
}

func (in *Inbox) stopPending() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for p, t := range in.pending {
		t.Stop()
		delete(in.pending, p)
	}
}

// Import reads, normalizes and saves one file, then moves it to the
// imported directory.
func (in *Inbox) Import(ctx context.Context, path string) (storage.Book, error) {
	info, err := os.Stat(path)
	if err != nil {
		return storage.Book{}, err
	}
	if info.Size() > maxFileSize {
		return storage.Book{}, fmt.Errorf("file is %d bytes, limit %d", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return storage.Book{}, fmt.Errorf("read file: %w", err)
	}
	text, err := in.norm.Normalize(ctx, string(data))
	if err != nil {
		return storage.Book{}, fmt.Errorf("normalize: %w", err)
	}

	name := filepath.Base(path)
	title := strings.TrimSuffix(name, filepath.Ext(name))
	if strings.EqualFold(filepath.Ext(name), ".md") || strings.EqualFold(filepath.Ext(name), ".markdown") {
		// markdown brings its own heading
		title = ""
	}
	b, err := in.store.SaveBook(title, text, "inbox:"+name)
	if err != nil {
		return storage.Book{}, err
	}

	dst := filepath.Join(in.dir, ImportedDir, name)
	if _, err := os.Stat(dst); err == nil {
		dst = filepath.Join(in.dir, ImportedDir, b.ID+"-"+name)
	}
	if err := os.Rename(path, dst); err != nil {
		log.Printf("INBOX: move %s: %v", name, err)
	}
	log.Printf("INBOX [%s]: imported %q from %s", b.ID, b.Title, name)
	if in.onImport != nil {
		in.onImport(b)
	}
	return b, nil
}
