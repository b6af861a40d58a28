package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/685Degrees/echo-reader/internal/textproc"
)

// Book is one stored text with its cached audio, if any.
type Book struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Text          string    `json:"text"`
	AudioURL      string    `json:"audioUrl,omitempty"`
	LengthSeconds float64   `json:"lengthSeconds"`
	CreatedAt     time.Time `json:"createdAt"`
	Source        string    `json:"source,omitempty"`

	AudioPath string `json:"-"`
}

// BookMeta is the listing entry; it never carries the text.
type BookMeta struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Words         int       `json:"words"`
	LengthSeconds float64   `json:"lengthSeconds"`
	HasAudio      bool      `json:"hasAudio"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AudioURL is where the viewer serves a book's cached audio.
func AudioURL(id string) string { return "/api/books/" + id + "/audio" }

const maxTitleRunes = 80

// TitleFrom derives a title from the first non-empty line of text.
func TitleFrom(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxTitleRunes {
			line = string([]rune(line)[:maxTitleRunes]) + "…"
		}
		return line
	}
	return "Untitled"
}

// SaveBook stores a new book and returns it. An empty title is derived from
// the text.
func (d *DB) SaveBook(title, text, source string) (Book, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Book{}, errors.New("save book: text is empty")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = TitleFrom(text)
	}
	b := Book{
		ID:        uuid.NewString(),
		Title:     title,
		Text:      text,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Source:    source,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO books (id, title, text, words, created_at, source)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, b.Text, textproc.CountWords(b.Text), b.CreatedAt.UnixMilli(), b.Source,
	)
	if err != nil {
		return Book{}, fmt.Errorf("save book: %w", err)
	}
	return b, nil
}

// GetBook loads a book including its text.
func (d *DB) GetBook(id string) (Book, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b Book
	var created int64
	err := d.db.QueryRow(`
		SELECT id, title, text, audio_path, length_seconds, created_at, COALESCE(source, '')
		FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.Title, &b.Text, &b.AudioPath, &b.LengthSeconds, &created, &b.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("get book: %w", err)
	}
	b.CreatedAt = time.UnixMilli(created).UTC()
	if b.AudioPath != "" {
		b.AudioURL = AudioURL(b.ID)
	}
	return b, nil
}

// ListBooks returns the metadata index, newest first.
func (d *DB) ListBooks() ([]BookMeta, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, title, words, length_seconds, audio_path != '', created_at
		FROM books ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []BookMeta{}
	for rows.Next() {
		var m BookMeta
		var created int64
		if err := rows.Scan(&m.ID, &m.Title, &m.Words, &m.LengthSeconds, &m.HasAudio, &created); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created).UTC()
		books = append(books, m)
	}
	return books, rows.Err()
}

// DeleteBook removes a book and its cached audio.
func (d *DB) DeleteBook(id string) error {
	d.mu.Lock()
	res, err := d.db.Exec(`DELETE FROM books WHERE id = ?`, id)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	d.removeAudio(id)
	return nil
}

// SetAudio records the cached audio file and its length for a book.
func (d *DB) SetAudio(id, path string, seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.db.Exec(`UPDATE books SET audio_path = ?, length_seconds = ? WHERE id = ?`, path, seconds, id)
	if err != nil {
		return fmt.Errorf("set audio: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
