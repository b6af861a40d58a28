package routes

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/685Degrees/echo-reader/internal/storage"
	"github.com/685Degrees/echo-reader/internal/viewer/render"
)

// openTimeout bounds how long opening a book may take to become playable.
const openTimeout = 60 * time.Second

func registerBookRoutes(mux *http.ServeMux, d Deps) {
	if d.DB == nil {
		return
	}

	// GET /api/books: metadata index; POST /api/books: add a book
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			books, err := d.DB.ListBooks()
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, books)

		case http.MethodPost:
			if !requireLocal(w, r) {
				return
			}
			var req struct {
				Title string `json:"title"`
				Text  string `json:"text"`
			}
			if decodeJSON(w, r, &req) != nil {
				return
			}
			if strings.TrimSpace(req.Text) == "" {
				writeError(w, http.StatusBadRequest, "text is required")
				return
			}
			text, err := d.Normalizer.Normalize(r.Context(), req.Text)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "normalize: "+err.Error())
				return
			}
			b, err := d.DB.SaveBook(req.Title, text, "upload")
			if err != nil {
				writeDomainError(w, err)
				return
			}
			log.Printf("VIEWER: saved book %s %q", b.ID, b.Title)
			w.Header().Set("Location", "/api/books/"+b.ID)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, b)

		default:
			w.Header().Set("Allow", "GET, POST")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})

	// /api/books/{id}[/audio|/html|/open]
	mux.HandleFunc("/api/books/", func(w http.ResponseWriter, r *http.Request) {
		id, action := pathID(r.URL.Path, "/api/books/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "missing book id")
			return
		}

		switch action {
		case "":
			switch r.Method {
			case http.MethodGet:
				b, err := d.DB.GetBook(id)
				if err != nil {
					writeDomainError(w, err)
					return
				}
				writeJSON(w, b)
			case http.MethodDelete:
				if !requireLocal(w, r) {
					return
				}
				if d.Reader != nil {
					d.Reader.Forget(id)
				}
				if err := d.DB.DeleteBook(id); err != nil {
					writeDomainError(w, err)
					return
				}
				writeJSON(w, map[string]string{"status": "deleted"})
			default:
				w.Header().Set("Allow", "GET, DELETE")
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			}

		case "audio":
			if !requireMethod(w, r, http.MethodGet) {
				return
			}
			f, err := d.DB.OpenAudio(id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "audio/mpeg")
			http.ServeContent(w, r, id+".mp3", info.ModTime(), f)

		case "html":
			if !requireMethod(w, r, http.MethodGet) {
				return
			}
			b, err := d.DB.GetBook(id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			body, err := render.Markdown(b.Text)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := render.Book(w, render.BookVM{ID: b.ID, Title: b.Title, AudioURL: b.AudioURL, Body: body}); err != nil {
				log.Printf("VIEWER: render book %s: %v", id, err)
			}

		case "open":
			if !requireMethod(w, r, http.MethodPost) {
				return
			}
			if !requireLocal(w, r) {
				return
			}
			if d.Reader == nil {
				writeError(w, http.StatusServiceUnavailable, "playback is not available")
				return
			}
			// the stream must outlive a client that disconnects early
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), openTimeout)
			defer cancel()
			b, err := d.Reader.Open(ctx, id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			resp := map[string]any{"book": metaOf(b)}
			if d.Orch != nil {
				resp["player"] = d.Orch.State()
			}
			writeJSON(w, resp)

		default:
			writeError(w, http.StatusNotFound, "unknown book action: "+action)
		}
	})
}

// metaOf strips the text for responses that don't need it.
func metaOf(b storage.Book) storage.Book {
	b.Text = ""
	return b
}
