// internal/viewer/routes/helpers.go

package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/685Degrees/echo-reader/internal/audio"
	"github.com/685Degrees/echo-reader/internal/orchestrator"
	"github.com/685Degrees/echo-reader/internal/player"
	"github.com/685Degrees/echo-reader/internal/storage"
	"github.com/685Degrees/echo-reader/internal/synth"
	"github.com/685Degrees/echo-reader/internal/voice"
)

// maxBodyBytes bounds JSON request bodies. Book uploads are the largest.
const maxBodyBytes = 16 << 20

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func handleGet(mux *http.ServeMux, path string, fn http.HandlerFunc) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		fn(w, r)
	})
}

func handlePost(mux *http.ServeMux, path string, fn http.HandlerFunc) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		fn(w, r)
	})
}

// requireLocal rejects requests that do not come from the loopback interface.
// Everything here drives local audio devices.
func requireLocal(w http.ResponseWriter, r *http.Request) bool {
	if isLocalRequest(r) {
		return true
	}
	writeError(w, http.StatusForbidden, "local requests only")
	return false
}

func isLocalRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// decodeJSON decodes the request body into v. An empty body leaves v
// untouched. It writes the 400 itself.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("VIEWER: write json: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSE writes one named event with a JSON payload.
func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// writeDomainError maps the error taxonomy onto HTTP statuses and messages a
// person can act on.
func writeDomainError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	if status >= 500 {
		log.Printf("VIEWER: %v", err)
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "book not found"

	case errors.Is(err, player.ErrNotReady):
		return http.StatusConflict, "nothing is loaded for playback"
	case errors.Is(err, player.ErrNotBuffered):
		return http.StatusConflict, "that part has not been downloaded yet"
	case errors.Is(err, player.ErrAlreadyInProgress),
		errors.Is(err, voice.ErrAlreadyInProgress),
		errors.Is(err, orchestrator.ErrAlreadyInProgress):
		return http.StatusConflict, "already in progress"
	case errors.Is(err, orchestrator.ErrFocusHeld):
		return http.StatusConflict, "playback is paused while a discussion is open"
	case errors.Is(err, orchestrator.ErrNotListening):
		return http.StatusConflict, "a discussion is already open"

	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "the audio format is not supported"
	case errors.Is(err, audio.ErrTooLong):
		return http.StatusRequestEntityTooLarge, "the book is too long to buffer; raise player.max_buffer_mb"
	case errors.Is(err, audio.ErrDecode):
		return http.StatusBadGateway, "the audio could not be decoded"

	case errors.Is(err, synth.ErrRateLimited):
		return http.StatusTooManyRequests, "speech service is busy, try again shortly"
	case errors.Is(err, synth.ErrSynthesisUnavailable):
		return http.StatusBadGateway, "speech service unavailable: " + upstreamDetail(err)

	case errors.Is(err, voice.ErrMicrophoneDenied):
		return http.StatusForbidden, "microphone access was denied or no microphone is available"
	case errors.Is(err, voice.ErrCredential):
		return http.StatusBadGateway, "could not get a voice session credential (network or server key problem)"
	case errors.Is(err, voice.ErrNegotiationFailed):
		return http.StatusBadGateway, "could not connect the voice session (network problem)"
	case errors.Is(err, voice.ErrChannelNotOpen):
		return http.StatusConflict, "the voice session is not ready yet"

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timed out"
	}
	return http.StatusInternalServerError, err.Error()
}

func upstreamDetail(err error) string {
	var he *synth.HTTPError
	if errors.As(err, &he) && he.Message != "" {
		return he.Message
	}
	return "network error"
}

// pathID extracts the id segment after prefix: "/api/books/{id}/audio" with
// prefix "/api/books/" gives ("{id}", "audio").
func pathID(path, prefix string) (id, rest string) {
	tail := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, rest, _ = strings.Cut(tail, "/")
	return id, rest
}
