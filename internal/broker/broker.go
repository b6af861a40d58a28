// Package broker hosts the routes that hold long-lived provider keys: ephemeral
// realtime credential issuance and the speech synthesis proxy.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/685Degrees/echo-reader/internal/synth"
	"github.com/685Degrees/echo-reader/internal/util"
	"github.com/685Degrees/echo-reader/internal/voice"
)

var ErrNoKey = errors.New("provider key not configured")

// maxTextBytes bounds a single speech request.
const maxTextBytes = 1 << 20

type Options struct {
	OpenAIBaseURL string
	OpenAIKey     string
	Model         string
	Voice         string
	// Speech is the synthesizer requests to /api/tts are proxied to.
	Speech synth.Synthesizer
	// SessionsPerMinute caps credential issuance. 0 = unlimited.
	SessionsPerMinute int
}

type Broker struct {
	openAIURL string
	openAIKey string
	model     string
	voice     string
	speech    synth.Synthesizer
	http      *http.Client
	limiter   *rate.Limiter
}

func New(opt Options) *Broker {
	if opt.OpenAIBaseURL == "" {
		opt.OpenAIBaseURL = "https://api.openai.com"
	}
	if opt.Voice == "" {
		opt.Voice = "alloy"
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opt.SessionsPerMinute > 0 {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opt.SessionsPerMinute)), opt.SessionsPerMinute)
	}
	return &Broker{
		openAIURL: util.NormalizeURL(opt.OpenAIBaseURL),
		openAIKey: opt.OpenAIKey,
		model:     opt.Model,
		voice:     opt.Voice,
		speech:    opt.Speech,
		http:      &http.Client{Timeout: util.DefaultFetchTimeout},
		limiter:   lim,
	}
}

// Register adds POST /session and POST /api/tts.
func (b *Broker) Register(mux *http.ServeMux) {
	mux.HandleFunc("/session", b.handleSession)
	mux.HandleFunc("/api/tts", b.handleTTS)
}

// CreateSession asks the provider for an ephemeral realtime credential and
// returns the provider's response body unchanged.
func (b *Broker) CreateSession(ctx context.Context) (json.RawMessage, error) {
	if b.openAIKey == "" {
		return nil, ErrNoKey
	}
	body, _ := json.Marshal(map[string]string{"model": b.model, "voice": b.voice})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.openAIURL+"/v1/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.openAIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("create session: status %s: %s", resp.Status, truncate(string(data), 200))
	}
	var sr voice.SessionResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sr.ClientSecret.Value == "" {
		return nil, errors.New("create session: response carries no client secret")
	}
	return data, nil
}

func (b *Broker) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !b.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "Too many sessions")
		return
	}
	data, err := b.CreateSession(r.Context())
	if err != nil {
		log.Printf("BROKER: session: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (b *Broker) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTextBytes)).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	if b.speech == nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate speech")
		return
	}

	stream, err := b.speech.Synthesize(r.Context(), req.Text)
	if err != nil {
		log.Printf("BROKER: tts: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, synth.ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, "Failed to generate speech")
		return
	}
	defer stream.Body.Close()

	w.Header().Set("Content-Type", stream.MIMEType)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	var total int64
	buf := make([]byte, 4096)
	for {
		n, err := stream.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			total += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			log.Printf("BROKER: tts streamed %d bytes", total)
			return
		}
		if err != nil {
			// headers are gone; a truncated body is all the client sees
			log.Printf("BROKER: tts stream: %v", err)
			return
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}
