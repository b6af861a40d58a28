// Package synth turns text into a live stream of encoded speech.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

var (
	ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")
	ErrRateLimited          = errors.New("speech synthesis rate limited")
)

// Stream is a synthesis response. Body delivers the encoded audio as the
// provider produces it; the caller must close it.
type Stream struct {
	Body     io.ReadCloser
	MIMEType string
}

// Synthesizer produces speech for text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Stream, error)
}

// HTTPError is a non-2xx answer from a speech endpoint. It unwraps to
// ErrRateLimited or ErrSynthesisUnavailable.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.Err, e.Status)
	}
	return fmt.Sprintf("%v (status %d): %s", e.Err, e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

// statusError builds the HTTPError for resp and drains its body. message
// extracts the upstream text from the (bounded) error body.
func statusError(resp *http.Response, message func([]byte) string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	e := &HTTPError{Status: resp.StatusCode, Err: ErrSynthesisUnavailable}
	if resp.StatusCode == http.StatusTooManyRequests {
		e.Err = ErrRateLimited
	}
	e.Message = message(body)
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
		if len(e.Message) > 200 {
			e.Message = e.Message[:200]
		}
	}
	return e
}

// errorField reads the {"error": "..."} body the intermediary sends.
func errorField(body []byte) string {
	var v struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &v) != nil {
		return ""
	}
	return v.Error
}

// contentType returns the response MIME type, falling back to def when the
// header is missing or is a generic binary type.
func contentType(resp *http.Response, def string) string {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return def
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil || mt == "application/octet-stream" {
		return def
	}
	return ct
}
