package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	ElevenLabsBaseURL = "https://api.elevenlabs.io"
	// Rachel
	ElevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM"
	ElevenLabsDefaultModel = "eleven_turbo_v2_5"
)

// ElevenLabs streams speech straight from the ElevenLabs API. It holds the
// long-lived key, so it only runs inside the intermediary.
type ElevenLabs struct {
	APIKey  string
	BaseURL string
	Voice   string
	Model   string
	HTTP    *http.Client
}

func NewElevenLabs(apiKey string) *ElevenLabs {
	return &ElevenLabs{
		APIKey:  apiKey,
		BaseURL: ElevenLabsBaseURL,
		Voice:   ElevenLabsDefaultVoice,
		Model:   ElevenLabsDefaultModel,
		HTTP: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*Stream, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("%w: no elevenlabs api key", ErrSynthesisUnavailable)
	}
	b, _ := json.Marshal(elevenLabsRequest{Text: text, ModelID: e.Model})
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", e.BaseURL, url.PathEscape(e.Voice))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp, elevenLabsDetail)
	}
	return &Stream{Body: resp.Body, MIMEType: contentType(resp, "audio/mpeg")}, nil
}

// elevenLabsDetail reads {"detail": {"message": ...}} or {"detail": "..."}.
func elevenLabsDetail(body []byte) string {
	var v struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &v) != nil || len(v.Detail) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(v.Detail, &s) == nil {
		return s
	}
	var d struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(v.Detail, &d) == nil {
		return d.Message
	}
	return ""
}
