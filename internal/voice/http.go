package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/685Degrees/echo-reader/internal/util"
)

// SessionResponse is the body of the credential issuance endpoint.
type SessionResponse struct {
	ClientSecret ClientSecret `json:"client_secret"`
}

type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// HTTPCredentials fetches ephemeral credentials from the intermediary with
// an empty POST.
type HTTPCredentials struct {
	URL  string
	HTTP *http.Client
}

func NewHTTPCredentials(url string) *HTTPCredentials {
	return &HTTPCredentials{
		URL:  util.NormalizeURL(url),
		HTTP: &http.Client{Timeout: util.DefaultFetchTimeout},
	}
}

func (c *HTTPCredentials) Fetch(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrCredential, err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrCredential, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		return Credential{}, fmt.Errorf("%w: status %s: %s", ErrCredential, resp.Status, errorMessage(resp.Body))
	}
	var sr SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Credential{}, fmt.Errorf("%w: decode session: %w", ErrCredential, err)
	}
	if sr.ClientSecret.Value == "" {
		return Credential{}, fmt.Errorf("%w: response carries no client secret", ErrCredential)
	}
	cred := Credential{Token: sr.ClientSecret.Value}
	if sr.ClientSecret.ExpiresAt > 0 {
		cred.ExpiresAt = time.Unix(sr.ClientSecret.ExpiresAt, 0)
	}
	return cred, nil
}

// HTTPNegotiator posts the SDP offer to the provider's realtime endpoint.
type HTTPNegotiator struct {
	URL   string
	Model string
	HTTP  *http.Client
}

func NewHTTPNegotiator(url, model string) *HTTPNegotiator {
	return &HTTPNegotiator{
		URL:   strings.TrimRight(url, "/"),
		Model: model,
		HTTP:  &http.Client{Timeout: 20 * time.Second},
	}
}

// maxSDP bounds the answer body.
const maxSDP = 1 << 20

func (n *HTTPNegotiator) Negotiate(ctx context.Context, cred Credential, offer string) (string, error) {
	u := n.URL
	if n.Model != "" {
		u += "?model=" + url.QueryEscape(n.Model)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := n.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: status %s: %s", ErrNegotiationFailed, resp.Status, errorMessage(resp.Body))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxSDP))
	if err != nil {
		return "", fmt.Errorf("%w: read answer: %w", ErrNegotiationFailed, err)
	}
	answer := string(b)
	if !strings.HasPrefix(answer, "v=") {
		return "", fmt.Errorf("%w: answer is not SDP", ErrNegotiationFailed)
	}
	return answer, nil
}

// errorMessage extracts {"error": "..."} or {"error": {"message": "..."}}
// from an error body, falling back to its leading text.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	var v struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(b, &v) == nil && len(v.Error) > 0 {
		var s string
		if json.Unmarshal(v.Error, &s) == nil {
			return s
		}
		var m struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(v.Error, &m) == nil && m.Message != "" {
			return m.Message
		}
	}
	msg := strings.TrimSpace(string(b))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
