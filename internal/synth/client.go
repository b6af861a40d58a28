package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/685Degrees/echo-reader/internal/util"
)

// Client talks to the speech intermediary: POST {"text": ...} and read the
// audio body as it streams in.
type Client struct {
	URL  string
	HTTP *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		URL: util.NormalizeURL(strings.TrimSpace(url)),
		HTTP: &http.Client{
			// headers only; the body streams for as long as the speech lasts
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

func (c *Client) Synthesize(ctx context.Context, text string) (*Stream, error) {
	b, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp, errorField)
	}
	return &Stream{Body: resp.Body, MIMEType: contentType(resp, "audio/mpeg")}, nil
}
