// Package httpapi implements emotion.Provider against a model server's
// HTTP API. The server receives one WAV-framed window per request on
// POST /emotion as multipart/form-data and answers with JSON:
//
//	{"label": "happy", "confidence": 0.86,
//	 "distribution": {"angry": 0.01, "fear": 0.02, ...}}
//
// One Client may serve concurrent calls.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voxgate/voxgate/pkg/audio"
	"github.com/voxgate/voxgate/pkg/provider/emotion"
)

const defaultTimeout = 15 * time.Second

// Client talks to an emotion recognition model server over HTTP.
type Client struct {
	serverURL string
	httpc     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (15s timeout).
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// New creates a Client for the model server at serverURL.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("emotion httpapi: server URL must not be empty")
	}
	c := &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpc:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Infer sends one window to the model server and decodes the prediction.
func (c *Client) Infer(ctx context.Context, pcm []byte, sampleRate int) (emotion.Prediction, error) {
	wav := audio.EncodeWAV(pcm, sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "window.wav")
	if err != nil {
		return emotion.Prediction{}, fmt.Errorf("emotion httpapi: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return emotion.Prediction{}, fmt.Errorf("emotion httpapi: write wav data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return emotion.Prediction{}, fmt.Errorf("emotion httpapi: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/emotion", &body)
	if err != nil {
		return emotion.Prediction{}, fmt.Errorf("emotion httpapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return emotion.Prediction{}, fmt.Errorf("emotion httpapi: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return emotion.Prediction{}, fmt.Errorf("emotion httpapi: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return emotion.Prediction{}, fmt.Errorf("emotion httpapi: read response body: %w", err)
	}

	var result struct {
		Label        string             `json:"label"`
		Confidence   float64            `json:"confidence"`
		Distribution map[string]float64 `json:"distribution"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return emotion.Prediction{}, fmt.Errorf("emotion httpapi: decode response: %w", err)
	}
	if result.Label == "" {
		return emotion.Prediction{}, fmt.Errorf("emotion httpapi: server returned no label")
	}
	return emotion.Prediction{
		Label:        result.Label,
		Confidence:   result.Confidence,
		Distribution: result.Distribution,
	}, nil
}

// Ensure Client implements emotion.Provider at compile time.
var _ emotion.Provider = (*Client)(nil)
