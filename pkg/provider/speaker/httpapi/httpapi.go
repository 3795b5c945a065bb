// Package httpapi implements speaker.Provider against a model server's
// HTTP API. The server receives one WAV-framed window per request on
// POST /identify as multipart/form-data and answers with the ranked
// candidate list as JSON:
//
//	{"candidates": [{"label": "alice", "score": 0.91}, ...],
//	 "embedding": [0.0213, -0.187, ...]}
//
// The embedding field is optional. One Client may serve concurrent calls.
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
	"github.com/voxgate/voxgate/pkg/provider/speaker"
)

const defaultTimeout = 30 * time.Second

// Client talks to a speaker identification model server over HTTP.
type Client struct {
	serverURL string
	httpc     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// New creates a Client for the model server at serverURL, e.g.
// "http://localhost:8085".
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("speaker httpapi: server URL must not be empty")
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

// Classify sends one window to the model server and decodes the ranked
// result.
func (c *Client) Classify(ctx context.Context, pcm []byte, sampleRate int) (speaker.Classification, error) {
	wav := audio.EncodeWAV(pcm, sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "window.wav")
	if err != nil {
		return speaker.Classification{}, fmt.Errorf("speaker httpapi: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return speaker.Classification{}, fmt.Errorf("speaker httpapi: write wav data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return speaker.Classification{}, fmt.Errorf("speaker httpapi: close multipart writer: %w", err)
	}

	endpoint := c.serverURL + "/identify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return speaker.Classification{}, fmt.Errorf("speaker httpapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return speaker.Classification{}, fmt.Errorf("speaker httpapi: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return speaker.Classification{}, fmt.Errorf("speaker httpapi: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return speaker.Classification{}, fmt.Errorf("speaker httpapi: read response body: %w", err)
	}

	var result struct {
		Candidates []struct {
			Label string  `json:"label"`
			Score float64 `json:"score"`
		} `json:"candidates"`
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return speaker.Classification{}, fmt.Errorf("speaker httpapi: decode response: %w", err)
	}
	if len(result.Candidates) == 0 {
		return speaker.Classification{}, fmt.Errorf("speaker httpapi: server returned no candidates")
	}

	candidates := make([]speaker.Candidate, len(result.Candidates))
	for i, cand := range result.Candidates {
		candidates[i] = speaker.Candidate{Label: cand.Label, Score: cand.Score}
	}
	cls := speaker.NewClassification(candidates)
	cls.Embedding = result.Embedding
	return cls, nil
}

// Labels fetches the server's enrolled speaker labels from GET /labels:
//
//	{"labels": ["alice", "bob", ...]}
//
// The enrollment flow uses this list to tell clients which labels can be
// bound.
func (c *Client) Labels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/labels", nil)
	if err != nil {
		return nil, fmt.Errorf("speaker httpapi: create labels request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speaker httpapi: labels request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speaker httpapi: labels endpoint returned HTTP %d", resp.StatusCode)
	}

	var result struct {
		Labels []string `json:"labels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("speaker httpapi: decode labels response: %w", err)
	}
	return result.Labels, nil
}

// Healthy probes the model server's health endpoint. Used by readiness
// checks.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("speaker httpapi: create health request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("speaker httpapi: health request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("speaker httpapi: health endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Ensure Client implements speaker.Provider at compile time.
var _ speaker.Provider = (*Client)(nil)
