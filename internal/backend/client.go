// Package backend talks to an Ollama-compatible embedding service: host
// probing and failover, model provisioning, and embedding requests.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a thin HTTP client for one backend host. It is stateless per
// call and safe for concurrent use.
type Client struct {
	baseURL string
	// No global http.Client timeout: model pulls stream for a long time.
	// Probe and embed calls bound themselves via context deadlines.
	http         *http.Client
	probeTimeout time.Duration
	embedTimeout time.Duration
}

// NewClient creates a client for baseURL. probeTimeout bounds reachability
// and capability probes; embedTimeout bounds a single embedding call.
func NewClient(baseURL string, probeTimeout, embedTimeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{},
		probeTimeout: probeTimeout,
		embedTimeout: embedTimeout,
	}
}

// BaseURL returns the host URL this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping probes host reachability with the client's probe timeout.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("host unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("host probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Accelerated runs the lightweight capability probe and reports whether the
// host serves embeddings with hardware acceleration.
func (c *Client) Accelerated(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ps", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("capability probe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("capability probe returned status %d", resp.StatusCode)
	}
	var body struct {
		Accelerated bool `json:"accelerated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("capability probe: %w", err)
	}
	return body.Accelerated, nil
}

// Embed turns text into a vector using the given model. It is a single
// blocking call bounded by the client's embed timeout.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	payload := map[string]any{"model": model, "input": []string{text}}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request returned status %d", resp.StatusCode)
	}
	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embed response: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed response contained no vector")
	}
	return out.Embeddings[0], nil
}

// PullFrame is one status frame of a streamed model download. A frame either
// carries free-text status, status plus byte counters, or an error.
type PullFrame struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
	Err       string `json:"error"`
}

// Pull requests a model download and streams its progress frames to frame.
// An error frame aborts the pull and is returned as an error. The call runs
// until the stream ends or ctx is cancelled; there is no overall timeout.
func (c *Client) Pull(ctx context.Context, model string, frame func(PullFrame)) error {
	payload := map[string]any{"model": model, "stream": true}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pull request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pull request returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var f PullFrame
		if err := json.Unmarshal(line, &f); err != nil {
			// Malformed frame: skip it, the stream may recover.
			continue
		}
		if f.Err != "" {
			return fmt.Errorf("model pull failed: %s", f.Err)
		}
		if frame != nil {
			frame(f)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("pull stream: %w", err)
	}
	return nil
}
