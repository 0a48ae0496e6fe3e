package beacon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Doc is a monitoring document as producers see it. The daemon stamps
// cluster, node, and collection metadata; producers supply only the payload.
// This is the stable public type — the daemon's internal envelope may evolve
// independently without breaking consumers.
type Doc struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Source    json.RawMessage `json:"source"`
}

// Report is the daemon's bulk response.
type Report struct {
	TookMS   int64     `json:"took_ms"`
	Errors   bool      `json:"errors"`
	Failures []Failure `json:"failures,omitempty"`
}

// Failure describes one document the daemon could not export.
type Failure struct {
	Exporter string `json:"exporter,omitempty"`
	DocID    string `json:"doc_id,omitempty"`
	Reason   string `json:"reason"`
}

// APIError represents a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Client submits monitoring documents to a beacon daemon.
type Client struct {
	baseURL    string
	interval   time.Duration
	headers    map[string]string
	httpClient *http.Client
}

// New creates a Client for the daemon at baseURL (e.g. "http://localhost:9600").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		headers:    map[string]string{},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send submits docs under the given system name and returns the daemon's
// per-document report. A non-nil error means the submission itself failed;
// per-document export failures come back in the Report with a nil error.
func (c *Client) Send(ctx context.Context, system string, docs []Doc) (Report, error) {
	if system == "" {
		return Report{}, fmt.Errorf("beacon: system must not be empty")
	}
	if len(docs) == 0 {
		return Report{}, fmt.Errorf("beacon: no documents to send")
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for i, doc := range docs {
		if doc.Type == "" {
			return Report{}, fmt.Errorf("beacon: document %d is missing type", i)
		}
		if err := enc.Encode(doc); err != nil {
			return Report{}, fmt.Errorf("beacon: marshal document %d: %w", i, err)
		}
	}

	q := url.Values{"system_id": {system}}
	if c.interval > 0 {
		q.Set("interval", c.interval.String())
	}
	endpoint := c.baseURL + "/api/v1/monitoring/bulk?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return Report{}, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	for name, val := range c.headers {
		req.Header.Set(name, val)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Report{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Report{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		trimmed := string(respBody)
		if len(trimmed) > 512 {
			trimmed = trimmed[:512]
		}
		return Report{}, &APIError{StatusCode: resp.StatusCode, Body: trimmed}
	}

	var report Report
	if err := json.Unmarshal(respBody, &report); err != nil {
		return Report{}, fmt.Errorf("beacon: decode response: %w", err)
	}
	return report, nil
}
