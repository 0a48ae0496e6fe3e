// Package httpexp implements the "http" exporter: each flush POSTs the
// staged batch as one JSON array to a remote endpoint. Retries on 5xx and
// 429 (honoring Retry-After) with exponential backoff.
package httpexp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/beacon/internal/exporter"
	"github.com/crimson-sun/beacon/internal/model"
)

func init() {
	exporter.Register("http", New)
}

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
)

// APIError represents a non-2xx response from the remote endpoint.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string // Retry-After header value for 429s
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Exporter POSTs monitoring document batches to an HTTP endpoint.
type Exporter struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// New constructs the http exporter from its settings. Required: "url".
// Optional: "timeout" (Go duration, default 10s), "auth_token" (sent as
// Bearer auth), and any number of "header.<Name>" entries.
func New(cfg exporter.Config) (exporter.Exporter, error) {
	endpoint := cfg.Settings["url"]
	if endpoint == "" {
		return nil, fmt.Errorf("exporter %q: url is required", cfg.Name)
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("exporter %q: invalid url: %w", cfg.Name, err)
	}

	timeout := defaultTimeout
	if v := cfg.Settings["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("exporter %q: timeout must be a positive duration, got %q", cfg.Name, v)
		}
		timeout = d
	}

	headers := map[string]string{}
	for key, val := range cfg.Settings {
		if name, ok := strings.CutPrefix(key, "header."); ok {
			headers[name] = val
		}
	}
	if token := cfg.Settings["auth_token"]; token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	return &Exporter{
		name:    cfg.Name,
		url:     endpoint,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (e *Exporter) Name() string { return e.name }

// OpenBulk begins a new staged batch. The returned Bulk is single-writer.
func (e *Exporter) OpenBulk(_ context.Context) (exporter.Bulk, error) {
	return &Bulk{exp: e}, nil
}

func (e *Exporter) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// Bulk stages pre-marshaled documents and POSTs them as one JSON array on
// Flush. Not safe for concurrent use.
type Bulk struct {
	exp    *Exporter
	staged []json.RawMessage
	errs   exporter.ExportError
	closed bool
}

// Add stages documents, marshaling each individually so one unmarshalable
// document is recorded per-doc and skipped without touching its siblings.
func (b *Bulk) Add(docs ...model.MonitoringDoc) error {
	if b.closed {
		return exporter.ErrClosed
	}
	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			slog.Warn("dropping unmarshalable document", "exporter", b.exp.name, "doc", doc.ID, "error", err)
			b.errs.Add(b.exp.name, doc.ID, err)
			continue
		}
		b.staged = append(b.staged, data)
	}
	return nil
}

// Flush POSTs the staged batch. A delivery failure covers the whole batch;
// Add-time per-document failures surface alongside it.
func (b *Bulk) Flush(ctx context.Context) error {
	if b.closed {
		return exporter.ErrClosed
	}
	staged := b.staged
	b.staged = nil
	if len(staged) == 0 {
		return b.errs.OrNil()
	}

	body, err := json.Marshal(staged)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := b.post(ctx, body); err != nil {
		return fmt.Errorf("post %d documents: %w", len(staged), err)
	}
	return b.errs.OrNil()
}

// Close discards anything still staged.
func (b *Bulk) Close() error {
	b.closed = true
	b.staged = nil
	return nil
}

// post sends the batch, retrying on 429 (with Retry-After) and 5xx with
// exponential backoff: 1s, 2s, 4s. Max 3 retries.
func (b *Bulk) post(ctx context.Context, body []byte) error {
	var lastErr *APIError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(attempt, lastErr)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.exp.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		for name, val := range b.exp.headers {
			req.Header.Set(name, val)
		}

		resp, err := b.exp.client.Do(req)
		if err != nil {
			return err
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}
		return apiErr
	}
	return lastErr
}

// backoffDelay returns the wait duration before a retry attempt.
func backoffDelay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(1<<(attempt-1)) * time.Second
}
