package beacon

import (
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHeader sets a custom HTTP header sent with every submission.
func WithHeader(name, value string) Option {
	return func(c *Client) { c.headers[name] = value }
}

// WithInterval declares the collection interval documents are produced at;
// the daemon stamps it onto each document. Zero (the default) omits it.
func WithInterval(d time.Duration) Option {
	return func(c *Client) { c.interval = d }
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}
