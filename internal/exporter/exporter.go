// Package exporter defines the export sink contract and the coordinator that
// fans document batches out to every configured sink.
package exporter

import (
	"context"
	"errors"

	"github.com/crimson-sun/beacon/internal/model"
)

// ErrClosed is returned when a Bulk is used after Close.
var ErrClosed = errors.New("bulk already closed")

// Exporter is a named export sink. An Exporter lives for the lifetime of one
// configuration; each export cycle opens a fresh Bulk.
type Exporter interface {
	// Name returns the instance name from configuration.
	Name() string

	// OpenBulk begins a new batched write.
	OpenBulk(ctx context.Context) (Bulk, error)

	// Close releases the sink's resources. No Bulk may be opened afterwards.
	Close() error
}

// Bulk stages documents for one batched write. Add stages, Flush performs
// the write, Close discards anything still staged.
//
// A Bulk is not safe for concurrent use: callers must serialize Add, Flush,
// and Close.
type Bulk interface {
	Add(docs ...model.MonitoringDoc) error
	Flush(ctx context.Context) error
	Close() error
}

// Config holds the resolved settings for one configured exporter instance.
type Config struct {
	Name     string            // instance name from configuration
	Type     string            // registered sink type
	Settings map[string]string // type-specific settings
}

// Setting returns a setting value, or fallback when absent or empty.
func (c Config) Setting(key, fallback string) string {
	if v := c.Settings[key]; v != "" {
		return v
	}
	return fallback
}
