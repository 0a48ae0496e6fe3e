// Package collector stamps cluster, node, and collection metadata onto raw
// monitoring documents, turning them into export-ready envelopes.
package collector

import (
	"time"

	"github.com/google/uuid"

	"github.com/crimson-sun/beacon/internal/model"
)

// Collector stamps documents on behalf of one cluster/node identity.
// Safe for concurrent use.
type Collector struct {
	cluster string
	node    model.Node
	now     func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides the timestamp source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// New creates a Collector that stamps documents with the given cluster UUID
// and node identity.
func New(cluster string, node model.Node, opts ...Option) *Collector {
	c := &Collector{
		cluster: cluster,
		node:    node,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect turns raw documents into monitoring documents. Producer-supplied
// IDs and timestamps are preserved; missing IDs get a UUID and missing
// timestamps get the collection instant. All timestamps are normalized to UTC.
// Every document in one call shares the same collection instant.
func (c *Collector) Collect(raws []model.RawDoc, system string, interval time.Duration) []model.MonitoringDoc {
	docs := make([]model.MonitoringDoc, 0, len(raws))
	now := c.now().UTC()
	for _, raw := range raws {
		id := raw.ID
		if id == "" {
			id = uuid.NewString()
		}
		ts := raw.Timestamp
		if ts.IsZero() {
			ts = now
		}
		docs = append(docs, model.MonitoringDoc{
			ID:         id,
			Cluster:    c.cluster,
			System:     system,
			Type:       raw.Type,
			Timestamp:  ts.UTC(),
			IntervalMS: interval.Milliseconds(),
			Node:       c.node,
			Source:     raw.Source,
		})
	}
	return docs
}
