// Package monitor runs the daemon's self-monitoring loop: it periodically
// collects runtime stats, buffers them, and submits batches fire-and-forget
// through the async submitter.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/crimson-sun/beacon/internal/collector"
	"github.com/crimson-sun/beacon/internal/model"
)

// The system name stamped onto self-monitoring documents.
const system = "beacon"

// Source produces one raw document per collection tick.
type Source interface {
	Collect() (model.RawDoc, error)
}

// Submitter is the fire-and-forget export surface, satisfied by
// *async.Submitter.
type Submitter interface {
	Submit(docs []model.MonitoringDoc, onDone func(error))
}

// Monitor drives periodic self-collection. Batches are bounded by both a
// time window and a size cap; whichever trips first flushes.
type Monitor struct {
	col      *collector.Collector
	source   Source
	sub      Submitter
	interval time.Duration
	buf      *docBuffer
}

// New creates a Monitor collecting from source every interval, flushing
// buffered docs after window or once maxSize accumulate.
func New(col *collector.Collector, source Source, sub Submitter, interval, window time.Duration, maxSize int) *Monitor {
	return &Monitor{
		col:      col,
		source:   source,
		sub:      sub,
		interval: interval,
		buf:      newDocBuffer(window, maxSize),
	}
}

// Run collects until the context is cancelled, then flushes what is pending
// and returns the context's error.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.flush()
			return ctx.Err()
		case <-ticker.C:
			m.collect()
		case <-m.buf.flushCh():
			m.flush()
		}
	}
}

func (m *Monitor) collect() {
	raw, err := m.source.Collect()
	if err != nil {
		slog.Warn("self-monitoring collection failed", "error", err)
		return
	}
	docs := m.col.Collect([]model.RawDoc{raw}, system, m.interval)
	if m.buf.add(docs...) {
		m.flush()
	}
}

func (m *Monitor) flush() {
	docs := m.buf.take()
	if len(docs) == 0 {
		return
	}
	m.sub.Submit(docs, func(err error) {
		if err != nil {
			slog.Warn("self-monitoring export failed", "docs", len(docs), "error", err)
		}
	})
}
