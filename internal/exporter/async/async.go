// Package async provides fire-and-forget batch submission over the exporter
// coordinator: producers enqueue a batch and move on, a background goroutine
// performs the export and delivers the outcome to an optional per-batch
// callback.
package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/beacon/internal/model"
)

const (
	defaultQueueSize    = 64
	defaultDrainTimeout = 5 * time.Second
)

// Target is the downstream export surface, satisfied by *exporter.Exporters.
type Target interface {
	Export(ctx context.Context, docs []model.MonitoringDoc) error
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithQueueSize sets the batch queue capacity. Default: 64.
func WithQueueSize(n int) Option {
	return func(s *Submitter) { s.queueSize = n }
}

// WithOnError sets the callback invoked when an export fails and the batch
// carried no completion callback of its own. Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(s *Submitter) { s.errFunc = f }
}

// WithDropOnFull makes Submit return immediately (dropping the batch) when
// the queue is full, instead of blocking. Use for producers where lossiness
// is acceptable (e.g. the self-monitoring stream).
func WithDropOnFull() Option {
	return func(s *Submitter) { s.dropOnFull = true }
}

type batch struct {
	docs   []model.MonitoringDoc
	onDone func(error)
}

// Submitter decouples batch production from export via a buffered channel.
// Producers submit into the channel; a background goroutine drains it to the
// target. There is no blocking wait and no cancellation of an in-flight
// export; completion is signaled through the per-batch callback.
type Submitter struct {
	target     Target
	ch         chan batch
	done       chan struct{}
	errFunc    func(error)
	queueSize  int
	dropOnFull bool
	closeOnce  sync.Once
}

// New wraps a Target in an async submitter. The background drain goroutine
// starts immediately.
func New(target Target, opts ...Option) *Submitter {
	s := &Submitter{
		target:    target,
		queueSize: defaultQueueSize,
		errFunc:   func(err error) { slog.Warn("async export failed", "error", err) },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ch = make(chan batch, s.queueSize)
	s.done = make(chan struct{})
	go s.drain()
	return s
}

// Submit enqueues a batch for export. onDone, when non-nil, is invoked from
// the drain goroutine with the export outcome. By default Submit blocks when
// the queue is full (backpressure); with WithDropOnFull it returns
// immediately and the batch is lost.
func (s *Submitter) Submit(docs []model.MonitoringDoc, onDone func(error)) {
	if len(docs) == 0 {
		return
	}
	b := batch{docs: docs, onDone: onDone}
	if s.dropOnFull {
		select {
		case s.ch <- b:
		default:
			slog.Warn("async queue full, dropping batch", "docs", len(docs))
		}
		return
	}
	s.ch <- b
}

// Close closes the queue and waits for the drain goroutine to finish
// (with a timeout). Submit must not be called after Close.
func (s *Submitter) Close() error {
	s.closeOnce.Do(func() {
		close(s.ch)
		select {
		case <-s.done:
		case <-time.After(defaultDrainTimeout):
			slog.Warn("async submitter drain timed out")
		}
	})
	return nil
}

// drain exports queued batches and delivers outcomes.
func (s *Submitter) drain() {
	defer close(s.done)
	for b := range s.ch {
		err := s.target.Export(context.Background(), b.docs)
		if b.onDone != nil {
			b.onDone(err)
		} else if err != nil {
			s.errFunc(err)
		}
	}
}
