package monitor

import (
	"sync"
	"time"

	"github.com/crimson-sun/beacon/internal/model"
)

// docBuffer accumulates documents and signals a flush on a timer or when the
// size bound is reached.
type docBuffer struct {
	window  time.Duration
	maxSize int // 0 means unbounded

	mu      sync.Mutex
	pending []model.MonitoringDoc
	timer   *time.Timer
}

func newDocBuffer(window time.Duration, maxSize int) *docBuffer {
	return &docBuffer{window: window, maxSize: maxSize}
}

// add appends documents to the buffer. If these are the first pending docs,
// starts the flush timer. Returns true if the buffer is full and needs
// flushing.
func (b *docBuffer) add(docs ...model.MonitoringDoc) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasEmpty := len(b.pending) == 0
	b.pending = append(b.pending, docs...)
	if wasEmpty && len(b.pending) > 0 {
		b.timer = time.NewTimer(b.window)
	}
	return b.maxSize > 0 && len(b.pending) >= b.maxSize
}

// flushCh returns the timer's channel, or nil if no timer is active.
func (b *docBuffer) flushCh() <-chan time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

// take drains the buffer and stops the timer.
func (b *docBuffer) take() []model.MonitoringDoc {
	b.mu.Lock()
	defer b.mu.Unlock()
	docs := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return docs
}
