// Package fileexp implements the "file" exporter: NDJSON appended to a file
// with buffered writes and optional size-based rotation. The path "-" writes
// to stdout (no rotation), which keeps the daemon usable in a pipe.
package fileexp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/crimson-sun/beacon/internal/exporter"
	"github.com/crimson-sun/beacon/internal/model"
)

func init() {
	exporter.Register("file", New)
}

const (
	defaultBufSize = 64 * 1024 // 64KB
	maxRotations   = 9
)

// Exporter appends NDJSON monitoring documents to a file. The file handle is
// shared across bulks; writes are serialized at Flush.
type Exporter struct {
	name    string
	path    string
	maxSize int64 // 0 = no rotation
	stdout  bool

	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	written int64
}

// New constructs the file exporter from its settings. Required: "path"
// ("-" for stdout). Optional: "max_size_bytes" — rotation threshold,
// 0 (default) disables rotation.
func New(cfg exporter.Config) (exporter.Exporter, error) {
	path := cfg.Settings["path"]
	if path == "" {
		return nil, fmt.Errorf("exporter %q: path is required", cfg.Name)
	}

	var maxSize int64
	if v := cfg.Settings["max_size_bytes"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("exporter %q: max_size_bytes must be a non-negative integer, got %q", cfg.Name, v)
		}
		maxSize = n
	}

	e := &Exporter{
		name:    cfg.Name,
		path:    path,
		maxSize: maxSize,
		stdout:  path == "-",
	}
	if e.stdout {
		e.w = bufio.NewWriterSize(os.Stdout, defaultBufSize)
		e.maxSize = 0
		return e, nil
	}
	if err := e.openFile(); err != nil {
		return nil, fmt.Errorf("exporter %q: %w", cfg.Name, err)
	}
	return e, nil
}

func (e *Exporter) Name() string { return e.name }

// OpenBulk begins a new staged batch. The returned Bulk is single-writer.
func (e *Exporter) OpenBulk(_ context.Context) (exporter.Bulk, error) {
	return &Bulk{exp: e}, nil
}

// Close flushes the buffer and closes the file.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.w.Flush(); err != nil {
		if e.f != nil {
			e.f.Close()
		}
		return fmt.Errorf("file exporter: flush: %w", err)
	}
	if e.f == nil {
		return nil
	}
	return e.f.Close()
}

// openFile opens (or creates) the output file and wraps it in a bufio.Writer.
func (e *Exporter) openFile() error {
	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", e.path, err)
	}
	e.f = f
	e.w = bufio.NewWriterSize(f, defaultBufSize)
	e.written = info.Size()
	return nil
}

// writeLines appends the staged lines, rotating beforehand when the batch
// would push the file past maxSize.
func (e *Exporter) writeLines(lines [][]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var batchSize int64
	for _, line := range lines {
		batchSize += int64(len(line))
	}
	if e.maxSize > 0 && e.written+batchSize > e.maxSize && e.written > 0 {
		if err := e.rotate(); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
	}
	for _, line := range lines {
		n, err := e.w.Write(line)
		e.written += int64(n)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return e.w.Flush()
}

// rotate flushes, closes the current file, renames it to {path}.1
// (shifting existing rotated files), and opens a new file.
func (e *Exporter) rotate() error {
	if err := e.w.Flush(); err != nil {
		return err
	}
	if err := e.f.Close(); err != nil {
		return err
	}

	// Shift existing rotated files: .2 → .3, .1 → .2, current → .1
	for i := maxRotations; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", e.path, i)
		to := fmt.Sprintf("%s.%d", e.path, i+1)
		os.Rename(from, to) // ignore errors — file may not exist
	}
	if err := os.Rename(e.path, e.path+".1"); err != nil {
		return err
	}

	e.written = 0
	return e.openFile()
}

// Bulk stages NDJSON lines and appends them on Flush.
// Not safe for concurrent use.
type Bulk struct {
	exp    *Exporter
	lines  [][]byte
	errs   exporter.ExportError
	closed bool
}

// Add stages documents as NDJSON lines, marshaling each individually so one
// unmarshalable document is recorded per-doc without touching its siblings.
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
		b.lines = append(b.lines, append(data, '\n'))
	}
	return nil
}

// Flush appends the staged lines in one write pass.
func (b *Bulk) Flush(_ context.Context) error {
	if b.closed {
		return exporter.ErrClosed
	}
	lines := b.lines
	b.lines = nil
	if len(lines) == 0 {
		return b.errs.OrNil()
	}
	if err := b.exp.writeLines(lines); err != nil {
		return err
	}
	return b.errs.OrNil()
}

// Close discards anything still staged.
func (b *Bulk) Close() error {
	b.closed = true
	b.lines = nil
	return nil
}
