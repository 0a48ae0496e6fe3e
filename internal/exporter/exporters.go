package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/beacon/internal/model"
)

// Exporters fans document batches out to the live set of sinks. Each Export
// call opens one Bulk per sink and runs the sinks concurrently; one sink
// failing never prevents delivery to the others. The set can be swapped
// atomically while exports are in flight.
type Exporters struct {
	mu  sync.RWMutex
	set []Exporter
}

// NewExporters creates a coordinator over the given sinks.
func NewExporters(exps ...Exporter) *Exporters {
	return &Exporters{set: exps}
}

// Export delivers the batch to every live sink. Errors from all sinks are
// joined; callers needing per-document detail use CollectFailures on the
// result. Exporting zero documents or exporting to zero sinks is a no-op.
func (e *Exporters) Export(ctx context.Context, docs []model.MonitoringDoc) error {
	e.mu.RLock()
	snapshot := e.set
	e.mu.RUnlock()

	if len(docs) == 0 || len(snapshot) == 0 {
		return nil
	}

	// Each sink records its own error; the group itself never fails, so a
	// broken sink cannot cancel its siblings.
	var g errgroup.Group
	errs := make([]error, len(snapshot))
	for i, exp := range snapshot {
		i, exp := i, exp
		g.Go(func() error {
			errs[i] = exportOne(ctx, exp, docs)
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// exportOne runs one full bulk cycle against a single sink.
func exportOne(ctx context.Context, exp Exporter, docs []model.MonitoringDoc) error {
	bulk, err := exp.OpenBulk(ctx)
	if err != nil {
		return fmt.Errorf("exporter %q: open bulk: %w", exp.Name(), err)
	}
	if err := bulk.Add(docs...); err != nil {
		bulk.Close()
		return fmt.Errorf("exporter %q: add: %w", exp.Name(), err)
	}
	if err := bulk.Flush(ctx); err != nil {
		bulk.Close()
		return fmt.Errorf("exporter %q: flush: %w", exp.Name(), err)
	}
	return bulk.Close()
}

// Reload swaps the live set for next and closes every retired sink. The swap
// is atomic: in-flight exports finish against the snapshot they started with.
func (e *Exporters) Reload(next []Exporter) {
	e.mu.Lock()
	old := e.set
	e.set = next
	e.mu.Unlock()

	for _, exp := range old {
		if err := exp.Close(); err != nil {
			slog.Warn("closing retired exporter", "exporter", exp.Name(), "error", err)
		}
	}
}

// Names returns the live sink names, sorted.
func (e *Exporters) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.set))
	for _, exp := range e.set {
		names = append(names, exp.Name())
	}
	sort.Strings(names)
	return names
}

// Close closes every live sink, collecting errors. The set becomes empty;
// later Export calls succeed as no-ops.
func (e *Exporters) Close() error {
	e.mu.Lock()
	old := e.set
	e.set = nil
	e.mu.Unlock()

	var errs []error
	for _, exp := range old {
		if err := exp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
