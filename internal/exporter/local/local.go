// Package local implements the "local" exporter: a SQLite-backed index store.
// Documents land in daily indices named monitoring-<system>-<yyyy.MM.dd>,
// written one batch per flush inside a single transaction with per-row
// failure isolation.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crimson-sun/beacon/internal/exporter"
	"github.com/crimson-sun/beacon/internal/model"
)

func init() {
	exporter.Register("local", New)
}

const schema = `
CREATE TABLE IF NOT EXISTS monitoring_docs (
	index_name  TEXT NOT NULL,
	id          TEXT NOT NULL,
	cluster_uuid TEXT NOT NULL,
	system      TEXT NOT NULL,
	doc_type    TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	interval_ms INTEGER NOT NULL DEFAULT 0,
	node_uuid   TEXT,
	node_name   TEXT,
	node_host   TEXT,
	source      TEXT,
	PRIMARY KEY (index_name, id)
);
CREATE INDEX IF NOT EXISTS idx_docs_timestamp ON monitoring_docs(timestamp);
CREATE INDEX IF NOT EXISTS idx_docs_type ON monitoring_docs(doc_type);
`

// Exporter writes monitoring documents to a local SQLite database.
type Exporter struct {
	name   string
	db     *sql.DB
	enrich bool
	nowFn  func() time.Time
}

// New constructs the local exporter from its settings. Required: "path"
// (database file). Optional: "pipeline" — "ingest" (default) enriches each
// document's source with ingest metadata, "none" disables enrichment.
func New(cfg exporter.Config) (exporter.Exporter, error) {
	path := cfg.Settings["path"]
	if path == "" {
		return nil, fmt.Errorf("exporter %q: path is required", cfg.Name)
	}
	pipeline := cfg.Setting("pipeline", "ingest")
	if pipeline != "ingest" && pipeline != "none" {
		return nil, fmt.Errorf("exporter %q: pipeline must be \"ingest\" or \"none\", got %q", cfg.Name, pipeline)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("exporter %q: create directory: %w", cfg.Name, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("exporter %q: open database: %w", cfg.Name, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("exporter %q: initialize schema: %w", cfg.Name, err)
	}

	return &Exporter{
		name:   cfg.Name,
		db:     db,
		enrich: pipeline == "ingest",
		nowFn:  time.Now,
	}, nil
}

func (e *Exporter) Name() string { return e.name }

// OpenBulk begins a new staged batch. The returned Bulk is single-writer.
func (e *Exporter) OpenBulk(_ context.Context) (exporter.Bulk, error) {
	return &Bulk{exp: e}, nil
}

func (e *Exporter) Close() error {
	return e.db.Close()
}

// indexName returns the daily index a document belongs to.
func indexName(system string, ts time.Time) string {
	return fmt.Sprintf("monitoring-%s-%s", system, ts.UTC().Format("2006.01.02"))
}

type stagedDoc struct {
	doc    model.MonitoringDoc
	index  string
	source []byte
}

// Bulk stages documents and writes them in one transaction on Flush.
// Not safe for concurrent use.
type Bulk struct {
	exp    *Exporter
	staged []stagedDoc
	errs   exporter.ExportError
	closed bool
}

// ingestMeta is what the ingest pipeline folds into each document's source.
type ingestMeta struct {
	IngestedAt time.Time `json:"ingested_at"`
	Exporter   string    `json:"exporter"`
}

// Add stages documents. A document whose source payload is not valid JSON is
// recorded as a per-document failure and skipped; its siblings stage
// normally. When the ingest pipeline fails for a document, the raw document
// is staged instead — ingestion never depends on the pipeline.
func (b *Bulk) Add(docs ...model.MonitoringDoc) error {
	if b.closed {
		return exporter.ErrClosed
	}
	for _, doc := range docs {
		if len(doc.Source) > 0 && !json.Valid(doc.Source) {
			err := fmt.Errorf("source payload is not valid JSON")
			slog.Warn("dropping malformed document", "exporter", b.exp.name, "doc", doc.ID, "error", err)
			b.errs.Add(b.exp.name, doc.ID, err)
			continue
		}
		source := doc.Source
		if b.exp.enrich {
			enriched, err := enrichSource(doc.Source, ingestMeta{
				IngestedAt: b.exp.nowFn().UTC(),
				Exporter:   b.exp.name,
			})
			if err != nil {
				slog.Warn("ingest pipeline failed, writing raw document",
					"exporter", b.exp.name, "doc", doc.ID, "error", err)
			} else {
				source = enriched
			}
		}
		b.staged = append(b.staged, stagedDoc{
			doc:    doc,
			index:  indexName(doc.System, doc.Timestamp),
			source: source,
		})
	}
	return nil
}

// enrichSource folds ingest metadata into the source object. Non-object
// sources (arrays, scalars) cannot carry the metadata and are reported
// so the caller falls back to the raw payload.
func enrichSource(source json.RawMessage, meta ingestMeta) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if len(source) > 0 {
		if err := json.Unmarshal(source, &obj); err != nil {
			return nil, err
		}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	obj["_ingest"] = metaJSON
	return json.Marshal(obj)
}

// Flush writes every staged document in a single transaction. A row that
// fails to insert is recorded as a per-document failure; the remaining rows
// still commit. Add-time failures surface here too.
func (b *Bulk) Flush(ctx context.Context) error {
	if b.closed {
		return exporter.ErrClosed
	}
	staged := b.staged
	b.staged = nil
	if len(staged) == 0 {
		return b.errs.OrNil()
	}

	tx, err := b.exp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monitoring_docs
			(index_name, id, cluster_uuid, system, doc_type, timestamp,
			 interval_ms, node_uuid, node_name, node_host, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}

	for _, s := range staged {
		_, err := stmt.ExecContext(ctx,
			s.index, s.doc.ID, s.doc.Cluster, s.doc.System, s.doc.Type,
			s.doc.Timestamp.UTC().Format(time.RFC3339Nano), s.doc.IntervalMS,
			s.doc.Node.UUID, s.doc.Node.Name, s.doc.Node.Host, string(s.source))
		if err != nil {
			slog.Warn("document insert failed", "exporter", b.exp.name, "doc", s.doc.ID, "error", err)
			b.errs.Add(b.exp.name, s.doc.ID, err)
		}
	}
	stmt.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return b.errs.OrNil()
}

// Close discards anything still staged.
func (b *Bulk) Close() error {
	b.closed = true
	b.staged = nil
	return nil
}
