// Package server exposes beacon's HTTP API: bulk document ingestion, live
// exporter listing, and health.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/crimson-sun/beacon/internal/collector"
	"github.com/crimson-sun/beacon/internal/exporter"
	"github.com/crimson-sun/beacon/internal/model"
)

// Docs larger than this are rejected before parsing.
const maxLineBytes = 1 << 20 // 1MB

// Server handles the REST API. Export runs synchronously within the request:
// the response reports per-document failures once every sink has finished.
type Server struct {
	col  *collector.Collector
	exps *exporter.Exporters
}

// New creates a Server over the given collector and exporter set.
func New(col *collector.Collector, exps *exporter.Exporters) *Server {
	return &Server{col: col, exps: exps}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/monitoring/bulk", s.bulkHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/exporters", s.exportersHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

type bulkResponse struct {
	TookMS   int64         `json:"took_ms"`
	Errors   bool          `json:"errors"`
	Failures []failureJSON `json:"failures,omitempty"`
}

type failureJSON struct {
	Exporter string `json:"exporter,omitempty"`
	DocID    string `json:"doc_id,omitempty"`
	Reason   string `json:"reason"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// bulkHandler ingests an NDJSON body of raw documents, stamps them, and
// exports synchronously. Per-document export failures come back in a 200
// response with errors=true; only a malformed request is rejected outright.
func (s *Server) bulkHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	system := q.Get("system_id")
	if system == "" {
		writeError(w, http.StatusBadRequest, "system_id query parameter is required")
		return
	}

	var interval time.Duration
	if v := q.Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("interval must be a non-negative duration, got %q", v))
			return
		}
		interval = d
	}

	raws, err := decodeNDJSON(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(raws) == 0 {
		writeError(w, http.StatusBadRequest, "request body contains no documents")
		return
	}

	docs := s.col.Collect(raws, system, interval)

	start := time.Now()
	exportErr := s.exps.Export(r.Context(), docs)
	took := time.Since(start)

	resp := bulkResponse{TookMS: took.Milliseconds()}
	if exportErr != nil {
		resp.Errors = true
		for _, f := range exporter.CollectFailures(exportErr) {
			resp.Failures = append(resp.Failures, failureJSON{
				Exporter: f.Exporter,
				DocID:    f.DocID,
				Reason:   f.Err.Error(),
			})
		}
		slog.Warn("bulk export completed with failures",
			"system", system, "docs", len(docs), "failures", len(resp.Failures))
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeNDJSON parses one RawDoc per non-empty line.
func decodeNDJSON(r *http.Request) ([]model.RawDoc, error) {
	var raws []model.RawDoc
	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		data := sc.Bytes()
		if len(data) == 0 {
			continue
		}
		var raw model.RawDoc
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("malformed document at line %d: %v", line, err)
		}
		if raw.Type == "" {
			return nil, fmt.Errorf("document at line %d is missing type", line)
		}
		raws = append(raws, raw)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("document at line %d exceeds %d bytes", line+1, maxLineBytes)
		}
		return nil, fmt.Errorf("read body: %v", err)
	}
	return raws, nil
}

func (s *Server) exportersHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"exporters": s.exps.Names()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return ctx.Err()
}
