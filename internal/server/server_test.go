package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/beacon/internal/collector"
	"github.com/crimson-sun/beacon/internal/exporter"
	"github.com/crimson-sun/beacon/internal/model"
)

// memExporter is an in-memory sink for handler tests.
type memExporter struct {
	name    string
	failDoc string // doc ID to fail, when set

	mu   sync.Mutex
	docs []model.MonitoringDoc
}

func (m *memExporter) Name() string { return m.name }

func (m *memExporter) OpenBulk(_ context.Context) (exporter.Bulk, error) {
	return &memBulk{exp: m}, nil
}

func (m *memExporter) Close() error { return nil }

func (m *memExporter) received() []model.MonitoringDoc {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.MonitoringDoc(nil), m.docs...)
}

type memBulk struct {
	exp     *memExporter
	pending []model.MonitoringDoc
	errs    exporter.ExportError
}

func (b *memBulk) Add(docs ...model.MonitoringDoc) error {
	for _, d := range docs {
		if b.exp.failDoc != "" && d.ID == b.exp.failDoc {
			b.errs.Add(b.exp.name, d.ID, errors.New("rejected"))
			continue
		}
		b.pending = append(b.pending, d)
	}
	return nil
}

func (b *memBulk) Flush(_ context.Context) error {
	b.exp.mu.Lock()
	b.exp.docs = append(b.exp.docs, b.pending...)
	b.exp.mu.Unlock()
	b.pending = nil
	return b.errs.OrNil()
}

func (b *memBulk) Close() error { return nil }

func newTestServer(exps ...exporter.Exporter) (*Server, *exporter.Exporters) {
	col := collector.New("cluster-abc", model.Node{UUID: "node-1"})
	set := exporter.NewExporters(exps...)
	return New(col, set), set
}

func postBulk(t *testing.T, s *Server, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestBulkIngestStampsAndExports(t *testing.T) {
	sink := &memExporter{name: "mem"}
	s, _ := newTestServer(sink)

	body := `{"type":"node_stats","source":{"goroutines":12}}
{"id":"doc-2","type":"shard_stats","source":{"shards":3}}
`
	rec := postBulk(t, s, "/api/v1/monitoring/bulk?system_id=agent&interval=10s", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TookMS   int64 `json:"took_ms"`
		Errors   bool  `json:"errors"`
		Failures []any `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Errors)
	assert.Empty(t, resp.Failures)

	docs := sink.received()
	require.Len(t, docs, 2)
	assert.Equal(t, "cluster-abc", docs[0].Cluster)
	assert.Equal(t, "agent", docs[0].System)
	assert.NotEmpty(t, docs[0].ID)
	assert.Equal(t, "doc-2", docs[1].ID)
	assert.Equal(t, int64(10000), docs[0].IntervalMS)
}

func TestBulkReportsPerDocFailures(t *testing.T) {
	sink := &memExporter{name: "mem", failDoc: "bad-doc"}
	s, _ := newTestServer(sink)

	body := `{"id":"good-doc","type":"node_stats","source":{}}
{"id":"bad-doc","type":"node_stats","source":{}}
`
	rec := postBulk(t, s, "/api/v1/monitoring/bulk?system_id=agent", body)
	require.Equal(t, http.StatusOK, rec.Code, "per-doc failures are not a request failure")

	var resp struct {
		Errors   bool `json:"errors"`
		Failures []struct {
			Exporter string `json:"exporter"`
			DocID    string `json:"doc_id"`
			Reason   string `json:"reason"`
		} `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Errors)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "bad-doc", resp.Failures[0].DocID)
	assert.Equal(t, "mem", resp.Failures[0].Exporter)

	// The good document was still written.
	require.Len(t, sink.received(), 1)
}

func TestBulkRequiresSystemID(t *testing.T) {
	s, _ := newTestServer(&memExporter{name: "mem"})
	rec := postBulk(t, s, "/api/v1/monitoring/bulk", `{"type":"node_stats","source":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "system_id")
}

func TestBulkRejectsEmptyBody(t *testing.T) {
	s, _ := newTestServer(&memExporter{name: "mem"})
	rec := postBulk(t, s, "/api/v1/monitoring/bulk?system_id=agent", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no documents")
}

func TestBulkRejectsMalformedLine(t *testing.T) {
	s, _ := newTestServer(&memExporter{name: "mem"})
	body := `{"type":"node_stats","source":{}}
{not json}
`
	rec := postBulk(t, s, "/api/v1/monitoring/bulk?system_id=agent", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "line 2")
}

func TestBulkRejectsMissingType(t *testing.T) {
	s, _ := newTestServer(&memExporter{name: "mem"})
	rec := postBulk(t, s, "/api/v1/monitoring/bulk?system_id=agent", `{"source":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing type")
}

func TestBulkRejectsBadInterval(t *testing.T) {
	s, _ := newTestServer(&memExporter{name: "mem"})
	rec := postBulk(t, s, "/api/v1/monitoring/bulk?system_id=agent&interval=soon",
		`{"type":"node_stats","source":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "interval")
}

func TestExportersEndpoint(t *testing.T) {
	s, _ := newTestServer(&memExporter{name: "b-sink"}, &memExporter{name: "a-sink"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exporters", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"a-sink", "b-sink"}, resp["exporters"])
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
