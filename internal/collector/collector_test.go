package collector

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/crimson-sun/beacon/internal/model"
)

var fixedNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func newTestCollector() *Collector {
	node := model.Node{UUID: "node-1", Name: "beacon-0", Host: "10.0.0.1"}
	return New("cluster-abc", node, WithClock(func() time.Time { return fixedNow }))
}

func TestCollectStampsMetadata(t *testing.T) {
	c := newTestCollector()
	raws := []model.RawDoc{
		{Type: "node_stats", Source: json.RawMessage(`{"goroutines":12}`)},
	}

	docs := c.Collect(raws, "agent", 10*time.Second)
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}

	d := docs[0]
	if d.ID == "" {
		t.Error("ID not assigned")
	}
	if d.Cluster != "cluster-abc" {
		t.Errorf("Cluster = %q, want cluster-abc", d.Cluster)
	}
	if d.System != "agent" {
		t.Errorf("System = %q, want agent", d.System)
	}
	if !d.Timestamp.Equal(fixedNow) {
		t.Errorf("Timestamp = %v, want %v", d.Timestamp, fixedNow)
	}
	if d.IntervalMS != 10000 {
		t.Errorf("IntervalMS = %d, want 10000", d.IntervalMS)
	}
	if d.Node.UUID != "node-1" {
		t.Errorf("Node.UUID = %q, want node-1", d.Node.UUID)
	}
}

func TestCollectPreservesProducerFields(t *testing.T) {
	c := newTestCollector()
	supplied := time.Date(2026, 8, 19, 6, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	raws := []model.RawDoc{
		{ID: "doc-7", Type: "shard_stats", Timestamp: supplied, Source: json.RawMessage(`{}`)},
	}

	docs := c.Collect(raws, "agent", 0)
	if docs[0].ID != "doc-7" {
		t.Errorf("ID = %q, want doc-7", docs[0].ID)
	}
	if !docs[0].Timestamp.Equal(supplied) {
		t.Errorf("Timestamp = %v, want %v", docs[0].Timestamp, supplied)
	}
	// Normalized to UTC even when supplied with a zone.
	if docs[0].Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp location = %v, want UTC", docs[0].Timestamp.Location())
	}
	if docs[0].IntervalMS != 0 {
		t.Errorf("IntervalMS = %d, want 0", docs[0].IntervalMS)
	}
}

func TestCollectEmptyInput(t *testing.T) {
	c := newTestCollector()
	docs := c.Collect(nil, "agent", time.Second)
	if docs == nil {
		t.Fatal("expected non-nil slice for nil input")
	}
	if len(docs) != 0 {
		t.Fatalf("got %d docs, want 0", len(docs))
	}
}

func TestCollectAssignsUniqueIDs(t *testing.T) {
	c := newTestCollector()
	raws := make([]model.RawDoc, 5)
	for i := range raws {
		raws[i] = model.RawDoc{Type: "node_stats", Source: json.RawMessage(`{}`)}
	}

	docs := c.Collect(raws, "agent", time.Second)
	seen := make(map[string]bool)
	for _, d := range docs {
		if seen[d.ID] {
			t.Fatalf("duplicate ID %q", d.ID)
		}
		seen[d.ID] = true
	}
}

func TestStatsSourceProducesValidDoc(t *testing.T) {
	s := NewStatsSource()
	raw, err := s.Collect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Type != "node_stats" {
		t.Errorf("Type = %q, want node_stats", raw.Type)
	}

	var stats map[string]any
	if err := json.Unmarshal(raw.Source, &stats); err != nil {
		t.Fatalf("invalid source JSON: %v", err)
	}
	if g, ok := stats["goroutines"].(float64); !ok || g < 1 {
		t.Errorf("goroutines = %v, want >= 1", stats["goroutines"])
	}
}
