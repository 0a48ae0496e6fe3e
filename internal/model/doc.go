package model

import (
	"encoding/json"
	"time"
)

// Node identifies the daemon instance that stamped a document.
type Node struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
	Host string `json:"host,omitempty"`
}

// RawDoc is the intermediate type produced by document sources and consumed
// by the collector. Producers supply the type and payload; everything else
// is stamped during collection.
type RawDoc struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Source    json.RawMessage `json:"source"`
}

// MonitoringDoc is the export envelope — a raw document stamped with
// cluster, node, and collection metadata. After collection, ID, Cluster,
// and Timestamp are always set.
type MonitoringDoc struct {
	ID         string          `json:"id"`
	Cluster    string          `json:"cluster_uuid"`
	System     string          `json:"system"`
	Type       string          `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	IntervalMS int64           `json:"interval_ms,omitempty"`
	Node       Node            `json:"node"`
	Source     json.RawMessage `json:"source,omitempty"`
}
