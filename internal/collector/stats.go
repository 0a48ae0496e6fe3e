package collector

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/crimson-sun/beacon/internal/model"
)

// StatsSource produces runtime self-stats documents for the daemon's own
// monitoring stream.
type StatsSource struct {
	start time.Time
}

// NewStatsSource creates a StatsSource. Uptime is measured from this call.
func NewStatsSource() *StatsSource {
	return &StatsSource{start: time.Now()}
}

type runtimeStats struct {
	Goroutines    int    `json:"goroutines"`
	HeapAllocB    uint64 `json:"heap_alloc_bytes"`
	HeapSysB      uint64 `json:"heap_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Collect returns a single raw document describing the daemon's current
// runtime state.
func (s *StatsSource) Collect() (model.RawDoc, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := runtimeStats{
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocB:    m.HeapAlloc,
		HeapSysB:      m.HeapSys,
		GCCycles:      m.NumGC,
		UptimeSeconds: int64(time.Since(s.start).Seconds()),
	}
	source, err := json.Marshal(stats)
	if err != nil {
		return model.RawDoc{}, fmt.Errorf("stats source: marshal: %w", err)
	}
	return model.RawDoc{Type: "node_stats", Source: source}, nil
}
