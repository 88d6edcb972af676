package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveLine(true)
	m.ObserveLine(true)
	m.ObserveLine(false)
	m.ObserveLookup("cache_hit")
	m.ObserveDownload("GeoLite2-City", "success")
	m.ObservePass("no_data", 10*time.Millisecond)
	m.SetCacheEntries(7)

	if got := testutil.ToFloat64(m.LinesTotal.WithLabelValues("parsed")); got != 2 {
		t.Errorf("Expected 2 parsed lines, got %v", got)
	}
	if got := testutil.ToFloat64(m.LinesTotal.WithLabelValues("rejected")); got != 1 {
		t.Errorf("Expected 1 rejected line, got %v", got)
	}
	if got := testutil.ToFloat64(m.LookupsTotal.WithLabelValues("cache_hit")); got != 1 {
		t.Errorf("Expected 1 cache hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("GeoLite2-City", "success")); got != 1 {
		t.Errorf("Expected 1 download, got %v", got)
	}
	if got := testutil.ToFloat64(m.PassesTotal.WithLabelValues("no_data")); got != 1 {
		t.Errorf("Expected 1 no_data pass, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheEntries); got != 7 {
		t.Errorf("Expected cache gauge 7, got %v", got)
	}
}

func TestPipelineMetrics_NilReceiver(t *testing.T) {
	var m *PipelineMetrics

	// None of these may panic
	m.ObserveLine(true)
	m.ObserveTimestampFallback()
	m.ObserveLookup("resolved")
	m.SetCacheEntries(1)
	m.ObserveSwap()
	m.ObserveDownload("GeoLite2-City", "failure")
	m.ObservePass("ok", time.Second)
}
