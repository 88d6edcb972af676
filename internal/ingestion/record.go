package ingestion

import (
	"github.com/domlin520/Website-analysis/internal/enrichment"
	"github.com/domlin520/Website-analysis/internal/parser/accesslog"
)

// EnrichedRecord is a parsed line with its normalized time and resolved location.
// Records live for one ingestion pass and are never cached.
type EnrichedRecord struct {
	accesslog.ParsedRecord
	Time     accesslog.NormalizedTime
	Location enrichment.Location
	Source   string
}
