package ingestion

import (
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/domlin520/Website-analysis/internal/enrichment"
	"github.com/domlin520/Website-analysis/internal/metrics"
	"github.com/domlin520/Website-analysis/internal/parser/accesslog"

	"github.com/pterm/pterm"
)

// maxLineWarnings caps the per-file warnings for unparseable lines
const maxLineWarnings = 5

// LocationResolver resolves an origin to a location; *enrichment.Resolver implements it
type LocationResolver interface {
	Resolve(origin string) enrichment.Location
}

// fileStats counts the outcome of enriching one file
type fileStats struct {
	parsed    int64
	rejected  int64
	fallbacks int64
}

// lineProcessor parses, normalizes and resolves lines on a pool of workers
type lineProcessor struct {
	parser   *accesslog.Parser
	resolver LocationResolver
	logger   *pterm.Logger
	metrics  *metrics.PipelineMetrics
	workers  int
}

// enrichParallel processes lines in parallel using a worker pool and joins before returning.
// Output order is not the input order.
func (lp *lineProcessor) enrichParallel(source string, lines []string, now time.Time) ([]*EnrichedRecord, fileStats) {
	var stats fileStats
	if len(lines) == 0 {
		return nil, stats
	}

	numWorkers := lp.workers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(lines) {
		numWorkers = len(lines)
	}

	jobs := make(chan string, len(lines))
	results := make(chan *EnrichedRecord, len(lines))

	var rejected, fallbacks atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for line := range jobs {
				parsed, err := lp.parser.Parse(line)
				if err != nil {
					lp.metrics.ObserveLine(false)
					if n := rejected.Add(1); n <= maxLineWarnings {
						lp.logger.Warn("Failed to parse log line",
							lp.logger.Args("source", source, "error", err, "line_preview", truncate(line, 100)))
					}
					continue
				}
				lp.metrics.ObserveLine(true)

				normalized := accesslog.Normalize(parsed.Timestamp, now)
				if normalized.FellBack {
					fallbacks.Add(1)
					lp.metrics.ObserveTimestampFallback()
					lp.logger.Debug("Unparseable timestamp, using ingestion time",
						lp.logger.Args("source", source, "timestamp", parsed.Timestamp))
				}

				location := enrichment.UnknownLocation()
				if lp.resolver != nil {
					location = lp.resolver.Resolve(parsed.Origin)
				}

				results <- &EnrichedRecord{
					ParsedRecord: *parsed,
					Time:         normalized,
					Location:     location,
					Source:       source,
				}
			}
		}()
	}

	for _, line := range lines {
		jobs <- line
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	records := make([]*EnrichedRecord, 0, len(lines))
	for rec := range results {
		records = append(records, rec)
	}

	stats.parsed = int64(len(records))
	stats.rejected = rejected.Load()
	stats.fallbacks = fallbacks.Load()

	if stats.rejected > maxLineWarnings {
		lp.logger.Warn("Additional unparseable lines suppressed",
			lp.logger.Args("source", source, "suppressed", stats.rejected-maxLineWarnings, "total_rejected", stats.rejected))
	}

	return records, stats
}

// truncate shortens s to at most maxLen bytes without splitting a UTF-8 sequence,
// appending "..." when cut
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
