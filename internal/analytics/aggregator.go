package analytics

import (
	"sort"
	"strconv"
	"time"

	"github.com/domlin520/Website-analysis/internal/enrichment"
	"github.com/domlin520/Website-analysis/internal/ingestion"
)

// recentWindow is the span counted by RequestsLast24h
const recentWindow = 24 * time.Hour

// CountEntry is one row of a ranked frequency list
type CountEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// HourlyBucket holds the requests whose time falls in one hour of the report zone
type HourlyBucket struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// RegionStats is one region of the geographic distribution with its cities
type RegionStats struct {
	Region string       `json:"region"`
	Count  int64        `json:"count"`
	Cities []CountEntry `json:"cities"`
}

// Metrics summarizes request volume and the most frequent request attributes
type Metrics struct {
	GeneratedAt        time.Time      `json:"generated_at"`
	TotalRequests      int64          `json:"total_requests"`
	RequestsLast24h    int64          `json:"requests_last_24h"`
	UniqueOrigins      int            `json:"unique_origins"`
	TimestampFallbacks int64          `json:"timestamp_fallbacks"`
	PopularPaths       []CountEntry   `json:"popular_paths"`
	StatusCodes        []CountEntry   `json:"status_codes"`
	StatusClasses      []CountEntry   `json:"status_classes"`
	UserAgents         []CountEntry   `json:"user_agents"`
	Hourly             []HourlyBucket `json:"hourly"`
}

// TrafficReport summarizes where requests come from: referer source, device and location
type TrafficReport struct {
	GeneratedAt         time.Time     `json:"generated_at"`
	TotalRequests       int64         `json:"total_requests"`
	Sources             []CountEntry  `json:"sources"`
	SearchEngines       []CountEntry  `json:"search_engines"`
	Devices             []CountEntry  `json:"devices"`
	Geo                 []RegionStats `json:"geo"`
	UnresolvedLocations int64         `json:"unresolved_locations"`
}

// counter tallies keys and remembers first-seen order for tie-breaking
type counter struct {
	index   map[string]int
	entries []CountEntry
}

func newCounter() *counter {
	return &counter{index: make(map[string]int)}
}

func (c *counter) add(key string) {
	if i, ok := c.index[key]; ok {
		c.entries[i].Count++
		return
	}
	c.index[key] = len(c.entries)
	c.entries = append(c.entries, CountEntry{Key: key, Count: 1})
}

// ranked returns the entries by descending count; equal counts keep first-seen order
func (c *counter) ranked() []CountEntry {
	out := make([]CountEntry, len(c.entries))
	copy(out, c.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// TopN truncates a ranked list to n entries; n <= 0 keeps everything
func TopN(entries []CountEntry, n int) []CountEntry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[:n]
}

// AggregateMetrics reduces records into volume, frequency and hourly statistics.
// Records whose timestamp fell back to the ingestion time are counted everywhere except
// RequestsLast24h, and are reported in TimestampFallbacks.
func AggregateMetrics(records []*ingestion.EnrichedRecord, now time.Time, loc *time.Location) *Metrics {
	if loc == nil {
		loc = time.UTC
	}

	paths := newCounter()
	statuses := newCounter()
	classes := newCounter()
	agents := newCounter()
	origins := make(map[string]struct{})
	hours := make(map[time.Time]int64)

	m := &Metrics{GeneratedAt: now, TotalRequests: int64(len(records))}

	for _, r := range records {
		paths.add(r.Path)
		statuses.add(strconv.Itoa(r.Status))
		classes.add(statusClass(r.Status))
		agents.add(r.UserAgent)
		origins[r.Origin] = struct{}{}

		if r.Time.FellBack {
			m.TimestampFallbacks++
		} else if age := now.Sub(r.Time.Time); age < recentWindow {
			m.RequestsLast24h++
		}

		hours[truncateHour(r.Time.Time, loc)]++
	}

	m.UniqueOrigins = len(origins)
	m.PopularPaths = paths.ranked()
	m.StatusCodes = statuses.ranked()
	m.StatusClasses = classes.ranked()
	m.UserAgents = agents.ranked()

	m.Hourly = make([]HourlyBucket, 0, len(hours))
	for hour, count := range hours {
		m.Hourly = append(m.Hourly, HourlyBucket{Hour: hour, Count: count})
	}
	sort.Slice(m.Hourly, func(i, j int) bool {
		return m.Hourly[i].Hour.Before(m.Hourly[j].Hour)
	})

	return m
}

// AggregateTraffic reduces records into source, device and geographic distributions
func AggregateTraffic(records []*ingestion.EnrichedRecord, now time.Time) *TrafficReport {
	sources := newCounter()
	engines := newCounter()
	devices := newCounter()
	regions := newCounter()
	cities := make(map[string]*counter)

	report := &TrafficReport{GeneratedAt: now, TotalRequests: int64(len(records))}

	for _, r := range records {
		source, engine := ClassifySource(r.Referer)
		sources.add(string(source))
		if source == SourceSearch {
			engines.add(engine)
		}

		devices.add(string(ClassifyDevice(r.UserAgent)))

		if !hasRegion(r.Location) {
			report.UnresolvedLocations++
			continue
		}
		regions.add(r.Location.Region)
		cc, ok := cities[r.Location.Region]
		if !ok {
			cc = newCounter()
			cities[r.Location.Region] = cc
		}
		// An unnamed city still counts toward its region
		if r.Location.City != "" && r.Location.City != enrichment.UnknownName {
			cc.add(r.Location.City)
		}
	}

	report.Sources = sources.ranked()
	report.SearchEngines = engines.ranked()
	report.Devices = devices.ranked()

	ranked := regions.ranked()
	report.Geo = make([]RegionStats, 0, len(ranked))
	for _, region := range ranked {
		report.Geo = append(report.Geo, RegionStats{
			Region: region.Key,
			Count:  region.Count,
			Cities: cities[region.Key].ranked(),
		})
	}

	return report
}

// hasRegion reports whether a location belongs in the geographic distribution
func hasRegion(loc enrichment.Location) bool {
	return loc.Known() && loc.Region != "" && loc.Region != enrichment.UnknownName
}

// truncateHour returns the start of the wall-clock hour containing t in loc
func truncateHour(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
}

func statusClass(status int) string {
	if status < 100 || status >= 600 {
		return "invalid"
	}
	return strconv.Itoa(status/100) + "xx"
}
