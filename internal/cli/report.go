package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/domlin520/Website-analysis/internal/analytics"
	"github.com/domlin520/Website-analysis/internal/ingestion"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics [paths...]",
	Short: "Request volume, popular paths, status codes and hourly traffic",
	Long: `Read the access logs once and print volume metrics.

Examples:
  report metrics
  report metrics /var/log/nginx/access.log --top 20
  report metrics "/var/log/nginx/**/access.log*" --output json`,
	RunE: runMetrics,
}

var trafficCmd = &cobra.Command{
	Use:   "traffic [paths...]",
	Short: "Traffic sources, devices and geographic distribution",
	Long: `Read the access logs once and print where the traffic comes from.

Examples:
  report traffic
  report traffic /var/log/nginx/access.log --no-geo`,
	RunE: runTraffic,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(trafficCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	m, err := application.Service.IngestAndAggregateMetrics(cmd.Context(), application.Paths)
	if err != nil {
		return describeError(err)
	}
	if outputFmt == "json" {
		return writeJSON(cmd.OutOrStdout(), m)
	}
	return renderMetrics(cmd.OutOrStdout(), m, topN, application.Location)
}

func runTraffic(cmd *cobra.Command, args []string) error {
	report, err := application.Service.IngestAndAggregateTraffic(cmd.Context(), application.Paths)
	if err != nil {
		return describeError(err)
	}
	if outputFmt == "json" {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	return renderTraffic(cmd.OutOrStdout(), report, topN)
}

func describeError(err error) error {
	if errors.Is(err, ingestion.ErrNoData) {
		return fmt.Errorf("no log data: every path was missing, empty or unparseable")
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderMetrics(w io.Writer, m *analytics.Metrics, top int, loc *time.Location) error {
	summary := [][]string{
		{"Metric", "Value"},
		{"Total requests", strconv.FormatInt(m.TotalRequests, 10)},
		{"Requests last 24h", strconv.FormatInt(m.RequestsLast24h, 10)},
		{"Unique origins", strconv.Itoa(m.UniqueOrigins)},
		{"Timestamp fallbacks", strconv.FormatInt(m.TimestampFallbacks, 10)},
	}
	sections := []struct {
		title string
		data  [][]string
	}{
		{"Summary", summary},
		{"Popular paths", countTable("Path", analytics.TopN(m.PopularPaths, top))},
		{"Status codes", countTable("Status", analytics.TopN(m.StatusCodes, top))},
		{"Status classes", countTable("Class", m.StatusClasses)},
		{"User agents", countTable("User agent", analytics.TopN(m.UserAgents, top))},
		{"Hourly (" + loc.String() + ")", hourlyTable(m.Hourly)},
	}

	for _, s := range sections {
		if err := renderSection(w, s.title, s.data); err != nil {
			return err
		}
	}
	return nil
}

func renderTraffic(w io.Writer, report *analytics.TrafficReport, top int) error {
	if err := renderSection(w, "Traffic sources", countTable("Source", report.Sources)); err != nil {
		return err
	}
	if err := renderSection(w, "Search engines", countTable("Engine", report.SearchEngines)); err != nil {
		return err
	}
	if err := renderSection(w, "Devices", countTable("Device", report.Devices)); err != nil {
		return err
	}

	geo := [][]string{{"Region", "City", "Requests"}}
	for i, region := range report.Geo {
		if top > 0 && i >= top {
			break
		}
		geo = append(geo, []string{region.Region, "", strconv.FormatInt(region.Count, 10)})
		for _, city := range analytics.TopN(region.Cities, top) {
			geo = append(geo, []string{"", city.Key, strconv.FormatInt(city.Count, 10)})
		}
	}
	geo = append(geo, []string{"(unresolved)", "", strconv.FormatInt(report.UnresolvedLocations, 10)})
	return renderSection(w, "Geographic distribution", geo)
}

func renderSection(w io.Writer, title string, data [][]string) error {
	if _, err := fmt.Fprintln(w, pterm.DefaultSection.Sprint(title)); err != nil {
		return err
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

func countTable(header string, entries []analytics.CountEntry) [][]string {
	data := make([][]string, 0, len(entries)+1)
	data = append(data, []string{header, "Requests"})
	for _, e := range entries {
		data = append(data, []string{e.Key, strconv.FormatInt(e.Count, 10)})
	}
	return data
}

func hourlyTable(buckets []analytics.HourlyBucket) [][]string {
	data := make([][]string, 0, len(buckets)+1)
	data = append(data, []string{"Hour", "Requests"})
	for _, b := range buckets {
		data = append(data, []string{b.Hour.Format("2006-01-02 15:00 -0700"), strconv.FormatInt(b.Count, 10)})
	}
	return data
}
