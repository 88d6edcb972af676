package accesslog

import (
	"strconv"
	"strings"
	"time"
)

// months maps the access log month abbreviation to its calendar month
var months = map[string]time.Month{
	"Jan": time.January,
	"Feb": time.February,
	"Mar": time.March,
	"Apr": time.April,
	"May": time.May,
	"Jun": time.June,
	"Jul": time.July,
	"Aug": time.August,
	"Sep": time.September,
	"Oct": time.October,
	"Nov": time.November,
	"Dec": time.December,
}

// NormalizedTime is the outcome of timestamp normalization.
// FellBack is set when the raw value was rejected and Time holds the substitute "now".
type NormalizedTime struct {
	Time     time.Time
	FellBack bool
}

// ISO returns the canonical ISO-8601 form, preserving the original UTC offset
func (n NormalizedTime) ISO() string {
	return n.Time.Format(time.RFC3339)
}

// Normalize converts a "DD/Mon/YYYY:HH:MM:SS +ZZZZ" timestamp into an absolute instant.
// Any missing token, non-numeric component, unknown month or out-of-range value falls back to now.
func Normalize(raw string, now time.Time) NormalizedTime {
	if t, ok := parseTimestamp(raw); ok {
		return NormalizedTime{Time: t}
	}
	return NormalizedTime{Time: now, FellBack: true}
}

func parseTimestamp(raw string) (time.Time, bool) {
	// "10/Jan/2024:10:00:00 +0000" -> ["10/Jan/2024:10:00:00", "+0000"]
	parts := strings.Fields(raw)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	dateTime, zone := parts[0], parts[1]

	// "10/Jan/2024:10:00:00" -> date "10/Jan/2024", clock "10:00:00"
	date, clock, ok := strings.Cut(dateTime, ":")
	if !ok {
		return time.Time{}, false
	}

	dateParts := strings.Split(date, "/")
	if len(dateParts) != 3 {
		return time.Time{}, false
	}
	day, ok := atoiRange(dateParts[0], 1, 31)
	if !ok {
		return time.Time{}, false
	}
	month, ok := months[dateParts[1]]
	if !ok {
		return time.Time{}, false
	}
	year, ok := atoiRange(dateParts[2], 1, 9999)
	if !ok {
		return time.Time{}, false
	}

	clockParts := strings.Split(clock, ":")
	if len(clockParts) != 3 {
		return time.Time{}, false
	}
	hour, ok := atoiRange(clockParts[0], 0, 23)
	if !ok {
		return time.Time{}, false
	}
	minute, ok := atoiRange(clockParts[1], 0, 59)
	if !ok {
		return time.Time{}, false
	}
	second, ok := atoiRange(clockParts[2], 0, 59)
	if !ok {
		return time.Time{}, false
	}

	offset, ok := parseOffset(zone)
	if !ok {
		return time.Time{}, false
	}

	// Reject dates such as 31/Feb that time.Date would silently roll over
	if day > daysIn(month, year) {
		return time.Time{}, false
	}

	loc := time.FixedZone("", offset)
	return time.Date(year, month, day, hour, minute, second, 0, loc), true
}

// parseOffset converts "+hhmm" / "-hhmm" to seconds east of UTC
func parseOffset(zone string) (int, bool) {
	if len(zone) != 5 || (zone[0] != '+' && zone[0] != '-') {
		return 0, false
	}
	hours, ok := atoiRange(zone[1:3], 0, 23)
	if !ok {
		return 0, false
	}
	minutes, ok := atoiRange(zone[3:5], 0, 59)
	if !ok {
		return 0, false
	}

	offset := hours*3600 + minutes*60
	if zone[0] == '-' {
		offset = -offset
	}
	return offset, true
}

func atoiRange(s string, lo, hi int) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < lo || v > hi {
		return 0, false
	}
	return v, true
}

func daysIn(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
