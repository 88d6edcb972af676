package accesslog

import (
	"testing"
	"time"
)

func TestNormalize_Valid(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		raw      string
		expected string
	}{
		{raw: "10/Jan/2024:10:00:00 +0000", expected: "2024-01-10T10:00:00Z"},
		{raw: "15/May/2025:12:06:30 +0200", expected: "2025-05-15T12:06:30+02:00"},
		{raw: "29/Feb/2024:23:59:59 -0530", expected: "2024-02-29T23:59:59-05:30"},
		{raw: "01/Dec/1999:00:00:00 +0800", expected: "1999-12-01T00:00:00+08:00"},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			result := Normalize(tc.raw, now)
			if result.FellBack {
				t.Fatalf("Expected %q to normalize, got fallback", tc.raw)
			}
			if result.ISO() != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result.ISO())
			}

			// Round trip back into the access log layout
			back := result.Time.Format("02/Jan/2006:15:04:05 -0700")
			if back != tc.raw {
				t.Errorf("Expected round trip %q, got %q", tc.raw, back)
			}

			// Deterministic: same input, same instant
			again := Normalize(tc.raw, now.Add(time.Hour))
			if !again.Time.Equal(result.Time) {
				t.Errorf("Expected deterministic result, got %v and %v", result.Time, again.Time)
			}
		})
	}
}

func TestNormalize_MatchesStdlibLayout(t *testing.T) {
	raw := "15/May/2025:12:06:30 +0000"
	expected, _ := time.Parse("02/Jan/2006:15:04:05 -0700", raw)

	result := Normalize(raw, time.Now())
	if !result.Time.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result.Time)
	}
}

func TestNormalize_FallsBackToNow(t *testing.T) {
	now := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []string{
		"",
		"10/Jan/2024:10:00:00",        // missing zone
		"10/Foo/2024:10:00:00 +0000",  // unknown month
		"10/jan/2024:10:00:00 +0000",  // month table is case-sensitive
		"xx/Jan/2024:10:00:00 +0000",  // non-numeric day
		"10/Jan/2024:10:aa:00 +0000",  // non-numeric minute
		"10/Jan/2024 10:00:00 +0000",  // missing date/time separator
		"10/Jan:10:00:00 +0000",       // missing year
		"10/Jan/2024:10:00 +0000",     // missing seconds
		"10/Jan/2024:10:00:00 0000",   // zone without sign
		"10/Jan/2024:10:00:00 +00:00", // zone with colon
		"32/Jan/2024:10:00:00 +0000",  // day out of range
		"30/Feb/2024:10:00:00 +0000",  // day out of range for month
		"10/Jan/2024:24:00:00 +0000",  // hour out of range
		"31/Dec/2016:23:59:60 +0000",  // leap second
		"2024-01-10T10:00:00Z",        // different format
	}

	for _, raw := range tests {
		result := Normalize(raw, now)
		if !result.FellBack {
			t.Errorf("Expected fallback for %q", raw)
		}
		if !result.Time.Equal(now) {
			t.Errorf("Expected fallback time %v for %q, got %v", now, raw, result.Time)
		}
	}
}
