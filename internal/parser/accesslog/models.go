package accesslog

// Placeholder values used when a field is absent from the log line
const (
	UnknownMethod = "UNKNOWN"
	DefaultPath   = "/"
	EmptyField    = "-"
)

// ParsedRecord represents one combined-format access log line
type ParsedRecord struct {
	// Client info
	Origin string

	// Raw timestamp as written by the web server (e.g. "10/Jan/2024:10:00:00 +0000")
	Timestamp string

	// Request info
	Method   string
	Path     string
	Protocol string

	// Response info
	Status int
	Bytes  int64

	// Headers ("-" when absent)
	Referer   string
	UserAgent string
}
