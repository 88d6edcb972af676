package config

import (
	"strings"

	"github.com/pterm/pterm"
)

// PtermLevel maps LOG_LEVEL (trace, debug, info, warn, error, fatal) to a pterm level.
// Unknown values mean info.
func (c *Config) PtermLevel() pterm.LogLevel {
	switch strings.ToLower(c.LogLevel) {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "warn", "warning":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	case "fatal":
		return pterm.LogLevelFatal
	default:
		return pterm.LogLevelInfo
	}
}
