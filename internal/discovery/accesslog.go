package discovery

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/domlin520/Website-analysis/internal/database/models"
	"github.com/domlin520/Website-analysis/internal/parser/accesslog"

	"github.com/pterm/pterm"
)

// DefaultCandidates are the usual access log locations of nginx, Apache and Caddy installs
var DefaultCandidates = []string{
	"/var/log/nginx/access.log",
	"/var/log/apache2/access.log",
	"/var/log/httpd/access_log",
	"/usr/local/nginx/logs/access.log",
	"/var/log/caddy/access.log",
	"logs/access.log",
}

// probeLines bounds how far into a file the detector looks for a first record
const probeLines = 20

// AccessLogDetector finds access logs at well-known locations
type AccessLogDetector struct {
	logger     *pterm.Logger
	parser     *accesslog.Parser
	candidates []string
}

// NewAccessLogDetector creates a detector over candidates; nil means DefaultCandidates
func NewAccessLogDetector(parser *accesslog.Parser, candidates []string, logger *pterm.Logger) *AccessLogDetector {
	if candidates == nil {
		candidates = DefaultCandidates
	}
	return &AccessLogDetector{
		logger:     logger,
		parser:     parser,
		candidates: candidates,
	}
}

// Detect returns every candidate that exists, is a non-empty regular file and whose first
// non-blank line parses as an access log record
func (d *AccessLogDetector) Detect() []*models.LogSource {
	sources := []*models.LogSource{}
	d.logger.Trace("Detecting access log sources...")

	for _, path := range d.candidates {
		d.logger.Trace("Checking", d.logger.Args("path", path))
		fileInfo, err := os.Stat(path)
		if err != nil {
			d.logger.Trace("File not accessible", d.logger.Args("path", path, "error", err.Error()))
			continue
		}
		if fileInfo.IsDir() || fileInfo.Size() == 0 {
			d.logger.Trace("File is directory or empty", d.logger.Args("path", path, "size", fileInfo.Size()))
			continue
		}

		if !d.isAccessLog(path) {
			d.logger.WithCaller().Warn("Format invalid - not an access log", d.logger.Args("path", path))
			continue
		}

		d.logger.Info("Access log source detected", d.logger.Args("path", path))
		sources = append(sources, &models.LogSource{
			Name:       generateName(path),
			Path:       path,
			ParserType: d.parser.Name(),
		})
	}

	if len(sources) == 0 {
		d.logger.Warn("No access log sources found via auto-discovery",
			d.logger.Args("hint", "Set LOG_PATHS in .env to the access log files to analyse"))
	}

	return sources
}

func (d *AccessLogDetector) isAccessLog(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for i := 0; i < probeLines && scanner.Scan(); i++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		return d.parser.CanParse(line)
	}
	return false
}

// generateName turns /var/log/nginx/access.log into "nginx-access"
func generateName(path string) string {
	base := filepath.Base(path)
	fileName := strings.SplitN(base, ".", 2)[0]
	parent := filepath.Base(filepath.Dir(path))
	if parent == "." || parent == string(filepath.Separator) {
		return fileName
	}
	return parent + "-" + fileName
}
