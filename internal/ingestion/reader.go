package ingestion

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/gzip"
	"github.com/pterm/pterm"
)

// errFileMissing marks a configured path that does not exist; the pass skips it
var errFileMissing = errors.New("log file does not exist")

// FileContent is one log file read in full
type FileContent struct {
	Path  string
	Size  int64
	Lines []string
}

// FileReader reads whole log files. Files ending in .gz are decompressed transparently.
type FileReader struct {
	logger *pterm.Logger
}

func NewFileReader(logger *pterm.Logger) *FileReader {
	return &FileReader{logger: logger}
}

// Read returns every non-empty line of the file. A missing file yields errFileMissing;
// any other failure is returned as is.
func (r *FileReader) Read(path string) (*FileContent, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errFileMissing
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	var src io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer gz.Close()
		src = gz
	}

	lines, err := splitLines(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	r.logger.Trace("Read log file", r.logger.Args("path", path, "bytes", stat.Size(), "lines", len(lines)))
	return &FileContent{Path: path, Size: stat.Size(), Lines: lines}, nil
}

// splitLines reads newline-delimited text without a line length limit.
// Trailing carriage returns and blank lines are dropped.
func splitLines(src io.Reader) ([]string, error) {
	br := bufio.NewReaderSize(src, 64*1024)
	var lines []string
	for {
		line, err := br.ReadString('\n')
		if trimmed := strings.TrimRight(line, "\r\n"); strings.TrimSpace(trimmed) != "" {
			lines = append(lines, trimmed)
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
	}
}

// ExpandPaths resolves doublestar glob patterns (e.g. /var/log/**/access*.log) into files.
// Plain paths are kept even when absent so the pass can report them as missing.
func ExpandPaths(patterns []string, logger *pterm.Logger) []string {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !strings.ContainsAny(pattern, "*?[{") {
			add(pattern)
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			logger.Warn("Invalid log path pattern", logger.Args("pattern", pattern, "error", err))
			continue
		}
		if len(matches) == 0 {
			logger.Warn("Log path pattern matched no files", logger.Args("pattern", pattern))
		}
		for _, m := range matches {
			add(m)
		}
	}
	return files
}
