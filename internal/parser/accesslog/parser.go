package accesslog

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
)

// ErrUnparseable is returned for lines missing the minimal combined-log shape
var ErrUnparseable = errors.New("line does not match access log format")

// Combined log pattern. Only origin, [timestamp], "request", status and bytes are mandatory;
// ident/user tokens, the quoted referer and the quoted user agent may all be absent.
// Format: <origin> <ident> <user> [<datetime>] "<method> <target> <protocol>" <status> <bytes> "<referer>" "<user_agent>"
const combinedPattern = `^(\S+)(?:\s+[^\s\[]\S*)*?\s+\[([^\]]+)\]\s+"((?:[^"\\]|\\.)*)"\s+(\d+)\s+(\d+|-)` +
	`(?:\s+"((?:[^"\\]|\\.)*)")?(?:\s+"((?:[^"\\]|\\.)*)")?`

// Parser parses combined-format access log lines. It holds no mutable state and is safe for
// concurrent use.
type Parser struct {
	logger        *pterm.Logger
	combinedRegex *regexp.Regexp
}

// NewParser creates a new access log parser
func NewParser(logger *pterm.Logger) *Parser {
	return &Parser{
		logger:        logger,
		combinedRegex: regexp.MustCompile(combinedPattern),
	}
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "combined"
}

// CanParse reports whether the line has the minimal access log shape
func (p *Parser) CanParse(line string) bool {
	if line == "" {
		return false
	}
	return p.combinedRegex.MatchString(line)
}

// Parse converts one access log line into a ParsedRecord.
// Lines without the mandatory fields return ErrUnparseable; the caller decides how to report them.
func (p *Parser) Parse(line string) (*ParsedRecord, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrUnparseable
	}

	matches := p.combinedRegex.FindStringSubmatch(line)
	if matches == nil {
		return nil, ErrUnparseable
	}

	origin := matches[1]
	timestampStr := matches[2]
	request := unescapeQuoted(matches[3])
	statusStr := matches[4]
	sizeStr := matches[5]
	referer := unescapeQuoted(matches[6])
	userAgent := unescapeQuoted(matches[7])

	method, path, protocol := splitRequest(request)

	statusCode, err := strconv.Atoi(statusStr)
	if err != nil || statusCode < 100 || statusCode >= 600 {
		p.logger.Trace("Invalid status code, using 0", p.logger.Args("status", statusStr))
		statusCode = 0
	}

	var responseSize int64
	if sizeStr != EmptyField {
		if responseSize, err = strconv.ParseInt(sizeStr, 10, 64); err != nil {
			responseSize = 0
		}
	}

	if referer == "" {
		referer = EmptyField
	}
	if userAgent == "" {
		userAgent = EmptyField
	}

	record := &ParsedRecord{
		Origin:    origin,
		Timestamp: timestampStr,
		Method:    method,
		Path:      path,
		Protocol:  protocol,
		Status:    statusCode,
		Bytes:     responseSize,
		Referer:   referer,
		UserAgent: userAgent,
	}

	p.logger.Trace("Successfully parsed access log line",
		p.logger.Args(
			"origin", record.Origin,
			"method", record.Method,
			"path", record.Path,
			"status", record.Status,
		))

	return record, nil
}

// splitRequest splits the quoted request line into method, path and protocol.
// An empty request yields UNKNOWN and "/".
func splitRequest(request string) (method, path, protocol string) {
	fields := strings.Fields(request)
	if len(fields) == 0 {
		return UnknownMethod, DefaultPath, ""
	}

	method = strings.ToUpper(fields[0])
	path = DefaultPath
	if len(fields) > 1 {
		path = normalizePath(fields[1])
	}
	if len(fields) > 2 {
		protocol = fields[2]
	}
	return method, path, protocol
}

// normalizePath strips the query string and fragment from a request target
func normalizePath(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		u, err := url.Parse(target)
		if err != nil {
			return DefaultPath
		}
		target = u.Path
	}

	if idx := strings.IndexAny(target, "?#"); idx != -1 {
		target = target[:idx]
	}

	if target == "" {
		return DefaultPath
	}
	return target
}

// unescapeQuoted reverts the \" and \\ escaping Apache applies inside quoted fields
func unescapeQuoted(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(s)
}
