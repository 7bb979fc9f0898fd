package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxHeaderValueSize = 8192

var (
	// Logged only; queries are parameterised.
	sqlPattern    = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)
	scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// requestCheck returns a client message when req must be refused.
type requestCheck func(req *http.Request) string

var requestChecks = []requestCheck{
	checkPath,
	checkHeaders,
	checkQuery,
}

func checkPath(req *http.Request) string {
	for _, p := range []string{req.URL.Path, req.URL.RawPath} {
		lower := strings.ToLower(p)
		switch {
		case strings.Contains(p, ".."), strings.Contains(lower, "%2e%2e"), strings.Contains(lower, "%252e"):
			return "path traversal detected"
		case hasNullByte(p):
			return "null byte injection detected"
		}
	}
	return ""
}

func checkHeaders(req *http.Request) string {
	for name, values := range req.Header {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "header value exceeds maximum size: " + name
			}
			if strings.ContainsAny(v, "\r\n") {
				return "header injection detected: " + name
			}
		}
	}
	return ""
}

func checkQuery(req *http.Request) string {
	for key, values := range req.URL.Query() {
		for _, v := range values {
			if hasNullByte(key) || hasNullByte(v) {
				return "null byte injection detected in query parameter"
			}
			if scriptPattern.MatchString(key) || scriptPattern.MatchString(v) {
				return "script injection detected in query parameter"
			}
		}
	}
	return ""
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

// Sanitize refuses requests with traversal sequences, null bytes, header
// injection or script payloads in the query string. SQL-looking query
// values are only logged.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, check := range requestChecks {
				if msg := check(req); msg != "" {
					return echo.NewHTTPError(http.StatusBadRequest, msg)
				}
			}

			for key, values := range req.URL.Query() {
				for _, v := range values {
					if sqlPattern.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", req.URL.Path).
							Str("remote_ip", c.RealIP()).
							Msg("potential SQL injection pattern in query parameter")
					}
				}
			}
			return next(c)
		}
	}
}

// SanitizeString drops null bytes and control characters except newline,
// carriage return and tab, and trims the result. Handlers run free-text
// fields through it before they reach a service.
func SanitizeString(input string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r == '\x00' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, input))
}
