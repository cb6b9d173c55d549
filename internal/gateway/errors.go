package gateway

import (
	"fmt"
	"net/url"
	"regexp"
)

// APIError carries a non-2xx gateway response. The status code drives the
// retry predicate: 5xx is retryable, 4xx is terminal.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.Status, Redact(e.Body))
}

// HTTPStatus exposes the response status for retry classification.
func (e *APIError) HTTPStatus() int {
	return e.Status
}

var apiKeyPattern = regexp.MustCompile(`(?i)(apikey["']?\s*[:=]\s*["']?)[^"'&\s]+`)

// Redact masks API keys embedded in bodies or error text before logging.
func Redact(value string) string {
	return apiKeyPattern.ReplaceAllString(value, "${1}[redacted]")
}

// RedactURL masks the apikey query parameter of a URL for logging.
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Redact(raw)
	}
	query := parsed.Query()
	if query.Has("apikey") {
		query.Set("apikey", "[redacted]")
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}
