package media

import (
	"fmt"
	"regexp"
	"strings"
)

// signature maps a base64 prefix to the MIME type of the decoded bytes.
// The prefixes are the base64 renderings of well-known magic numbers, so
// classification happens without decoding the payload.
type signature struct {
	prefix string
	mime   string
}

var signatures = []signature{
	{prefix: "/9j/", mime: "image/jpeg"},
	{prefix: "iVBORw", mime: "image/png"},
	{prefix: "R0lGO", mime: "image/gif"},
	{prefix: "UklGR", mime: "image/webp"},
	{prefix: "Qk0", mime: "image/bmp"},
	{prefix: "Qk1", mime: "image/bmp"},
	{prefix: "JVBERi", mime: "application/pdf"},
	{prefix: "SUQz", mime: "audio/mpeg"},
	{prefix: "//uQ", mime: "audio/mpeg"},
	{prefix: "//sw", mime: "audio/mpeg"},
	{prefix: "T2dn", mime: "audio/ogg"},
	{prefix: "AAAAGG", mime: "video/mp4"},
	{prefix: "AAAAFG", mime: "video/mp4"},
	{prefix: "AAAAHG", mime: "video/mp4"},
}

const (
	octetStream = "application/octet-stream"
	// minBase64Len filters out short strings that happen to match the
	// base64 alphabet but cannot be a real media payload.
	minBase64Len = 100
)

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)

// IsValidBase64 reports whether content looks like a plausible base64 media
// payload: correct alphabet, padded length, and a realistic minimum size.
func IsValidBase64(content string) bool {
	if len(content) < minBase64Len {
		return false
	}
	if len(content)%4 != 0 {
		return false
	}
	return base64Pattern.MatchString(content)
}

// ClassifyBase64 resolves the MIME type of a raw base64 payload from its
// signature prefix, falling back to application/octet-stream.
func ClassifyBase64(content string) string {
	for _, sig := range signatures {
		if strings.HasPrefix(content, sig.prefix) {
			return sig.mime
		}
	}
	return octetStream
}

var dataURLPattern = regexp.MustCompile(`^data:([a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*/[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*);base64,(.*)$`)

// ParseDataURL splits a data:<mime>;base64,<payload> string into its MIME
// and payload segments.
func ParseDataURL(content string) (mime, payload string, err error) {
	matches := dataURLPattern.FindStringSubmatch(content)
	if matches == nil {
		return "", "", ErrMalformedDataURL
	}
	return matches[1], matches[2], nil
}

// EstimateDecodedSize approximates the decoded byte size of a base64 payload.
func EstimateDecodedSize(payload string) int64 {
	trimmed := strings.TrimRight(payload, "=")
	padding := len(payload) - len(trimmed)
	return int64(len(payload))*3/4 - int64(padding)
}

// SizeLabel renders a byte count for user-facing display.
func SizeLabel(size int64) string {
	switch {
	case size >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size >= 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d B", size)
	}
}
