package parser

import (
	"regexp"
	"strings"
)

var (
	timestampRegex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?`)
	ipv4Regex      = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
	hexRunRegex    = regexp.MustCompile(`\b[0-9a-fA-F]{8,}\b`)
	digitRunRegex  = regexp.MustCompile(`\d+`)
)

// Normalize rewrites an error line into a canonical template by stripping
// volatile tokens, so that structurally-similar messages compare equal.
// The transformation is intentionally lossy; it exists only for grouping.
// Order matters: timestamps, then IPs, then hex runs, then remaining digits.
func Normalize(line string) string {
	out := timestampRegex.ReplaceAllString(line, "")
	out = ipv4Regex.ReplaceAllString(out, "<IP>")
	out = hexRunRegex.ReplaceAllString(out, "<HEX>")
	out = digitRunRegex.ReplaceAllString(out, "<NUM>")
	return strings.TrimSpace(out)
}
