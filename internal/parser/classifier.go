package parser

import (
	"regexp"
	"strings"
)

// LineClass is the classification of a single log line.
type LineClass string

const (
	LineError   LineClass = "error"
	LineWarning LineClass = "warning"
	LineInfo    LineClass = "info"
	LineNone    LineClass = "none"
)

var (
	errorWordRegex = regexp.MustCompile(`(?i)\b(error|fatal|critical|fail|exception|timeout)\b`)
	warnWordRegex  = regexp.MustCompile(`(?i)\b(warn|warning)\b`)
)

// Classify buckets one log line into error, warning or info by whole-word
// keyword matching. A line containing both an error word and a warning word
// is classified as error. Blank lines are excluded entirely (LineNone).
func Classify(line string) LineClass {
	if strings.TrimSpace(line) == "" {
		return LineNone
	}
	if errorWordRegex.MatchString(line) {
		return LineError
	}
	if warnWordRegex.MatchString(line) {
		return LineWarning
	}
	return LineInfo
}
