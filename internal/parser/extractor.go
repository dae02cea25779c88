package parser

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	// PREFIX-number identifiers such as ERR-1042 or E-17.
	prefixCodeRegex = regexp.MustCompile(`\b[A-Za-z]+-\d+\b`)
	// Short alphanumeric tokens; filtered below to those mixing letters
	// and digits (e.g. E4012, 0x1F -> no, AB12CD -> yes).
	shortCodeRegex = regexp.MustCompile(`\b[A-Za-z0-9]{4,6}\b`)
)

// ExtractTimestamps returns every ISO-8601 timestamp found in the text, in
// appearance order.
func ExtractTimestamps(text string) []string {
	return timestampRegex.FindAllString(text, -1)
}

// ExtractKeywords returns every IPv4-shaped substring and every error-code
// shaped token in the text, de-duplicated, in order of first appearance.
func ExtractKeywords(text string) []string {
	// Timestamps are masked first so their digit groups do not read as
	// error codes; spaces keep every other token at its original position.
	text = timestampRegex.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat(" ", len(m))
	})

	type match struct {
		pos   int
		token string
	}
	var matches []match

	for _, loc := range ipv4Regex.FindAllStringIndex(text, -1) {
		matches = append(matches, match{loc[0], text[loc[0]:loc[1]]})
	}
	for _, loc := range prefixCodeRegex.FindAllStringIndex(text, -1) {
		matches = append(matches, match{loc[0], text[loc[0]:loc[1]]})
	}
	for _, loc := range shortCodeRegex.FindAllStringIndex(text, -1) {
		token := text[loc[0]:loc[1]]
		if isMixedAlnum(token) {
			matches = append(matches, match{loc[0], token})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	seen := make(map[string]bool, len(matches))
	keywords := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m.token] {
			continue
		}
		seen[m.token] = true
		keywords = append(keywords, m.token)
	}
	return keywords
}

// isMixedAlnum reports whether the token contains at least one letter and
// at least one digit; pure words and pure numbers are not error codes.
func isMixedAlnum(token string) bool {
	hasLetter, hasDigit := false, false
	for _, r := range token {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}
