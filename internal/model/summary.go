package model

// Timespan holds the first and last ISO-8601 timestamps found in a log's
// text, in appearance order (a textual scan, not a chronological sort).
type Timespan struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// LogSummary is a derived, non-authoritative view of a LogEntry. It is
// recomputed on demand and attached to the entry's metadata so it need not
// be computed twice; the LogEntry remains the source of truth.
type LogSummary struct {
	LineCount   int       `json:"line_count"`
	ErrorCount  int       `json:"error_count"`
	WarnCount   int       `json:"warn_count"`
	InfoCount   int       `json:"info_count"`
	ErrorRate   float64   `json:"error_rate"`
	TopErrors   []string  `json:"top_errors,omitempty"`
	TopWarnings []string  `json:"top_warnings,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	Timespan    *Timespan `json:"timespan,omitempty"`
	OneLiner    string    `json:"one_liner"`
}
