package model

import "time"

// MetadataSummaryKey is the reserved metadata key under which a computed
// LogSummary is attached to a LogEntry. Merges must never touch other keys.
const MetadataSummaryKey = "summary"

type LogEntry struct {
	ID         string                 `json:"id"`
	DeviceID   string                 `json:"device_id"`
	TenantID   string                 `json:"tenant_id"`
	Content    string                 `json:"content"`
	UploadedAt time.Time              `json:"uploaded_at"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
