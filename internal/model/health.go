package model

import "time"

const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDegrading = "degrading"
)

// HealthFactors holds the five independently-scored contributors to the
// device health score. Their maxima (25/25/20/15/15) sum to 100.
type HealthFactors struct {
	Recency          int `json:"recency" gorm:"column:factor_recency"`
	ErrorRate        int `json:"error_rate" gorm:"column:factor_error_rate"`
	LogFrequency     int `json:"log_frequency" gorm:"column:factor_log_frequency"`
	FirmwareCurrency int `json:"firmware_currency" gorm:"column:factor_firmware_currency"`
	AnomalyCount     int `json:"anomaly_count" gorm:"column:factor_anomaly_count"`
}

// HealthRecord is the live health snapshot for one device. Exactly one row
// per device; recomputation upserts it.
type HealthRecord struct {
	DeviceID  string        `json:"device_id" gorm:"primaryKey;size:64"`
	Score     int           `json:"score"`
	Factors   HealthFactors `json:"factors" gorm:"embedded"`
	Trend     string        `json:"trend" gorm:"size:16"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// HealthHistoryPoint is one point of the append-only per-device score series.
type HealthHistoryPoint struct {
	DeviceID string    `json:"device_id"`
	Score    int       `json:"score"`
	Time     time.Time `json:"time"`
}
