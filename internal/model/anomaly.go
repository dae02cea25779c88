package model

import "time"

// Anomaly types form a closed set; detectors never emit anything else.
const (
	AnomalyTypeErrorSpike    = "error_spike"
	AnomalyTypeNewPattern    = "new_pattern"
	AnomalyTypeDeviceSilent  = "device_silent"
	AnomalyTypeVolumeAnomaly = "volume_anomaly"
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// AnomalySignal is append-only once created, except for the Resolved flag
// which transitions false -> true exactly once.
type AnomalySignal struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	DeviceID  string    `json:"device_id" gorm:"size:64;index"`
	TenantID  string    `json:"tenant_id" gorm:"size:64;index"`
	Type      string    `json:"type" gorm:"size:32"`
	Severity  string    `json:"severity" gorm:"size:16"`
	Message   string    `json:"message" gorm:"size:1024"`
	LogID     string    `json:"log_id,omitempty" gorm:"size:64"`
	Details   string    `json:"details,omitempty" gorm:"type:text"`
	Resolved  bool      `json:"resolved" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
}
