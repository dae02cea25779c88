package model

import "time"

type FirmwareRelease struct {
	ID         string    `json:"id" gorm:"primaryKey;size:64"`
	TenantID   string    `json:"tenant_id" gorm:"size:64;index"`
	DeviceType string    `json:"device_type" gorm:"size:64;index"`
	Version    string    `json:"version" gorm:"size:64"`
	ReleasedAt time.Time `json:"released_at"`
}
