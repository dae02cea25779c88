package model

import "time"

const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

type Device struct {
	ID              string     `json:"id" gorm:"primaryKey;size:64"`
	TenantID        string     `json:"tenant_id" gorm:"size:64;index"`
	Name            string     `json:"name" gorm:"size:255"`
	Type            string     `json:"type" gorm:"size:64;index"`
	Status          string     `json:"status" gorm:"size:16"`
	FirmwareVersion string     `json:"firmware_version" gorm:"size:64"`
	LastSeenAt      *time.Time `json:"last_seen_at"`
	CreatedAt       time.Time  `json:"created_at"`
}
