package repository

import (
	"context"
	"time"

	"fleetpulse-backend/internal/model"
)

// LogRepository is the read/write surface the analytics core requires over
// stored device logs. GetByID returns (nil, nil) when the log is unknown.
type LogRepository interface {
	GetByID(ctx context.Context, id string) (*model.LogEntry, error)
	// RecentByDevice returns up to limit logs for the device, most recent
	// first.
	RecentByDevice(ctx context.Context, deviceID string, limit int) ([]model.LogEntry, error)
	// UploadTimesSince returns the upload timestamps of the device's logs
	// at or after since, ascending.
	UploadTimesSince(ctx context.Context, deviceID string, since time.Time) ([]time.Time, error)
	// Count returns the total number of logs stored for the device.
	Count(ctx context.Context, deviceID string) (int64, error)
	// MergeMetadata sets one metadata key on the log, preserving all other
	// existing keys.
	MergeMetadata(ctx context.Context, id string, key string, value interface{}) error
	Store(ctx context.Context, entry *model.LogEntry) error
}
