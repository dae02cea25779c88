package repository

import (
	"context"
	"time"

	"fleetpulse-backend/internal/model"
)

type HealthRepository interface {
	// Upsert replaces the device's live health record.
	Upsert(ctx context.Context, record *model.HealthRecord) error
	Get(ctx context.Context, deviceID string) (*model.HealthRecord, error)
}

// HealthHistoryStore is the append-only score time series. The core appends
// and reads; retention/pruning belongs to the storage collaborator.
type HealthHistoryStore interface {
	Append(ctx context.Context, point model.HealthHistoryPoint) error
	// ScoreAt returns the score of the history point nearest at or before
	// the given time, or (0, false, nil) when no such point exists.
	ScoreAt(ctx context.Context, deviceID string, at time.Time) (int, bool, error)
}
