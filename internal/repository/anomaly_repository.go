package repository

import (
	"context"
	"time"

	"fleetpulse-backend/internal/model"
)

type AnomalyRepository interface {
	Create(ctx context.Context, signal *model.AnomalySignal) error
	RecentByDevice(ctx context.Context, deviceID string, limit int) ([]model.AnomalySignal, error)
	UnresolvedCount(ctx context.Context, deviceID string) (int64, error)
	// ListByTenant lists signals newest first, optionally filtered by
	// tenant, device and a lower creation-time bound (zero = unbounded).
	ListByTenant(ctx context.Context, tenantID string, deviceID string, since time.Time, limit int) ([]model.AnomalySignal, error)
	// Resolve flips the resolved flag false -> true. It returns (false, nil)
	// when the signal does not exist or is already resolved.
	Resolve(ctx context.Context, id string) (bool, error)
}
