package repository

import (
	"context"
	"time"

	"fleetpulse-backend/internal/model"
)

// DeviceRepository exposes the device registry. GetByID returns (nil, nil)
// for an unknown device.
type DeviceRepository interface {
	GetByID(ctx context.Context, id string) (*model.Device, error)
	// List returns all devices, or only the tenant's devices when tenantID
	// is non-empty.
	List(ctx context.Context, tenantID string) ([]model.Device, error)
	TouchLastSeen(ctx context.Context, id string, seenAt time.Time) error
}
