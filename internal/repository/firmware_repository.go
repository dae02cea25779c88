package repository

import (
	"context"

	"fleetpulse-backend/internal/model"
)

type FirmwareRepository interface {
	// LatestByType returns up to limit firmware releases for the device
	// type within the tenant, newest release first.
	LatestByType(ctx context.Context, tenantID string, deviceType string, limit int) ([]model.FirmwareRelease, error)
}
