package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/repository"
)

type gormFirmwareRepository struct {
	db *gorm.DB
}

func NewFirmwareRepository(db *gorm.DB) repository.FirmwareRepository {
	return &gormFirmwareRepository{db: db}
}

func (r *gormFirmwareRepository) LatestByType(ctx context.Context, tenantID string, deviceType string, limit int) ([]model.FirmwareRelease, error) {
	var releases []model.FirmwareRelease
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND device_type = ?", tenantID, deviceType).
		Order("released_at DESC").
		Limit(limit).
		Find(&releases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list firmware releases for type %s: %w", deviceType, err)
	}
	return releases, nil
}
