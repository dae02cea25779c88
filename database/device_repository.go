package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/repository"
)

type gormDeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) repository.DeviceRepository {
	return &gormDeviceRepository{db: db}
}

func (r *gormDeviceRepository) GetByID(ctx context.Context, id string) (*model.Device, error) {
	var device model.Device
	err := r.db.WithContext(ctx).First(&device, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device %s: %w", id, err)
	}
	return &device, nil
}

func (r *gormDeviceRepository) List(ctx context.Context, tenantID string) ([]model.Device, error) {
	query := r.db.WithContext(ctx)
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}

	var devices []model.Device
	if err := query.Order("id").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (r *gormDeviceRepository) TouchLastSeen(ctx context.Context, id string, seenAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Device{}).
		Where("id = ?", id).
		Update("last_seen_at", seenAt).Error
	if err != nil {
		return fmt.Errorf("failed to update last seen for device %s: %w", id, err)
	}
	return nil
}
