package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/repository"
)

type gormHealthRepository struct {
	db *gorm.DB
}

func NewHealthRepository(db *gorm.DB) repository.HealthRepository {
	return &gormHealthRepository{db: db}
}

// Upsert keeps exactly one live record per device; each recomputation
// replaces the previous snapshot.
func (r *gormHealthRepository) Upsert(ctx context.Context, record *model.HealthRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			UpdateAll: true,
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert health record for device %s: %w", record.DeviceID, err)
	}
	return nil
}

func (r *gormHealthRepository) Get(ctx context.Context, deviceID string) (*model.HealthRecord, error) {
	var record model.HealthRecord
	err := r.db.WithContext(ctx).First(&record, "device_id = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch health record for device %s: %w", deviceID, err)
	}
	return &record, nil
}
