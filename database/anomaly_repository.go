package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/repository"
)

type gormAnomalyRepository struct {
	db *gorm.DB
}

func NewAnomalyRepository(db *gorm.DB) repository.AnomalyRepository {
	return &gormAnomalyRepository{db: db}
}

func (r *gormAnomalyRepository) Create(ctx context.Context, signal *model.AnomalySignal) error {
	if err := r.db.WithContext(ctx).Create(signal).Error; err != nil {
		return fmt.Errorf("failed to create anomaly signal: %w", err)
	}
	return nil
}

func (r *gormAnomalyRepository) RecentByDevice(ctx context.Context, deviceID string, limit int) ([]model.AnomalySignal, error) {
	var signals []model.AnomalySignal
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&signals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies for device %s: %w", deviceID, err)
	}
	return signals, nil
}

func (r *gormAnomalyRepository) UnresolvedCount(ctx context.Context, deviceID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AnomalySignal{}).
		Where("device_id = ? AND resolved = ?", deviceID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved anomalies for device %s: %w", deviceID, err)
	}
	return count, nil
}

func (r *gormAnomalyRepository) ListByTenant(ctx context.Context, tenantID string, deviceID string, since time.Time, limit int) ([]model.AnomalySignal, error) {
	query := r.db.WithContext(ctx).Model(&model.AnomalySignal{})
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	var signals []model.AnomalySignal
	if err := query.Order("created_at DESC").Limit(limit).Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	return signals, nil
}

// Resolve flips the resolved flag false -> true exactly once; resolving an
// unknown or already-resolved signal affects no rows.
func (r *gormAnomalyRepository) Resolve(ctx context.Context, id string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&model.AnomalySignal{}).
		Where("id = ? AND resolved = ?", id, false).
		Update("resolved", true)
	if tx.Error != nil {
		return false, fmt.Errorf("failed to resolve anomaly %s: %w", id, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}
