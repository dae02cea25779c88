package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/model"
)

// NewDB opens the MySQL connection holding the device registry, firmware
// catalog, anomaly signals and live health records, and migrates the schema.
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to MySQL")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Device{},
		&model.FirmwareRelease{},
		&model.AnomalySignal{},
		&model.HealthRecord{},
	); err != nil {
		log.Error().Err(err).Msg("Failed to migrate database schema")
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info().Str("database", cfg.Database.Name).Msg("MySQL connection established and schema migrated")
	return db, nil
}
