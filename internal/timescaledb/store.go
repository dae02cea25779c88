package timescaledb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/repository"
)

const (
	healthHistoryTableName = "device_health_history"
	colTime                = "time"
	colDeviceID            = "device_id"
	colScore               = "score"
)

type timescaleHealthHistoryStore struct {
	pool      *pgxpool.Pool
	tableName string
}

// NewHealthHistoryStore creates the TimescaleDB-backed append-only score
// series. The table grows monotonically; retention pruning is left to the
// database operator.
func NewHealthHistoryStore(lc fx.Lifecycle, cfg *config.Config) (repository.HealthHistoryStore, *pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.TimescaleDB.DSN)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse TimescaleDB DSN")
		return nil, nil, fmt.Errorf("invalid TimescaleDB DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Error().Err(err).Msg("Unable to create connection pool to TimescaleDB")
		return nil, nil, fmt.Errorf("failed to connect to TimescaleDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = pool.Ping(pingCtx)
	if err != nil {
		pool.Close()
		log.Error().Err(err).Msg("Failed to ping TimescaleDB")
		return nil, nil, fmt.Errorf("failed to ping TimescaleDB: %w", err)
	}
	log.Info().Msg("TimescaleDB connection pool created and verified.")

	store := &timescaleHealthHistoryStore{
		pool:      pool,
		tableName: healthHistoryTableName,
	}

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSetup()
	err = store.ensureHypertable(setupCtx)
	if err != nil {
		pool.Close()
		log.Error().Err(err).Msg("Failed to ensure TimescaleDB hypertable exists")
		return nil, nil, fmt.Errorf("failed ensuring hypertable: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Closing TimescaleDB connection pool...")
			store.pool.Close()
			return nil
		},
	})

	return store, pool, nil
}

func (s *timescaleHealthHistoryStore) ensureHypertable(ctx context.Context) error {
	createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			%s TIMESTAMPTZ NOT NULL,
			%s TEXT NOT NULL,
			%s INTEGER NOT NULL
		);`,
		s.tableName, colTime, colDeviceID, colScore)

	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create base table %s: %w", s.tableName, err)
	}
	log.Info().Str("table", s.tableName).Msg("Ensured base table exists.")

	checkHyperSQL := `SELECT EXISTS (
        SELECT 1 FROM timescaledb_information.hypertables WHERE hypertable_name = $1
    );`
	var isHypertable bool
	_ = s.pool.QueryRow(ctx, checkHyperSQL, s.tableName).Scan(&isHypertable)

	if !isHypertable {
		log.Info().Str("table", s.tableName).Msg("Table is not a hypertable, attempting to create...")
		_, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb;")
		if err != nil {
			log.Warn().Err(err).Msg("Failed to ensure timescaledb extension exists (permission issue?). Trying to proceed...")
		}

		createHyperSQL := fmt.Sprintf(
			"SELECT create_hypertable('%s', '%s', if_not_exists => TRUE, chunk_time_interval => INTERVAL '7 days');",
			s.tableName,
			colTime,
		)
		_, err = s.pool.Exec(ctx, createHyperSQL)
		if err != nil && !strings.Contains(err.Error(), "already a hypertable") {
			return fmt.Errorf("failed to create hypertable %s: %w", s.tableName, err)
		}
		log.Info().Str("table", s.tableName).Msg("Successfully ensured hypertable.")
	} else {
		log.Info().Str("table", s.tableName).Msg("Table is already a hypertable.")
	}

	indexSQL := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_device_time ON %s (%s, %s DESC);",
		s.tableName, s.tableName, colDeviceID, colTime)
	_, err := s.pool.Exec(ctx, indexSQL)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create index on health history table (continuing)")
	}

	return nil
}

func (s *timescaleHealthHistoryStore) Append(ctx context.Context, point model.HealthHistoryPoint) error {
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3)",
		s.tableName, colTime, colDeviceID, colScore)

	if _, err := s.pool.Exec(ctx, insertSQL, point.Time, point.DeviceID, point.Score); err != nil {
		log.Error().Err(err).Str("device_id", point.DeviceID).Msg("Failed to append health history point")
		return fmt.Errorf("timescaledb insert failed: %w", err)
	}
	return nil
}

// ScoreAt returns the score of the history point nearest at or before the
// given time; (0, false, nil) when the device has no history that old.
func (s *timescaleHealthHistoryStore) ScoreAt(ctx context.Context, deviceID string, at time.Time) (int, bool, error) {
	querySQL := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 AND %s <= $2 ORDER BY %s DESC LIMIT 1",
		colScore, s.tableName, colDeviceID, colTime, colTime)

	var score int
	err := s.pool.QueryRow(ctx, querySQL, deviceID, at).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to query health history")
		return 0, false, fmt.Errorf("timescaledb query failed: %w", err)
	}
	return score, true, nil
}
