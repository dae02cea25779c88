package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/repository"
)

// Factor maxima. They sum to 100; the final clamp is defensive only.
const (
	maxRecencyScore   = 25.0
	maxErrorRateScore = 25.0
	maxFrequencyScore = 20.0
	maxFirmwareScore  = 15.0
	maxAnomalyScore   = 15.0
)

// trendLookback is how far back the previous score is read for the trend
// classification.
const trendLookback = 24 * time.Hour

// firmwareCatalogDepth bounds how many releases are ranked when judging
// firmware currency; anything 2+ releases behind scores zero anyway.
const firmwareCatalogDepth = 10

type HealthService interface {
	// ComputeHealth recomputes, persists and returns the device's health
	// record, appending one history point. Returns (nil, nil) when the
	// device does not exist.
	ComputeHealth(ctx context.Context, deviceID string) (*model.HealthRecord, error)
	// ComputeAllHealth recomputes health for every device (optionally
	// scoped to a tenant) and returns the records sorted ascending by
	// score, worst-health devices first.
	ComputeAllHealth(ctx context.Context, tenantID string) ([]model.HealthRecord, error)
}

type healthService struct {
	deviceRepo   repository.DeviceRepository
	logRepo      repository.LogRepository
	anomalyRepo  repository.AnomalyRepository
	firmwareRepo repository.FirmwareRepository
	healthRepo   repository.HealthRepository
	historyStore repository.HealthHistoryStore
	cfg          config.AnalysisConfig
	now          func() time.Time
}

func NewHealthService(
	cfg *config.Config,
	deviceRepo repository.DeviceRepository,
	logRepo repository.LogRepository,
	anomalyRepo repository.AnomalyRepository,
	firmwareRepo repository.FirmwareRepository,
	healthRepo repository.HealthRepository,
	historyStore repository.HealthHistoryStore,
) HealthService {
	return &healthService{
		deviceRepo:   deviceRepo,
		logRepo:      logRepo,
		anomalyRepo:  anomalyRepo,
		firmwareRepo: firmwareRepo,
		healthRepo:   healthRepo,
		historyStore: historyStore,
		cfg:          cfg.Analysis,
		now:          time.Now,
	}
}

func (s *healthService) ComputeHealth(ctx context.Context, deviceID string) (*model.HealthRecord, error) {
	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device %s: %w", deviceID, err)
	}
	if device == nil {
		log.Debug().Str("device_id", deviceID).Msg("Device not found, no health to compute")
		return nil, nil
	}

	now := s.now()
	recent, err := s.logRepo.RecentByDevice(ctx, deviceID, s.cfg.HealthLogWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent logs for device %s: %w", deviceID, err)
	}

	recency := s.recencyFactor(device, now)
	errorRate := s.errorRateFactor(recent)
	frequency := s.frequencyFactor(recent, now)

	firmware, err := s.firmwareFactor(ctx, device)
	if err != nil {
		return nil, err
	}
	anomaly, err := s.anomalyFactor(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	total := recency + errorRate + frequency + firmware + anomaly
	score := int(math.Round(total))
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	trend := s.classifyTrend(ctx, deviceID, score, now)

	record := &model.HealthRecord{
		DeviceID: deviceID,
		Score:    score,
		Factors: model.HealthFactors{
			Recency:          int(math.Round(recency)),
			ErrorRate:        int(math.Round(errorRate)),
			LogFrequency:     int(math.Round(frequency)),
			FirmwareCurrency: int(math.Round(firmware)),
			AnomalyCount:     int(math.Round(anomaly)),
		},
		Trend:     trend,
		UpdatedAt: now,
	}

	if err := s.healthRepo.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to upsert health record for device %s: %w", deviceID, err)
	}
	if err := s.historyStore.Append(ctx, model.HealthHistoryPoint{DeviceID: deviceID, Score: score, Time: now}); err != nil {
		return nil, fmt.Errorf("failed to append health history for device %s: %w", deviceID, err)
	}

	log.Debug().
		Str("device_id", deviceID).
		Int("score", score).
		Str("trend", trend).
		Msg("Health recomputed")
	return record, nil
}

func (s *healthService) ComputeAllHealth(ctx context.Context, tenantID string) ([]model.HealthRecord, error) {
	devices, err := s.deviceRepo.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	records := make([]model.HealthRecord, 0, len(devices))
	for _, device := range devices {
		record, err := s.ComputeHealth(ctx, device.ID)
		if err != nil {
			log.Error().Err(err).Str("device_id", device.ID).Msg("Health computation failed for device, continuing")
			continue
		}
		if record != nil {
			records = append(records, *record)
		}
	}

	// Worst health first, the triage ordering the fleet view relies on.
	sort.SliceStable(records, func(i, j int) bool { return records[i].Score < records[j].Score })
	return records, nil
}

// recencyFactor scores how recently the device was seen. Online devices get
// full credit; offline devices decay linearly, faster over the first day.
func (s *healthService) recencyFactor(device *model.Device, now time.Time) float64 {
	if device.Status == model.DeviceStatusOnline {
		return maxRecencyScore
	}
	if device.LastSeenAt == nil {
		return 0
	}
	hours := now.Sub(*device.LastSeenAt).Hours()
	switch {
	case hours <= 1:
		return maxRecencyScore
	case hours <= 24:
		return maxRecencyScore * (1 - hours/48)
	default:
		return math.Max(0, maxRecencyScore*(1-hours/168))
	}
}

// errorRateFactor pools all lines of the recent logs and scores the pooled
// error rate. No lines at all means nothing to hold against the device.
func (s *healthService) errorRateFactor(recent []model.LogEntry) float64 {
	totalLines, totalErrors := 0, 0
	for _, entry := range recent {
		_, lines, errorLines := lineStats(entry.Content)
		totalLines += lines
		totalErrors += errorLines
	}
	if totalLines == 0 {
		return maxErrorRateScore
	}
	r := float64(totalErrors) / float64(totalLines)
	if r >= 0.5 {
		return 0
	}
	return math.Round(maxErrorRateScore * (1 - 2*r))
}

// frequencyFactor compares time since the last upload against the device's
// own upload cadence. A single log is not enough to judge, so no penalty.
func (s *healthService) frequencyFactor(recent []model.LogEntry, now time.Time) float64 {
	switch len(recent) {
	case 0:
		return maxFrequencyScore / 2
	case 1:
		return maxFrequencyScore
	}

	// recent is most-recent-first.
	newest := recent[0].UploadedAt
	oldest := recent[len(recent)-1].UploadedAt
	mean := newest.Sub(oldest) / time.Duration(len(recent)-1)
	if mean <= 0 {
		return maxFrequencyScore
	}

	ratio := float64(now.Sub(newest)) / float64(mean)
	switch {
	case ratio <= 1.5:
		return maxFrequencyScore
	case ratio >= 3:
		return 0
	default:
		return maxFrequencyScore * (3 - ratio) / 1.5
	}
}

// firmwareFactor ranks the device's firmware version against the known
// releases for its type within its tenant.
func (s *healthService) firmwareFactor(ctx context.Context, device *model.Device) (float64, error) {
	// Without a version or tenant there is nothing to compare against.
	if device.FirmwareVersion == "" || device.TenantID == "" {
		return maxFirmwareScore, nil
	}

	releases, err := s.firmwareRepo.LatestByType(ctx, device.TenantID, device.Type, firmwareCatalogDepth)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch firmware catalog for device %s: %w", device.ID, err)
	}
	if len(releases) == 0 {
		return maxFirmwareScore, nil
	}

	for i, release := range releases {
		if release.Version != device.FirmwareVersion {
			continue
		}
		switch i {
		case 0:
			return maxFirmwareScore, nil
		case 1:
			return math.Round(maxFirmwareScore * 0.5), nil
		default:
			return 0, nil
		}
	}
	// Version not in the catalog at all.
	return 0, nil
}

func (s *healthService) anomalyFactor(ctx context.Context, deviceID string) (float64, error) {
	unresolved, err := s.anomalyRepo.UnresolvedCount(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved anomalies for device %s: %w", deviceID, err)
	}
	return math.Max(0, maxAnomalyScore-5*float64(unresolved)), nil
}

// classifyTrend compares the current score to the one recorded roughly a day
// ago. History read failures degrade to stable rather than failing the run.
func (s *healthService) classifyTrend(ctx context.Context, deviceID string, score int, now time.Time) string {
	previous, ok, err := s.historyStore.ScoreAt(ctx, deviceID, now.Add(-trendLookback))
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to read health history for trend, defaulting to stable")
		return model.TrendStable
	}
	if !ok {
		return model.TrendStable
	}
	switch delta := score - previous; {
	case delta > 5:
		return model.TrendImproving
	case delta < -5:
		return model.TrendDegrading
	default:
		return model.TrendStable
	}
}
