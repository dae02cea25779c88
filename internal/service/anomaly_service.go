package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/parser"
	"fleetpulse-backend/internal/repository"
)

// silenceLookback bounds how far back upload timestamps are fetched when
// estimating a device's upload cadence, keeping per-call cost independent
// of total history size.
const silenceLookback = 30 * 24 * time.Hour

// maxNewErrorExamples caps the evidence carried in a new_pattern payload.
const maxNewErrorExamples = 5

type AnomalyService interface {
	// AnalyzeLog runs the error-spike and new-error-pattern detectors
	// against one newly uploaded log. Missing history yields zero signals,
	// never an error.
	AnalyzeLog(ctx context.Context, entry *model.LogEntry) ([]model.AnomalySignal, error)
	// CheckDeviceSilence runs the silence detector over all devices, or
	// only the tenant's devices when tenantID is non-empty.
	CheckDeviceSilence(ctx context.Context, tenantID string) ([]model.AnomalySignal, error)
	// CheckVolumeAnomaly runs the upload-volume detector over all devices,
	// or only the tenant's devices when tenantID is non-empty.
	CheckVolumeAnomaly(ctx context.Context, tenantID string) ([]model.AnomalySignal, error)
}

type anomalyService struct {
	logRepo     repository.LogRepository
	deviceRepo  repository.DeviceRepository
	anomalyRepo repository.AnomalyRepository
	cfg         config.AnalysisConfig
	now         func() time.Time
}

func NewAnomalyService(
	cfg *config.Config,
	logRepo repository.LogRepository,
	deviceRepo repository.DeviceRepository,
	anomalyRepo repository.AnomalyRepository,
) AnomalyService {
	return &anomalyService{
		logRepo:     logRepo,
		deviceRepo:  deviceRepo,
		anomalyRepo: anomalyRepo,
		cfg:         cfg.Analysis,
		now:         time.Now,
	}
}

func (s *anomalyService) AnalyzeLog(ctx context.Context, entry *model.LogEntry) ([]model.AnomalySignal, error) {
	if entry == nil {
		return nil, nil
	}

	// One extra row is fetched because the new log may already be stored
	// and must not count toward its own history.
	prior, err := s.logRepo.RecentByDevice(ctx, entry.DeviceID, s.cfg.AnomalyLogWindow+1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch log history for device %s: %w", entry.DeviceID, err)
	}
	history := make([]model.LogEntry, 0, len(prior))
	for _, p := range prior {
		if p.ID == entry.ID {
			continue
		}
		history = append(history, p)
	}
	if len(history) > s.cfg.AnomalyLogWindow {
		history = history[:s.cfg.AnomalyLogWindow]
	}

	var signals []model.AnomalySignal

	if spike := s.detectErrorSpike(ctx, entry, history); spike != nil {
		signals = append(signals, *spike)
	}
	if pattern := s.detectNewPattern(ctx, entry, history); pattern != nil {
		signals = append(signals, *pattern)
	}

	return signals, nil
}

func (s *anomalyService) detectErrorSpike(ctx context.Context, entry *model.LogEntry, history []model.LogEntry) *model.AnomalySignal {
	rate, lines, errorCount := lineStats(entry.Content)
	if errorCount == 0 || lines == 0 {
		return nil
	}

	var rateSum float64
	nonEmpty := 0
	for _, h := range history {
		histRate, histLines, _ := lineStats(h.Content)
		if histLines > 0 {
			nonEmpty++
		}
		rateSum += histRate
	}
	if len(history) == 0 || nonEmpty == 0 {
		return nil
	}
	avg := rateSum / float64(len(history))
	if avg <= 0 || rate <= s.cfg.SpikeMultiplier*avg {
		return nil
	}

	magnitude := rate / avg
	severity := model.SeverityLow
	switch {
	case magnitude > 10:
		severity = model.SeverityCritical
	case magnitude > 5:
		severity = model.SeverityHigh
	case magnitude > 3:
		severity = model.SeverityMedium
	}

	message := fmt.Sprintf("Error rate %.1f%% is %.1fx the historical average of %.1f%%",
		rate*100, magnitude, avg*100)

	return s.createSignal(ctx, entry.DeviceID, entry.TenantID, model.AnomalyTypeErrorSpike, severity, message, entry.ID, map[string]interface{}{
		"error_rate":     rate,
		"avg_error_rate": avg,
		"magnitude":      magnitude,
	})
}

func (s *anomalyService) detectNewPattern(ctx context.Context, entry *model.LogEntry, history []model.LogEntry) *model.AnomalySignal {
	// A single prior log is not enough history to call anything "new".
	if len(history) < 2 {
		return nil
	}

	known := make(map[string]bool)
	for _, h := range history {
		for _, line := range strings.Split(h.Content, "\n") {
			if parser.Classify(line) == parser.LineError {
				known[parser.Normalize(line)] = true
			}
		}
	}

	seen := make(map[string]bool)
	var newErrors []string
	for _, line := range strings.Split(entry.Content, "\n") {
		if parser.Classify(line) != parser.LineError {
			continue
		}
		template := parser.Normalize(line)
		if template == "" || known[template] || seen[template] {
			continue
		}
		seen[template] = true
		newErrors = append(newErrors, truncate(line, representativeMaxLen))
	}
	if len(newErrors) == 0 {
		return nil
	}

	examples := newErrors
	if len(examples) > maxNewErrorExamples {
		examples = examples[:maxNewErrorExamples]
	}
	message := fmt.Sprintf("%d previously unseen error pattern(s) detected, first: %s",
		len(newErrors), newErrors[0])

	return s.createSignal(ctx, entry.DeviceID, entry.TenantID, model.AnomalyTypeNewPattern, model.SeverityMedium, message, entry.ID, map[string]interface{}{
		"new_errors": examples,
		"count":      len(newErrors),
	})
}

func (s *anomalyService) CheckDeviceSilence(ctx context.Context, tenantID string) ([]model.AnomalySignal, error) {
	devices, err := s.deviceRepo.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	now := s.now()
	var signals []model.AnomalySignal
	for _, device := range devices {
		times, err := s.logRepo.UploadTimesSince(ctx, device.ID, now.Add(-silenceLookback))
		if err != nil {
			log.Error().Err(err).Str("device_id", device.ID).Msg("Silence check failed for device, continuing")
			continue
		}
		if len(times) < 2 {
			// A device silent longer than the lookback must keep firing;
			// its last two stored uploads still establish a cadence.
			times, err = s.lastUploadTimes(ctx, device.ID)
			if err != nil {
				log.Error().Err(err).Str("device_id", device.ID).Msg("Silence check failed for device, continuing")
				continue
			}
		}
		if len(times) < 2 {
			continue
		}

		// Mean of consecutive inter-upload intervals over the ascending
		// series collapses to (last-first)/(n-1).
		mean := times[len(times)-1].Sub(times[0]) / time.Duration(len(times)-1)
		elapsed := now.Sub(times[len(times)-1])
		if mean <= 0 || float64(elapsed) <= s.cfg.SilenceMultiplier*float64(mean) {
			continue
		}

		overdueHours := int(math.Round((elapsed - mean).Hours()))
		cadenceHours := int(math.Round(mean.Hours()))
		message := fmt.Sprintf("Device is %d hour(s) overdue, expected upload cadence is about %d hour(s)",
			overdueHours, cadenceHours)

		if sig := s.createSignal(ctx, device.ID, device.TenantID, model.AnomalyTypeDeviceSilent, model.SeverityHigh, message, "", map[string]interface{}{
			"mean_interval_hours": mean.Hours(),
			"elapsed_hours":       elapsed.Hours(),
			"overdue_hours":       overdueHours,
		}); sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals, nil
}

// lastUploadTimes returns the device's two most recent upload timestamps in
// ascending order, regardless of how old they are.
func (s *anomalyService) lastUploadTimes(ctx context.Context, deviceID string) ([]time.Time, error) {
	recent, err := s.logRepo.RecentByDevice(ctx, deviceID, 2)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		times = append(times, recent[i].UploadedAt)
	}
	return times, nil
}

func (s *anomalyService) CheckVolumeAnomaly(ctx context.Context, tenantID string) ([]model.AnomalySignal, error) {
	devices, err := s.deviceRepo.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	now := s.now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := s.cfg.VolumeDays
	if days <= 0 {
		days = 7
	}
	windowStart := startOfToday.Add(-time.Duration(days) * 24 * time.Hour)

	var signals []model.AnomalySignal
	for _, device := range devices {
		total, err := s.logRepo.Count(ctx, device.ID)
		if err != nil {
			log.Error().Err(err).Str("device_id", device.ID).Msg("Volume check failed for device, continuing")
			continue
		}
		if total < int64(days) {
			continue
		}

		times, err := s.logRepo.UploadTimesSince(ctx, device.ID, windowStart)
		if err != nil {
			log.Error().Err(err).Str("device_id", device.ID).Msg("Volume check failed for device, continuing")
			continue
		}

		// buckets[0] is the most recent complete day, buckets[days-1] the
		// oldest; uploads since midnight count toward today instead.
		buckets := make([]int, days)
		todayCount := 0
		for _, t := range times {
			if !t.Before(startOfToday) {
				todayCount++
				continue
			}
			idx := int(startOfToday.Sub(t) / (24 * time.Hour))
			if idx >= 0 && idx < days {
				buckets[idx]++
			}
		}

		mean, stddev := meanStddev(buckets)
		if stddev <= 0 {
			continue
		}
		deviation := math.Abs(float64(todayCount) - mean)
		if deviation <= s.cfg.VolumeSigma*stddev {
			continue
		}

		direction := "above"
		if float64(todayCount) < mean {
			direction = "below"
		}
		deviations := deviation / stddev
		message := fmt.Sprintf("Upload volume today (%d) is %.1f standard deviations %s normal (mean %.1f/day)",
			todayCount, deviations, direction, mean)

		if sig := s.createSignal(ctx, device.ID, device.TenantID, model.AnomalyTypeVolumeAnomaly, model.SeverityMedium, message, "", map[string]interface{}{
			"today_count": todayCount,
			"mean":        mean,
			"stddev":      stddev,
			"deviations":  deviations,
		}); sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals, nil
}

// createSignal persists one anomaly signal and returns it; persistence
// failures are logged and swallowed so one bad write cannot abort a batch.
func (s *anomalyService) createSignal(ctx context.Context, deviceID, tenantID, anomalyType, severity, message, logID string, details map[string]interface{}) *model.AnomalySignal {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		log.Error().Err(err).Str("type", anomalyType).Msg("Failed to marshal anomaly details")
		detailsJSON = nil
	}

	signal := &model.AnomalySignal{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		TenantID:  tenantID,
		Type:      anomalyType,
		Severity:  severity,
		Message:   message,
		LogID:     logID,
		Details:   string(detailsJSON),
		Resolved:  false,
		CreatedAt: s.now(),
	}
	if err := s.anomalyRepo.Create(ctx, signal); err != nil {
		log.Error().Err(err).
			Str("device_id", deviceID).
			Str("type", anomalyType).
			Msg("Failed to persist anomaly signal")
		return nil
	}

	log.Info().
		Str("device_id", deviceID).
		Str("type", anomalyType).
		Str("severity", severity).
		Msg("Anomaly signal created")
	return signal
}

// lineStats computes the non-blank line count, error line count and error
// rate (rounded to 3 decimals) of raw log text.
func lineStats(content string) (rate float64, lines int, errorLines int) {
	for _, line := range strings.Split(content, "\n") {
		switch parser.Classify(line) {
		case parser.LineNone:
			continue
		case parser.LineError:
			errorLines++
		}
		lines++
	}
	if lines == 0 {
		return 0, 0, 0
	}
	rate = math.Round(float64(errorLines)/float64(lines)*1000) / 1000
	return rate, lines, errorLines
}

func meanStddev(counts []int) (float64, float64) {
	if len(counts) == 0 {
		return 0, 0
	}
	sum := 0
	for _, c := range counts {
		sum += c
	}
	mean := float64(sum) / float64(len(counts))

	var variance float64
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(len(counts))
	return mean, math.Sqrt(variance)
}
