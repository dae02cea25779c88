package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"fleetpulse-backend/internal/kafka"
	"fleetpulse-backend/internal/model"
)

// OrchestratorService owns the named periodic tasks. It only fans out to
// the pure analysis services and forwards results to the notification
// collaborator; it holds no scheduling state of its own, so it can be
// driven identically by a cron entry, a test or an event hook.
type OrchestratorService interface {
	RunSilenceCheck(ctx context.Context) error
	RunVolumeCheck(ctx context.Context) error
	RunHealthRecompute(ctx context.Context) error
}

type orchestratorService struct {
	anomalyService AnomalyService
	healthService  HealthService
	notifier       kafka.NotificationProducer
}

func NewOrchestratorService(
	anomalyService AnomalyService,
	healthService HealthService,
	notifier kafka.NotificationProducer,
) OrchestratorService {
	return &orchestratorService{
		anomalyService: anomalyService,
		healthService:  healthService,
		notifier:       notifier,
	}
}

func (s *orchestratorService) RunSilenceCheck(ctx context.Context) error {
	log.Info().Msg("Running device silence check")
	signals, err := s.anomalyService.CheckDeviceSilence(ctx, "")
	if err != nil {
		return err
	}
	s.publishAnomalies(ctx, signals)
	log.Info().Int("signals", len(signals)).Msg("Device silence check finished")
	return nil
}

func (s *orchestratorService) RunVolumeCheck(ctx context.Context) error {
	log.Info().Msg("Running upload volume check")
	signals, err := s.anomalyService.CheckVolumeAnomaly(ctx, "")
	if err != nil {
		return err
	}
	s.publishAnomalies(ctx, signals)
	log.Info().Int("signals", len(signals)).Msg("Upload volume check finished")
	return nil
}

func (s *orchestratorService) RunHealthRecompute(ctx context.Context) error {
	log.Info().Msg("Running fleet health recomputation")
	records, err := s.healthService.ComputeAllHealth(ctx, "")
	if err != nil {
		return err
	}

	events := make([]model.NotificationEvent, 0, len(records))
	for _, record := range records {
		events = append(events, model.NotificationEvent{
			Type:      model.NotificationHealthUpdated,
			DeviceID:  record.DeviceID,
			Payload:   record,
			CreatedAt: record.UpdatedAt,
		})
	}
	if err := s.notifier.Publish(ctx, events); err != nil {
		// Delivery is the collaborator's concern; results are durable.
		log.Error().Err(err).Msg("Failed to publish health notifications")
	}

	log.Info().Int("devices", len(records)).Msg("Fleet health recomputation finished")
	return nil
}

func (s *orchestratorService) publishAnomalies(ctx context.Context, signals []model.AnomalySignal) {
	publishAnomalySignals(ctx, s.notifier, signals)
}

// publishAnomalySignals forwards created signals to the notification
// collaborator. Publish failures are logged, not propagated: the signals
// are already durable and delivery retries are not the core's concern.
func publishAnomalySignals(ctx context.Context, notifier kafka.NotificationProducer, signals []model.AnomalySignal) {
	if len(signals) == 0 {
		return
	}
	events := make([]model.NotificationEvent, 0, len(signals))
	for _, signal := range signals {
		events = append(events, model.NotificationEvent{
			Type:      model.NotificationAnomalyCreated,
			TenantID:  signal.TenantID,
			DeviceID:  signal.DeviceID,
			Payload:   signal,
			CreatedAt: signal.CreatedAt,
		})
	}
	if err := notifier.Publish(ctx, events); err != nil {
		log.Error().Err(err).Int("count", len(events)).Msg("Failed to publish anomaly notifications")
	}
}
