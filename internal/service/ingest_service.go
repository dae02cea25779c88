package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	kafkaGo "github.com/segmentio/kafka-go"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/elasticsearch"
	"fleetpulse-backend/internal/kafka"
	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/repository"
)

// LogIngestService consumes uploaded device logs from Kafka, enriches each
// with its summary, stores it and runs the on-ingestion anomaly detectors.
type LogIngestService interface {
	Run(ctx context.Context, wg *sync.WaitGroup)
}

type logIngestService struct {
	consumer       kafka.LogConsumer
	logStore       elasticsearch.LogStore
	deviceRepo     repository.DeviceRepository
	summaryService SummaryService
	anomalyService AnomalyService
	notifier       kafka.NotificationProducer
	batchSize      int           // How many Kafka messages to process at once
	maxWaitTime    time.Duration // Max time to wait for batchSize messages
}

func NewLogIngestService(
	cfg *config.Config,
	consumer kafka.LogConsumer,
	logStore elasticsearch.LogStore,
	deviceRepo repository.DeviceRepository,
	summaryService SummaryService,
	anomalyService AnomalyService,
	notifier kafka.NotificationProducer,
) LogIngestService {
	return &logIngestService{
		consumer:       consumer,
		logStore:       logStore,
		deviceRepo:     deviceRepo,
		summaryService: summaryService,
		anomalyService: anomalyService,
		notifier:       notifier,
		batchSize:      cfg.Kafka.BatchSize,
		maxWaitTime:    cfg.Kafka.MaxBatchWait,
	}
}

func (s *logIngestService) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	log.Info().Msg("Starting Log Ingest Service loop...")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Log Ingest Service loop stopping due to context cancellation.")
			return
		default:
		}

		err := s.processBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info().Msg("Context cancelled during batch processing.")
				return
			}
			log.Error().Err(err).Msg("Error processing ingest batch")
			time.Sleep(1 * time.Second)
		}
	}
}

func (s *logIngestService) processBatch(ctx context.Context) error {
	entries := make([]*model.LogEntry, 0, s.batchSize)
	originalMessages := make([]kafkaGo.Message, 0, s.batchSize)
	batchStartTime := time.Now()

	for len(entries) < s.batchSize {
		select {
		case <-ctx.Done():
			log.Info().Msg("Context cancelled while building ingest batch.")
			return ctx.Err()
		default:
		}

		remaining := s.maxWaitTime - time.Since(batchStartTime)
		if remaining <= 0 {
			break
		}
		fetchCtx, cancel := context.WithTimeout(ctx, remaining)
		entry, originalMsg, err := s.consumer.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// Waited long enough, process whatever we have collected
				log.Debug().Int("batch_size", len(entries)).Msg("Max wait time reached for batch, processing partial batch.")
				break
			}
			// An unmarshal failure still returns the message; track it so
			// the commit skips past the poison record.
			if originalMsg.Topic != "" {
				log.Warn().Int64("offset", originalMsg.Offset).Msg("Adding undecodable message to batch for commit tracking.")
				originalMessages = append(originalMessages, originalMsg)
				continue
			}
			log.Error().Err(err).Msg("Failed to fetch message, stopping batch accumulation for now.")
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		entries = append(entries, entry)
		originalMessages = append(originalMessages, originalMsg)
	}

	if len(originalMessages) == 0 {
		log.Debug().Msg("No messages in batch to process.")
		return nil
	}

	// Enrich each entry with its summary before indexing, so the stored
	// document already carries the attachment and no read-back is needed.
	stored := make([]model.LogEntry, 0, len(entries))
	for _, entry := range entries {
		s.prepareEntry(entry)
		stored = append(stored, *entry)
	}

	if len(stored) > 0 {
		if err := s.logStore.StoreLogs(ctx, stored); err != nil {
			log.Error().Err(err).Msg("Failed to store logs to Elasticsearch")
			// Not committing leads to reprocessing, which beats data loss.
			return fmt.Errorf("failed storing logs: %w", err)
		}
	}

	// Post-storage per-entry work: device bookkeeping plus the
	// on-ingestion detectors. A failure for one entry must not block the
	// rest of the batch.
	for _, entry := range entries {
		if err := s.deviceRepo.TouchLastSeen(ctx, entry.DeviceID, entry.UploadedAt); err != nil {
			log.Error().Err(err).Str("device_id", entry.DeviceID).Msg("Failed to update device last seen, continuing")
		}

		signals, err := s.anomalyService.AnalyzeLog(ctx, entry)
		if err != nil {
			log.Error().Err(err).Str("log_id", entry.ID).Msg("Anomaly analysis failed for log, continuing")
			continue
		}
		publishAnomalySignals(ctx, s.notifier, signals)
	}

	if err := s.consumer.CommitMessages(ctx, originalMessages...); err != nil {
		log.Error().Err(err).Msg("Failed to commit Kafka messages after successful storage")
		return fmt.Errorf("failed committing kafka messages: %w", err)
	}
	log.Info().Int("batch_size", len(entries)).Msg("Successfully processed and committed ingest batch.")
	return nil
}

// prepareEntry fills server-side fields and attaches the computed summary
// under the reserved metadata key, preserving uploader-provided keys.
func (s *logIngestService) prepareEntry(entry *model.LogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.UploadedAt.IsZero() {
		entry.UploadedAt = time.Now().UTC()
	}
	if entry.Metadata == nil {
		entry.Metadata = make(map[string]interface{})
	}
	entry.Metadata[model.MetadataSummaryKey] = s.summaryService.Summarize(entry.Content)
}
