package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/model"
)

// errMissingDeviceID marks an upload that decodes as JSON but cannot be
// attributed to any device; such records are poison and must be skipped.
var errMissingDeviceID = errors.New("log upload has no device_id")

// LogConsumer reads device log uploads from the ingest topic. Offsets are
// committed explicitly by the caller, after the batch is durably stored.
type LogConsumer interface {
	// FetchMessage returns the next decoded upload. A decode failure still
	// returns the raw message so the caller can commit past it.
	FetchMessage(ctx context.Context) (*model.LogEntry, kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaLogConsumer struct {
	reader *kafka.Reader
}

func NewKafkaLogConsumer(lc fx.Lifecycle, cfg *config.Config) (LogConsumer, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.ConsumerGroup,
		Topic:          cfg.Kafka.LogTopic,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        10 * time.Second,
		CommitInterval: 0, // commits stay explicit, tied to storage
		StartOffset:    kafka.FirstOffset,
	})
	c := &kafkaLogConsumer{
		reader: reader,
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Str("group", cfg.Kafka.ConsumerGroup).Msg("Closing Kafka consumer")
			return c.Close()
		},
	})
	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.LogTopic).
		Str("group", cfg.Kafka.ConsumerGroup).
		Msg("Kafka log consumer initialized")
	return c, nil
}

func (c *kafkaLogConsumer) FetchMessage(ctx context.Context) (*model.LogEntry, kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		log.Debug().Msg("Fail when fetching Kafka message.")
		return nil, kafka.Message{}, err
	}
	log.Debug().
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("Fetched log upload from Kafka")

	entry, err := decodeLogEntry(msg.Value)
	if err != nil {
		log.Error().Err(err).Int64("offset", msg.Offset).Msg("Undecodable log upload")
		return nil, msg, err
	}
	return entry, msg, nil
}

// decodeLogEntry unmarshals one upload payload and enforces the minimum
// attribution the pipeline needs: every upload names its device.
func decodeLogEntry(value []byte) (*model.LogEntry, error) {
	var entry model.LogEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal log upload: %w", err)
	}
	if entry.DeviceID == "" {
		return nil, errMissingDeviceID
	}
	return &entry, nil
}

func (c *kafkaLogConsumer) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	err := c.reader.CommitMessages(ctx, msgs...)
	if err != nil {
		log.Error().Err(err).Int("count", len(msgs)).Msg("Failed to commit Kafka messages")
		return err
	}
	log.Debug().Int("count", len(msgs)).Int64("last_offset", msgs[len(msgs)-1].Offset).Msg("Committed Kafka messages")
	return nil
}

func (c *kafkaLogConsumer) Close() error {
	return c.reader.Close()
}
