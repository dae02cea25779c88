package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/model"
)

type NotificationProducer interface {
	Publish(ctx context.Context, events []model.NotificationEvent) error
	Close() error
}

type kafkaNotificationProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaNotificationProducer(lc fx.Lifecycle, cfg *config.Config) (NotificationProducer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.NotificationTopic == "" {
		log.Error().Msg("Kafka brokers or notification topic is not configured.")
		return nil, errors.New("kafka configuration missing")
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.NotificationTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.MaxBatchWait,
		Async:        true,
	})
	p := &kafkaNotificationProducer{
		writer: writer,
		topic:  cfg.Kafka.NotificationTopic,
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Closing Kafka notification producer")
			return p.Close()
		},
	})
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.NotificationTopic).Msg("Kafka notification producer initialized")
	return p, nil
}

func (p *kafkaNotificationProducer) Publish(ctx context.Context, events []model.NotificationEvent) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(events))

	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal notification event for Kafka")
			continue
		}
		// Keyed by device so consumers see one device's events in order.
		messages = append(messages, kafka.Message{
			Key:   []byte(event.DeviceID),
			Value: value,
		})
	}
	if len(messages) == 0 {
		log.Warn().Msg("No valid notification events to publish.")
		return nil
	}

	err := p.writer.WriteMessages(ctx, messages...)
	if err != nil {
		log.Error().Err(err).Int("message_count", len(messages)).Msg("Failed to write notification events to Kafka")
		return err
	}

	log.Debug().Int("message_count", len(messages)).Str("topic", p.topic).Msg("Published notification events to Kafka")
	return nil
}

func (p *kafkaNotificationProducer) Close() error {
	return p.writer.Close()
}
