package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/service"
)

// NewScheduler registers the named periodic analysis tasks: device silence
// checks, upload volume checks and fleet health recomputation. The cron
// owns all scheduling state; the invoked services stay pure.
func NewScheduler(lc fx.Lifecycle, cfg *config.Config, orchestrator service.OrchestratorService) *cron.Cron {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.DowOptional | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))

	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context) error
	}{
		{"silence_check", cfg.Scheduler.SilenceSchedule, orchestrator.RunSilenceCheck},
		{"volume_check", cfg.Scheduler.VolumeSchedule, orchestrator.RunVolumeCheck},
		{"health_recompute", cfg.Scheduler.HealthSchedule, orchestrator.RunHealthRecompute},
	}

	for _, job := range jobs {
		job := job
		_, err := c.AddFunc(job.schedule, func() {
			go func() {
				if err := job.run(context.Background()); err != nil {
					log.Error().Err(err).Str("job", job.name).Msg("Error during scheduled task")
				}
			}()
		})
		if err != nil {
			log.Fatal().Err(err).Str("job", job.name).Str("schedule", job.schedule).Msg("Failed to add cron job")
			return nil
		}
		log.Info().Str("job", job.name).Str("schedule", job.schedule).Msg("Scheduled periodic task")
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msg("Starting cron scheduler")
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Stopping cron scheduler...")
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
				log.Info().Msg("Cron scheduler stopped gracefully.")
				return nil
			case <-ctx.Done():
				log.Error().Msg("Context cancelled while waiting for cron scheduler to stop.")
				return ctx.Err()
			}
		},
	})

	return c
}
