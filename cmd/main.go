package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"

	"fleetpulse-backend/config"
	"fleetpulse-backend/database"
	_ "fleetpulse-backend/docs" // This will be created by swag
	"fleetpulse-backend/internal/controller"
	"fleetpulse-backend/internal/elasticsearch"
	"fleetpulse-backend/internal/kafka"
	"fleetpulse-backend/internal/scheduler"
	"fleetpulse-backend/internal/service"
	"fleetpulse-backend/internal/timescaledb"
)

// @title           FleetPulse API
// @version         1.0
// @description     Device fleet log analytics service. Ingests device log uploads, summarizes their content, detects anomalies and scores per-device health.

// @contact.name   API Support Team
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /
// @schemes   http https

// @tag.name         logs
// @tag.description  Uploaded device log operations

// @tag.name         anomalies
// @tag.description  Anomaly signal listing and resolution

// @tag.name         health
// @tag.description  Device and fleet health scores

func main() {
	var wg sync.WaitGroup

	app := fx.New(
		// Core Dependencies
		fx.Provide(
			NewConfig,
		),
		// Infrastructure Dependencies
		fx.Provide(
			database.NewDB,
			NewGinEngine,
			database.NewDeviceRepository,
			database.NewAnomalyRepository,
			database.NewFirmwareRepository,
			database.NewHealthRepository,
			elasticsearch.NewElasticsearchLogRepository,
			elasticsearch.NewElasticLogStore,
			timescaledb.NewHealthHistoryStore,
			kafka.NewKafkaLogConsumer,
			kafka.NewKafkaNotificationProducer,
			service.NewSummaryService,
			service.NewAnomalyService,
			service.NewHealthService,
			service.NewOrchestratorService,
			service.NewLogIngestService,
			controller.NewLogController,
			controller.NewAnomalyController,
			controller.NewHealthController,
		),
		fx.Invoke(RegisterAPIRoutes,
			RegisterScheduler,
			func(lc fx.Lifecycle, ingestService service.LogIngestService) { // Invoker to start ingest loop
				startLogIngest(lc, &wg, ingestService)
			},
		),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second) // Timeout for startup
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}
	<-app.Done()

	// Initiate shutdown
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second) // Timeout for graceful shutdown
	defer cancelStop()
	log.Info().Msg("Shutting down application...")
	if err := app.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown due to error or timeout")
	}

	// Wait for background goroutines (like the ingest loop) to finish
	log.Info().Msg("Waiting for background goroutines to finish...")
	wg.Wait()
	log.Info().Msg("All background processes finished. Exiting.")
}

func NewConfig() (*config.Config, error) {
	return config.NewConfig()
}

func NewGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// Configure CORS
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Add your frontend URLs
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Add swagger route
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

func RegisterAPIRoutes(
	lifecycle fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	logController *controller.LogController,
	anomalyController *controller.AnomalyController,
	healthController *controller.HealthController,
) {
	controller.RegisterLogRoutes(router, logController)
	controller.RegisterAnomalyRoutes(router, anomalyController)
	controller.RegisterHealthRoutes(router, healthController)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Starting HTTP server on port %s", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("HTTP server ListenAndServe error")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Shutting down HTTP server...")
			return server.Shutdown(ctx)
		},
	})
}

// --- Invoker Functions ---

func RegisterScheduler(lc fx.Lifecycle, cfg *config.Config, orchestrator service.OrchestratorService) {
	scheduler.NewScheduler(lc, cfg, orchestrator)
}

// startLogIngest starts the LogIngestService in a goroutine managed by fx lifecycle
func startLogIngest(lc fx.Lifecycle, wg *sync.WaitGroup, ingestService service.LogIngestService) {
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info().Msg("Starting Log Ingest goroutine")
			go ingestService.Run(ctx, wg)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			log.Info().Msg("Signaling Log Ingest goroutine to stop...")
			cancel()   // Signal the ingest loop to exit
			return nil // Return immediately, main WaitGroup handles the actual wait
		},
	})
}
