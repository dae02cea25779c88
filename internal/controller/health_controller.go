package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"fleetpulse-backend/internal/dto"
	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/repository"
	"fleetpulse-backend/internal/service"
)

type HealthController struct {
	healthService service.HealthService
	healthRepo    repository.HealthRepository
}

func NewHealthController(healthService service.HealthService, healthRepo repository.HealthRepository) *HealthController {
	return &HealthController{
		healthService: healthService,
		healthRepo:    healthRepo,
	}
}

func RegisterHealthRoutes(router *gin.Engine, controller *HealthController) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/devices/:id/health", controller.GetDeviceHealth)
		v1.GET("/devices/:id/health/last", controller.GetLastDeviceHealth)
		v1.GET("/health", controller.GetFleetHealth)
	}
}

// GetDeviceHealth godoc
// @Summary      Compute one device's health
// @Description  Recomputes the device's weighted health score, factor breakdown and trend, persists the snapshot and appends a history point.
// @Tags         health
// @Produce      json
// @Param        id   path      string  true  "Device identifier"
// @Success      200  {object}  model.HealthRecord "Health record"
// @Failure      404  {object}  model.Response "Device not found"
// @Failure      500  {object}  model.Response "Internal server error"
// @Router       /api/v1/devices/{id}/health [get]
func (c *HealthController) GetDeviceHealth(ctx *gin.Context) {
	deviceID := ctx.Param("id")

	record, err := c.healthService.ComputeHealth(ctx.Request.Context(), deviceID)
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Error computing device health")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Failed to compute device health", nil))
		return
	}
	if record == nil {
		ctx.JSON(http.StatusNotFound, model.NewResponse("Device not found", nil))
		return
	}

	ctx.JSON(http.StatusOK, record)
}

// GetLastDeviceHealth godoc
// @Summary      Read the last computed health snapshot
// @Description  Returns the device's most recently persisted health record without recomputing it.
// @Tags         health
// @Produce      json
// @Param        id   path      string  true  "Device identifier"
// @Success      200  {object}  model.HealthRecord "Health record"
// @Failure      404  {object}  model.Response "No health record for device"
// @Failure      500  {object}  model.Response "Internal server error"
// @Router       /api/v1/devices/{id}/health/last [get]
func (c *HealthController) GetLastDeviceHealth(ctx *gin.Context) {
	deviceID := ctx.Param("id")

	record, err := c.healthRepo.Get(ctx.Request.Context(), deviceID)
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Error reading stored device health")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Failed to read device health", nil))
		return
	}
	if record == nil {
		ctx.JSON(http.StatusNotFound, model.NewResponse("No health record for device", nil))
		return
	}

	ctx.JSON(http.StatusOK, record)
}

// GetFleetHealth godoc
// @Summary      Compute fleet health
// @Description  Recomputes health for every device (optionally scoped to a tenant) and returns the records sorted ascending by score, worst first.
// @Tags         health
// @Produce      json
// @Param        tenant  query     string  false  "Tenant identifier"
// @Success      200     {object}  dto.FleetHealthResponse "Fleet health records"
// @Failure      500     {object}  model.Response "Internal server error"
// @Router       /api/v1/health [get]
func (c *HealthController) GetFleetHealth(ctx *gin.Context) {
	tenantID := ctx.Query("tenant")

	records, err := c.healthService.ComputeAllHealth(ctx.Request.Context(), tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Error computing fleet health")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Failed to compute fleet health", nil))
		return
	}

	ctx.JSON(http.StatusOK, dto.FleetHealthResponse{
		Records: records,
		Count:   len(records),
	})
}
