package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"fleetpulse-backend/internal/dto"
	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/repository"
	"fleetpulse-backend/internal/util"
)

type AnomalyController struct {
	anomalyRepo repository.AnomalyRepository
}

func NewAnomalyController(anomalyRepo repository.AnomalyRepository) *AnomalyController {
	return &AnomalyController{
		anomalyRepo: anomalyRepo,
	}
}

func RegisterAnomalyRoutes(router *gin.Engine, controller *AnomalyController) {
	v1 := router.Group("/api/v1/anomalies")
	{
		v1.GET("", controller.ListAnomalies)
		v1.POST("/:id/resolve", controller.ResolveAnomaly)
	}
	router.GET("/api/v1/devices/:id/anomalies", controller.ListDeviceAnomalies)
}

// ListAnomalies godoc
// @Summary      List anomaly signals
// @Description  Lists detected anomaly signals newest first, optionally filtered by tenant, device and a lower time bound.
// @Tags         anomalies
// @Produce      json
// @Param        tenant  query     string  false  "Tenant identifier"
// @Param        device  query     string  false  "Device identifier"
// @Param        since   query     string  false  "Only signals created at or after this time (ISO 8601 or epoch milliseconds)"
// @Param        limit   query     int     false  "Maximum number of signals (default: 50, max: 500)"
// @Success      200     {object}  dto.AnomalyListResponse "Anomaly signals"
// @Failure      400     {object}  model.Response "Invalid query parameters"
// @Failure      500     {object}  model.Response "Internal server error"
// @Router       /api/v1/anomalies [get]
func (c *AnomalyController) ListAnomalies(ctx *gin.Context) {
	tenantID := ctx.Query("tenant")
	deviceID := ctx.Query("device")

	var since time.Time
	if sinceStr := ctx.Query("since"); sinceStr != "" {
		parsed, err := util.ParseTimeFlexible(sinceStr)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, model.NewResponse("Invalid since format. Use ISO 8601 or epoch milliseconds.", nil))
			return
		}
		since = parsed
	}

	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	signals, err := c.anomalyRepo.ListByTenant(ctx.Request.Context(), tenantID, deviceID, since, limit)
	if err != nil {
		log.Error().Err(err).Msg("Error listing anomalies")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Failed to list anomalies", nil))
		return
	}

	ctx.JSON(http.StatusOK, dto.AnomalyListResponse{
		Anomalies: signals,
		Count:     len(signals),
	})
}

// ListDeviceAnomalies godoc
// @Summary      List one device's recent anomaly signals
// @Description  Lists the device's anomaly signals newest first.
// @Tags         anomalies
// @Produce      json
// @Param        id     path      string  true   "Device identifier"
// @Param        limit  query     int     false  "Maximum number of signals (default: 50, max: 500)"
// @Success      200    {object}  dto.AnomalyListResponse "Anomaly signals"
// @Failure      500    {object}  model.Response "Internal server error"
// @Router       /api/v1/devices/{id}/anomalies [get]
func (c *AnomalyController) ListDeviceAnomalies(ctx *gin.Context) {
	deviceID := ctx.Param("id")

	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	signals, err := c.anomalyRepo.RecentByDevice(ctx.Request.Context(), deviceID, limit)
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Error listing device anomalies")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Failed to list device anomalies", nil))
		return
	}

	ctx.JSON(http.StatusOK, dto.AnomalyListResponse{
		Anomalies: signals,
		Count:     len(signals),
	})
}

// ResolveAnomaly godoc
// @Summary      Resolve an anomaly signal
// @Description  Marks one anomaly signal as resolved. The flag transitions false to true exactly once; resolving an unknown or already-resolved signal fails.
// @Tags         anomalies
// @Produce      json
// @Param        id   path      string  true  "Anomaly identifier"
// @Success      200  {object}  dto.ResolveAnomalyResponse "Anomaly resolved"
// @Failure      404  {object}  model.Response "Anomaly not found or already resolved"
// @Failure      500  {object}  model.Response "Internal server error"
// @Router       /api/v1/anomalies/{id}/resolve [post]
func (c *AnomalyController) ResolveAnomaly(ctx *gin.Context) {
	id := ctx.Param("id")

	resolved, err := c.anomalyRepo.Resolve(ctx.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("anomaly_id", id).Msg("Error resolving anomaly")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Failed to resolve anomaly", nil))
		return
	}
	if !resolved {
		ctx.JSON(http.StatusNotFound, model.NewResponse("Anomaly not found or already resolved", nil))
		return
	}

	ctx.JSON(http.StatusOK, dto.ResolveAnomalyResponse{ID: id, Resolved: true})
}
