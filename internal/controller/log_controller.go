package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"fleetpulse-backend/internal/dto"
	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/service"
)

type LogController struct {
	summaryService service.SummaryService
}

func NewLogController(summaryService service.SummaryService) *LogController {
	return &LogController{
		summaryService: summaryService,
	}
}

func RegisterLogRoutes(router *gin.Engine, controller *LogController) {
	v1 := router.Group("/api/v1/logs")
	{
		v1.GET("/:id/summary", controller.GetLogSummary)
	}
}

// GetLogSummary godoc
// @Summary      Summarize one log upload
// @Description  Computes the structured summary of a log upload (line/severity counts, top recurring errors, keywords, time span, digest) and attaches it to the log's metadata.
// @Tags         logs
// @Produce      json
// @Param        id   path      string  true  "Log identifier"
// @Success      200  {object}  dto.LogSummaryResponse "Summary computed"
// @Failure      404  {object}  model.Response "Log not found"
// @Failure      500  {object}  model.Response "Internal server error"
// @Router       /api/v1/logs/{id}/summary [get]
func (c *LogController) GetLogSummary(ctx *gin.Context) {
	logID := ctx.Param("id")

	summary, err := c.summaryService.SummarizeAndStore(ctx.Request.Context(), logID)
	if err != nil {
		log.Error().Err(err).Str("log_id", logID).Msg("Error summarizing log")
		ctx.JSON(http.StatusInternalServerError, model.NewResponse("Failed to summarize log", nil))
		return
	}
	if summary == nil {
		ctx.JSON(http.StatusNotFound, model.NewResponse("Log not found", nil))
		return
	}

	ctx.JSON(http.StatusOK, dto.LogSummaryResponse{
		LogID:   logID,
		Summary: *summary,
	})
}
