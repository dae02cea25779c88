package dto

import "fleetpulse-backend/internal/model"

type LogSummaryResponse struct {
	LogID   string           `json:"log_id"`
	Summary model.LogSummary `json:"summary"`
}
