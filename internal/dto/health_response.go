package dto

import "fleetpulse-backend/internal/model"

// FleetHealthResponse lists health records sorted ascending by score, so
// the worst-health devices surface first for triage.
type FleetHealthResponse struct {
	Records []model.HealthRecord `json:"records"`
	Count   int                  `json:"count"`
}
