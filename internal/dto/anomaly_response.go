package dto

import "fleetpulse-backend/internal/model"

type AnomalyListResponse struct {
	Anomalies []model.AnomalySignal `json:"anomalies"`
	Count     int                   `json:"count"`
}

type ResolveAnomalyResponse struct {
	ID       string `json:"id"`
	Resolved bool   `json:"resolved"`
}
