package model

import "time"

const (
	NotificationAnomalyCreated = "anomaly.created"
	NotificationHealthUpdated  = "health.updated"
)

// NotificationEvent is the outbound envelope handed to the delivery
// collaborator. Delivery, retries and fan-out are its problem, not ours.
type NotificationEvent struct {
	Type      string      `json:"type"`
	TenantID  string      `json:"tenant_id"`
	DeviceID  string      `json:"device_id"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}
