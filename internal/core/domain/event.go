package domain

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventMotionDetected      EventType = "motion"
	EventDoorbellRang        EventType = "doorbell-ring"
	EventVacuumStatusChanged EventType = "vacuum-status"
	EventDeviceDiscovered    EventType = "device-discovered"
	EventDeviceStatusChanged EventType = "device-status"
)

// Event is an immutable fact reported by a provider adapter. Payload is
// the JSON encoding of one of the typed payload shapes below, decoded
// once at the adapter boundary and never reinterpreted downstream.
type Event struct {
	ID        string          `json:"id"`
	UserID    UserID          `json:"-"`
	DeviceID  DeviceID        `json:"device_id"`
	Provider  Provider        `json:"provider"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type MotionDetectedPayload struct {
	Zone       string  `json:"zone,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	SnapshotID string  `json:"snapshot_id,omitempty"`
}

type DoorbellRangPayload struct {
	StreamSessionID string `json:"stream_session_id,omitempty"`
	AnsweredBy      string `json:"answered_by,omitempty"`
}

type VacuumStatusPayload struct {
	State        string `json:"state"`
	BatteryLevel int    `json:"battery_level"`
	Area         int    `json:"area,omitempty"` // cleaned area, m2
}

type DeviceDiscoveredPayload struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
}

type DeviceStatusPayload struct {
	Status string `json:"status"`
}
