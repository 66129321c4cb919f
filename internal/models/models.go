package models

import (
	"encoding/json"
	"time"
)

// User is a registered account. The password hash never leaves the backend.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Setting holds one tag configuration owned by a user.
type Setting struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"-"`
	GTMContainerID  string    `json:"gtm_container_id"`
	GAMeasurementID string    `json:"ga_measurement_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Event is one recorded tracking event. Payload is the JSON object exactly
// as submitted.
type Event struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"-"`
	EventName string          `json:"event_name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
