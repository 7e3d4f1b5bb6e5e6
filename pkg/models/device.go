package models

import "time"

// Device is a single registered fleet member, keyed by its stable address
// (an IPv4 literal in practice, e.g. "10.0.0.5").
type Device struct {
	Address     string    `json:"address"`
	DisplayName string    `json:"display_name,omitempty"`
	Hidden      bool      `json:"hidden"`
	CreatedAt   time.Time `json:"created_at"`

	PingAvg       int       `json:"ping_avg"`
	PingSuccess   float64   `json:"ping_success"`
	LastPing      time.Time `json:"last_ping,omitempty"`
	LastServerObs time.Time `json:"last_server_obs,omitempty"`
}
