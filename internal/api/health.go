package api

import "time"

type HealthResponse struct {
	SchemaVersion  string    `json:"schema_version"`
	GeneratedAt    time.Time `json:"generated_at"`
	Status         string    `json:"status"`
	Version        string    `json:"version,omitempty"`
	LiveSessions   int       `json:"live_sessions"`
	DBSchema       int       `json:"db_schema"`
	TickIntervalMs int64     `json:"tick_interval_ms"`
}
