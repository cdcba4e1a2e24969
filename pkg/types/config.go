// Package types provides configuration types shared across the engine.
package types

import "time"

// ServerConfig configures the bare metrics/snapshot HTTP surface this
// service exposes. The interactive dashboard itself is an external
// collaborator (out of scope); this only serves /metrics, /healthz and
// read-only copies of the snapshot and performance exports (see
// internal/snapshot).
type ServerConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	ReadTimeout   time.Duration `json:"readTimeout"`
	WriteTimeout  time.Duration `json:"writeTimeout"`
	EnableMetrics bool          `json:"enableMetrics"`
}
