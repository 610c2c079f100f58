package server

import (
	"net/http"
	"time"

	"github.com/projectflow/flowchat/shared"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check response
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Timestamp   time.Time    `json:"timestamp"`
	Version     string       `json:"version"`
	Uptime      string       `json:"uptime"`
	Database    string       `json:"database"`
	Connections int          `json:"connections"`
}

var startTime = time.Now()

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	check := HealthCheck{
		Status:      HealthStatusHealthy,
		Timestamp:   time.Now(),
		Version:     shared.VersionInfo(),
		Uptime:      time.Since(startTime).Round(time.Second).String(),
		Database:    "ok",
		Connections: rt.hub.ClientCount(),
	}

	status := http.StatusOK
	if err := rt.store.Ping(); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Database = err.Error()
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, check)
}
