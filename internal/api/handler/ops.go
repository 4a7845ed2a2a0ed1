// Package handler provides HTTP handlers for the MealDrop API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mealdrop/mealdrop/internal/api/models"
	"github.com/mealdrop/mealdrop/internal/api/response"
)

// ConnectionCounter reports the number of live socket connections.
// Implemented by the realtime registry.
type ConnectionCounter interface {
	Count() int
}

// ReadinessProbe checks one dependency. Implemented by the database pool's
// Ping and the redis client's Ping.
type ReadinessProbe func(ctx context.Context) error

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version     string
	buildTime   string
	connections ConnectionCounter
	probes      map[string]ReadinessProbe
}

// NewOpsHandler creates a new OpsHandler. connections may be nil; probes maps
// subsystem name to its readiness check.
func NewOpsHandler(version, buildTime string, connections ConnectionCounter, probes map[string]ReadinessProbe) *OpsHandler {
	return &OpsHandler{
		version:     version,
		buildTime:   buildTime,
		connections: connections,
		probes:      probes,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. Fails when any
// probe fails.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := models.HealthStatusOK
	httpStatus := http.StatusOK
	for _, probe := range h.probes {
		if err := probe(ctx); err != nil {
			status = models.HealthStatusFail
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	health := models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, httpStatus, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem status and socket load.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	overall := models.HealthStatusOK
	subsystems := make([]models.SubsystemStatus, 0, len(h.probes))
	for name, probe := range h.probes {
		sub := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		if err := probe(ctx); err != nil {
			detail := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
			overall = models.HealthStatusDegraded
		}
		subsystems = append(subsystems, sub)
	}

	connections := 0
	if h.connections != nil {
		connections = h.connections.Count()
	}

	status := models.SystemStatus{
		Status:            overall,
		Time:              models.Timestamp(time.Now()),
		Subsystems:        subsystems,
		SocketConnections: connections,
	}
	response.JSON(w, r, http.StatusOK, status)
}
