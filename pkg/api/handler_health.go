package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/dshield-labs/coordengine/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// Returns a minimal, safe response suitable for unauthenticated access.
// Only the engine's own components (redis, worker pool) are checked; the LLM
// service is excluded so an external outage cannot make the orchestrator
// restart a healthy process.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := s.dbClient.Health(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["redis"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["redis"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.workerPool != nil {
		poolHealth := s.workerPool.Health()
		if poolHealth != nil && !poolHealth.IsHealthy {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["worker_pool"] = HealthCheck{Status: healthStatusDegraded, Message: "no workers running"}
		} else {
			checks["worker_pool"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}

// livenessHandler handles GET /health/live. Always 200 while the process is
// serving requests.
func (s *Server) livenessHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &LivenessResponse{
		Status:        "alive",
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	})
}

// readinessHandler handles GET /health/ready.
// Ready requires every dependency: state store, cache, and the inference
// endpoint. Degrade-to-heuristics only covers in-flight analyses; a pod that
// cannot reach the LLM should not receive new traffic.
func (s *Server) readinessHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	ready := true

	if err := s.store.Health(reqCtx); err != nil {
		ready = false
		checks["state_store"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["state_store"] = HealthCheck{Status: healthStatusHealthy}
	}

	if err := s.resultCache.Health(reqCtx); err != nil {
		ready = false
		checks["cache"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["cache"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.llmClient != nil {
		if err := s.llmClient.Health(reqCtx); err != nil {
			ready = false
			checks["llm"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["llm"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !ready {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &ReadinessResponse{Status: status, Checks: checks})
}
