package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthChecker is implemented by dependencies the health endpoint probes
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Cache     string `json:"cache"`
}

// HealthHandler handles health check requests
type HealthHandler struct {
	cache HealthChecker
}

// NewHealthHandler creates a health handler probing the provider cache
func NewHealthHandler(cache HealthChecker) *HealthHandler {
	return &HealthHandler{cache: cache}
}

// Health reports service health. A failing cache degrades the service but
// does not make it unavailable, so the status code stays 200.
// GET /api/v1/health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		Cache:     "ok",
	}

	if h.cache != nil {
		if err := h.cache.HealthCheck(c.Request.Context()); err != nil {
			resp.Status = "degraded"
			resp.Cache = "error"
		}
	}

	c.JSON(http.StatusOK, resp)
}
