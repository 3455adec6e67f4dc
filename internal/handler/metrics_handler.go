package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/internal/service"
)

type storageStatusSource interface {
	Status() models.StorageStatus
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	storage storageStatusSource
}

// NewMetricsHandler constructs a metrics handler. storage may be nil.
func NewMetricsHandler(metrics *service.MetricsService, storage storageStatusSource) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, storage: storage}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness checks.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports ready once the storage probe has settled on a backend.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	status := h.storage.Status()
	if status.Boot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting", "backend": status.Backend})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "backend": status.Backend})
}
