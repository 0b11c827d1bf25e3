package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether one dependency is usable.
type Check = func(ctx context.Context) error

type HealthHandler struct {
	checks    map[string]Check
	scheduler func() map[string]interface{}
}

// NewHealthHandler creates a health handler. Every check must pass for the
// service to report ready. scheduler may be nil.
func NewHealthHandler(checks map[string]Check, scheduler func() map[string]interface{}) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		scheduler: scheduler,
	}
}

// GetHealth returns basic health status - always returns 200 if server is running
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"service":   "pick-research",
	})
}

// GetReady returns 200 only when the database and cache answer
func (h *HealthHandler) GetReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}

	if ready {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": results})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": results})
}

// GetSchedulerStatus reports the cron schedule and last scheduled runs
func (h *HealthHandler) GetSchedulerStatus(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"is_running": false})
		return
	}
	c.JSON(http.StatusOK, h.scheduler())
}
