package handlers

import (
	"context"
	"net/http"
	"time"

	"ticket-checkout/internal/storage"

	"github.com/gin-gonic/gin"
)

// Pinger is any dependency the health check should probe besides the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store   storage.Store
	pingers map[string]Pinger
}

func NewHealthHandler(store storage.Store, pingers map[string]Pinger) *HealthHandler {
	return &HealthHandler{store: store, pingers: pingers}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true
	if err := h.store.HealthCheck(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}
	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status, label := http.StatusOK, "healthy"
	if !healthy {
		status, label = http.StatusServiceUnavailable, "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":    label,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
		"service":   "ticket-checkout",
	})
}
