package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/metrics"
	"github.com/gin-gonic/gin"
)

// HealthCheckFunc проверяет одну зависимость
type HealthCheckFunc func(ctx context.Context) error

// HealthHandler обработчик для проверки работоспособности сервиса
type HealthHandler struct {
	checks  map[string]HealthCheckFunc
	metrics metrics.ReconcilerMetrics
}

// NewHealthHandler создает обработчик. checks может быть пустым.
func NewHealthHandler(checks map[string]HealthCheckFunc, m metrics.ReconcilerMetrics) *HealthHandler {
	return &HealthHandler{checks: checks, metrics: m}
}

// HealthCheck проверяет зависимости; 503, если хотя бы одна недоступна
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(gin.H, len(h.checks))
	for name, check := range h.checks {
		err := check(ctx)
		h.metrics.SetDependencyUp(name, err == nil)
		if err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "OK"
	}

	text := "OK"
	if status != http.StatusOK {
		text = "DEGRADED"
	}
	c.JSON(status, gin.H{
		"status":       text,
		"time":         time.Now().Format(time.RFC3339),
		"dependencies": deps,
	})
}
