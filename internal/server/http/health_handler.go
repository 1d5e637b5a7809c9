package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storybook/internal/server/app"
	"storybook/internal/server/ports"
)

type healthResponse struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version,omitempty"`
	Uptime     string                  `json:"uptime"`
	Components []ports.ComponentHealth `json:"components,omitempty"`
}

// HealthHandler reports process liveness and executor readiness.
type HealthHandler struct {
	checker   ports.HealthChecker
	version   string
	startTime time.Time
}

// NewHealthHandler creates a health handler; checker may be nil.
func NewHealthHandler(checker ports.HealthChecker, version string) *HealthHandler {
	return &HealthHandler{checker: checker, version: version, startTime: time.Now()}
}

// HandleHealth answers 200 when every component is ready, 503 otherwise.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	resp := healthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.checker != nil {
		resp.Components = h.checker.CheckAll(c.Request.Context())
	}
	status := http.StatusOK
	if !app.Healthy(resp.Components) {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
