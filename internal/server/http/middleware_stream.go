package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storybook/internal/observability"
)

type StreamGuardConfig struct {
	MaxDuration   time.Duration
	MaxConcurrent int
}

// StreamGuardMiddleware caps concurrent streams and bounds each stream's
// lifetime. Non-stream requests pass through untouched.
func StreamGuardMiddleware(cfg StreamGuardConfig, metrics *observability.MetricsCollector) gin.HandlerFunc {
	if cfg.MaxDuration <= 0 && cfg.MaxConcurrent <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	var sem chan struct{}
	if cfg.MaxConcurrent > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return func(c *gin.Context) {
		if !isStreamRequest(c.Request) {
			c.Next()
			return
		}

		if sem != nil {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			default:
				metrics.RecordRejected(c.Request.Context(), "concurrency")
				writeJSONError(c, nil, http.StatusTooManyRequests, "stream limit exceeded", nil)
				return
			}
		}

		if cfg.MaxDuration > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.MaxDuration)
			defer cancel()
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()
	}
}

func isStreamRequest(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return false
	}
	path := strings.TrimSpace(r.URL.Path)
	if strings.HasPrefix(path, "/api/run-script") {
		return true
	}
	accept := strings.ToLower(strings.TrimSpace(r.Header.Get("Accept")))
	return strings.Contains(accept, "text/event-stream")
}
