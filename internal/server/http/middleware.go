package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"storybook/internal/logging"
)

func isProduction(environment string) bool {
	return strings.EqualFold(strings.TrimSpace(environment), "production")
}

// allowedOriginSet returns nil when every origin is allowed.
func allowedOriginSet(environment string, allowedOrigins []string) map[string]bool {
	if !isProduction(environment) {
		return nil
	}
	set := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return nil
		}
		if origin != "" {
			set[origin] = true
		}
	}
	return set
}

// OriginChecker reports whether a request's Origin may open a websocket.
// Requests without an Origin header (non-browser clients) are allowed.
func OriginChecker(environment string, allowedOrigins []string) func(*http.Request) bool {
	set := allowedOriginSet(environment, allowedOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if set == nil || origin == "" {
			return true
		}
		return set[origin]
	}
}

// CORSMiddleware handles CORS headers. Outside production every origin is
// allowed; in production only the listed ones, unless the list holds "*".
func CORSMiddleware(environment string, allowedOrigins []string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.ExposeHeaders = []string{RunIDHeader}
	corsConfig.AllowWebSockets = true

	set := allowedOriginSet(environment, allowedOrigins)
	switch {
	case set == nil:
		corsConfig.AllowAllOrigins = true
	case len(set) == 0:
		corsConfig.AllowOriginFunc = func(string) bool { return false }
	default:
		corsConfig.AllowOrigins = make([]string, 0, len(set))
		for origin := range set {
			corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, origin)
		}
		corsConfig.AllowCredentials = true
	}
	return cors.New(corsConfig)
}

// LoggingMiddleware logs one line per request once it completes.
func LoggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		latency := time.Since(start)
		format := "route=%s method=%s status=%d latency_ms=%.2f bytes=%d client=%s"
		args := []any{
			route,
			c.Request.Method,
			c.Writer.Status(),
			float64(latency.Microseconds()) / 1000.0,
			c.Writer.Size(),
			c.ClientIP(),
		}
		if runID := c.Writer.Header().Get(RunIDHeader); runID != "" {
			format += " run_id=%s"
			args = append(args, runID)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn(format, args...)
			return
		}
		logger.Info(format, args...)
	}
}
