package http

import (
	"github.com/gin-gonic/gin"

	"storybook/internal/logging"
	"storybook/internal/observability"
)

// NewRouter creates the gin engine serving every storybook endpoint.
func NewRouter(deps RouterDeps, cfg RouterConfig) *gin.Engine {
	var metrics *observability.MetricsCollector
	if deps.Obs != nil {
		metrics = deps.Obs.Metrics
	}

	runHandler := NewRunHandler(
		deps.Runs,
		WithRunHandlerObservability(deps.Obs),
		WithMaxBodyBytes(cfg.MaxBodyBytes),
		WithOriginCheck(OriginChecker(cfg.Environment, cfg.AllowedOrigins)),
	)
	healthHandler := NewHealthHandler(deps.HealthChecker, deps.Version)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggingMiddleware(logging.NewComponentLogger("HTTP")))
	engine.Use(CORSMiddleware(cfg.Environment, cfg.AllowedOrigins))
	engine.Use(ObservabilityMiddleware(deps.Obs))

	engine.GET("/health", healthHandler.HandleHealth)
	if metrics != nil && !metrics.ServesOwnPort() {
		engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	api := engine.Group("/api")
	runs := api.Group("/run-script")
	runs.Use(RateLimitMiddleware(cfg.RateLimit, metrics))
	runs.Use(StreamGuardMiddleware(cfg.StreamGuard, metrics))
	{
		runs.POST("", runHandler.HandleRunScript)
		runs.GET("/ws", runHandler.HandleRunScriptWS)
	}

	return engine
}
