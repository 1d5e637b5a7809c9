package http

import (
	"storybook/internal/observability"
	"storybook/internal/server/app"
	"storybook/internal/server/ports"
)

// RouterDeps holds all service dependencies needed to construct the HTTP router.
type RouterDeps struct {
	Runs          *app.RunService
	HealthChecker ports.HealthChecker
	Obs           *observability.Observability
	Version       string
}

// RouterConfig holds configuration values for the HTTP router.
type RouterConfig struct {
	Environment    string
	AllowedOrigins []string
	MaxBodyBytes   int64
	StreamGuard    StreamGuardConfig
	RateLimit      RateLimitConfig
}
