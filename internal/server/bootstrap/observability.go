package bootstrap

import (
	"context"
	"time"

	"storybook/internal/logging"
	"storybook/internal/observability"
)

// InitObservability best-effort initializes observability and returns a cleanup hook.
// The observability logger becomes the backend of every component logger.
func InitObservability(configPath string, logger logging.Logger) (*observability.Observability, func()) {
	obs, err := observability.New(configPath)
	if err != nil {
		logging.OrNop(logger).Warn("Observability disabled: %v", err)
		return nil, nil
	}
	logging.SetDefault(obs.Logger)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(ctx); err != nil {
			logging.OrNop(logger).Warn("Observability shutdown error: %v", err)
		}
	}

	return obs, cleanup
}
