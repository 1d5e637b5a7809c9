package bootstrap

import (
	"errors"
	"os"
	"strings"
	"time"

	"storybook/internal/config"
	"storybook/internal/logging"
)

// LogServerConfiguration prints a snapshot of the resolved server configuration
// and where each setting came from.
func LogServerConfiguration(logger logging.Logger, cfg config.Config, meta config.Metadata) {
	logger = logging.OrNop(logger)

	logger.Info("=== Server Configuration ===")

	if path := meta.ConfigFile(); path != "" {
		logger.Info("Config file: %s", path)
		if info, err := os.Stat(path); err == nil {
			logger.Info("Config mtime: %s", info.ModTime().UTC().Format(time.RFC3339))
		} else if errors.Is(err, os.ErrNotExist) {
			logger.Warn("Config file missing: %s", path)
		} else {
			logger.Warn("Config file stat failed: %v", err)
		}
	} else {
		logger.Info("Config file: (none, using defaults and environment)")
	}

	logger.Info("Listen address: %s (source=%s)", cfg.Server.Addr, meta.Source("server.addr"))
	logger.Info("Environment: %s (source=%s)", cfg.Server.Environment, meta.Source("server.environment"))
	logger.Info("Allowed origins: %s (source=%s)", strings.Join(cfg.Server.AllowedOrigins, ","), meta.Source("server.allowed_origins"))
	if cfg.Server.RateLimitPerMinute > 0 {
		logger.Info("Rate limit: %d/min burst %d", cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)
	} else {
		logger.Info("Rate limit: (disabled)")
	}

	logger.Info("Heartbeat interval: %s (source=%s)", cfg.Stream.HeartbeatInterval, meta.Source("stream.heartbeat_interval"))
	logger.Info("Idle timeout: %s (source=%s)", cfg.Stream.IdleTimeout, meta.Source("stream.idle_timeout"))
	if cfg.Stream.MaxDuration > 0 {
		logger.Info("Max stream duration: %s (source=%s)", cfg.Stream.MaxDuration, meta.Source("stream.max_duration"))
	} else {
		logger.Info("Max stream duration: (unlimited)")
	}
	logger.Info("Max concurrent streams: %d (source=%s)", cfg.Stream.MaxConcurrent, meta.Source("stream.max_concurrent"))
	logger.Info("Max pages: %d (source=%s)", cfg.Stream.MaxPages, meta.Source("stream.max_pages"))

	logger.Info("Executor: %s (source=%s)", cfg.Executor.Kind, meta.Source("executor.kind"))
	switch cfg.Executor.Kind {
	case config.ExecutorReplay:
		logger.Info("Replay file: %s (delay=%s)", cfg.Executor.ReplayFile, cfg.Executor.ReplayDelay)
	default:
		logger.Info("GPTScript binary: %s script: %s", cfg.Executor.Binary, cfg.Executor.Script)
		if cfg.Executor.WorkDir != "" {
			logger.Info("GPTScript workdir: %s", cfg.Executor.WorkDir)
		}
		if len(cfg.Executor.ExtraArgs) > 0 {
			logger.Info("GPTScript extra args: %s", strings.Join(cfg.Executor.ExtraArgs, " "))
		}
	}
}
