package config

import (
	"errors"
	"fmt"
)

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, errors.New("server rate limits must not be negative"))
	}
	if c.Stream.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("stream.heartbeat_interval must be positive"))
	}
	if c.Stream.IdleTimeout < 0 || c.Stream.MaxDuration < 0 {
		errs = append(errs, errors.New("stream timeouts must not be negative"))
	}
	if c.Stream.MaxConcurrent < 0 {
		errs = append(errs, errors.New("stream.max_concurrent must not be negative"))
	}
	if c.Stream.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("stream.max_pages must be at least 1, got %d", c.Stream.MaxPages))
	}
	switch c.Executor.Kind {
	case ExecutorGPTScript:
		if c.Executor.Binary == "" || c.Executor.Script == "" {
			errs = append(errs, errors.New("executor.binary and executor.script are required for gptscript"))
		}
	case ExecutorReplay:
		if c.Executor.ReplayFile == "" {
			errs = append(errs, errors.New("executor.replay_file is required for replay"))
		}
		if c.Executor.ReplayDelay < 0 {
			errs = append(errs, errors.New("executor.replay_delay must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown executor.kind %q", c.Executor.Kind))
	}
	if c.Client.Pages < 0 {
		errs = append(errs, errors.New("client.pages must not be negative"))
	}
	if c.Client.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("client.max_pages must be at least 1, got %d", c.Client.MaxPages))
	}
	return errors.Join(errs...)
}
