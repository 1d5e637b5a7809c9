package app

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"storybook/internal/config"
	"storybook/internal/server/ports"
)

// HealthCheckerImpl aggregates health probes for all components
type HealthCheckerImpl struct {
	probes []ports.HealthProbe
	mu     sync.RWMutex
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthCheckerImpl {
	return &HealthCheckerImpl{
		probes: make([]ports.HealthProbe, 0),
	}
}

// RegisterProbe adds a health probe
func (h *HealthCheckerImpl) RegisterProbe(probe ports.HealthProbe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe)
}

// CheckAll returns health status for all components
func (h *HealthCheckerImpl) CheckAll(ctx context.Context) []ports.ComponentHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make([]ports.ComponentHealth, 0, len(h.probes))
	for _, probe := range h.probes {
		results = append(results, probe.Check(ctx))
	}
	return results
}

// ExecutorProbe checks that the configured executor can be launched.
type ExecutorProbe struct {
	cfg      config.ExecutorConfig
	lookPath func(string) (string, error)
}

// NewExecutorProbe creates a new executor health probe
func NewExecutorProbe(cfg config.ExecutorConfig) *ExecutorProbe {
	return &ExecutorProbe{cfg: cfg, lookPath: exec.LookPath}
}

// Check returns the health status of the executor
func (p *ExecutorProbe) Check(ctx context.Context) ports.ComponentHealth {
	health := ports.ComponentHealth{
		Name:    "executor",
		Details: map[string]any{"kind": p.cfg.Kind},
	}

	switch p.cfg.Kind {
	case config.ExecutorReplay:
		health.Details["replay_file"] = p.cfg.ReplayFile
		if _, err := os.Stat(p.cfg.ReplayFile); err != nil {
			health.Status = ports.HealthStatusNotReady
			health.Message = err.Error()
			return health
		}
		health.Status = ports.HealthStatusReady
		health.Message = "replay recording available"
		return health
	default:
		binary, err := p.lookPath(p.cfg.Binary)
		if err != nil {
			health.Status = ports.HealthStatusNotReady
			health.Message = err.Error()
			return health
		}
		health.Details["binary"] = binary

		script := p.cfg.Script
		if p.cfg.WorkDir != "" && !filepath.IsAbs(script) {
			script = filepath.Join(p.cfg.WorkDir, script)
		}
		health.Details["script"] = script
		if _, err := os.Stat(script); err != nil {
			health.Status = ports.HealthStatusNotReady
			health.Message = err.Error()
			return health
		}
		health.Status = ports.HealthStatusReady
		health.Message = "gptscript executor available"
		return health
	}
}

// Healthy reports whether every result is ready or disabled.
func Healthy(results []ports.ComponentHealth) bool {
	for _, r := range results {
		if r.Status == ports.HealthStatusNotReady {
			return false
		}
	}
	return true
}
