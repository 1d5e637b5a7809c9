package observability

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Observability manages all observability components
type Observability struct {
	Logger  *Logger
	Metrics *MetricsCollector
	Tracer  *TracerProvider
	config  Config
}

// New creates a new observability instance from the config file at configPath.
func New(configPath string) (*Observability, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load observability config: %w", err)
	}
	return NewFromConfig(config), nil
}

// NewFromConfig builds every component. Metrics and tracing failures degrade
// to no-op implementations instead of failing startup.
func NewFromConfig(config Config) *Observability {
	logger := NewLogger(LogConfig{
		Level:  config.Logging.Level,
		Format: config.Logging.Format,
	})
	SetDefaultLogger(logger)

	metrics, err := NewMetricsCollector(config.Metrics)
	if err != nil {
		logger.Error("Failed to initialize metrics", "error", err)
		metrics = &MetricsCollector{}
	}

	tracer, err := NewTracerProvider(config.Tracing)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		tracer = NoopTracerProvider()
	}

	logger.Info("Observability initialized",
		"log_level", config.Logging.Level,
		"metrics_enabled", config.Metrics.Enabled,
		"tracing_enabled", config.Tracing.Enabled,
	)

	return &Observability{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
		config:  config,
	}
}

// Shutdown gracefully shuts down all observability components
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	o.Logger.Info("Shutting down observability")
	return errors.Join(o.Metrics.Shutdown(ctx), o.Tracer.Shutdown(ctx))
}

// Config returns the current configuration
func (o *Observability) Config() Config {
	return o.config
}

var processLogger atomic.Pointer[Logger]

// SetDefaultLogger installs the process-wide logger component loggers use.
func SetDefaultLogger(l *Logger) {
	if l != nil {
		processLogger.Store(l)
	}
}

// DefaultLogger returns the process-wide logger, creating a text logger on
// stderr if none was installed.
func DefaultLogger() *Logger {
	if l := processLogger.Load(); l != nil {
		return l
	}
	l := NewLogger(LogConfig{})
	if processLogger.CompareAndSwap(nil, l) {
		return l
	}
	return processLogger.Load()
}
