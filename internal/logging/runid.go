package logging

import (
	"context"

	"storybook/internal/observability"
)

type runIDCapable interface {
	WithRunID(string) Logger
}

// WithRunID returns a logger that tags log lines with a run id.
func WithRunID(logger Logger, runID string) Logger {
	if IsNil(logger) {
		return Nop()
	}
	if runID == "" {
		return logger
	}
	if capable, ok := logger.(runIDCapable); ok {
		return capable.WithRunID(runID)
	}
	return &runIDLogger{logger: logger, runID: runID}
}

// FromContext returns a logger tagged with the run id found in ctx, if any.
func FromContext(ctx context.Context, logger Logger) Logger {
	return WithRunID(logger, observability.RunIDFromContext(ctx))
}

type runIDLogger struct {
	logger Logger
	runID  string
}

func (l *runIDLogger) Debug(format string, args ...any) {
	l.logger.Debug(prefixRunID(l.runID, format), args...)
}

func (l *runIDLogger) Info(format string, args ...any) {
	l.logger.Info(prefixRunID(l.runID, format), args...)
}

func (l *runIDLogger) Warn(format string, args ...any) {
	l.logger.Warn(prefixRunID(l.runID, format), args...)
}

func (l *runIDLogger) Error(format string, args ...any) {
	l.logger.Error(prefixRunID(l.runID, format), args...)
}

// WithRunID on the component logger attaches the id as a structured field.
func (l *componentLogger) WithRunID(runID string) Logger {
	return FromObservabilityWithComponent(observability.DefaultLogger().With("run_id", runID), l.component)
}

func (l *observabilityPrintfLogger) WithRunID(runID string) Logger {
	return &observabilityPrintfLogger{logger: l.logger.With("run_id", runID)}
}

func prefixRunID(runID, format string) string {
	return "run_id=" + runID + " " + format
}
