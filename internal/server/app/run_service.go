package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storybook/internal/config"
	"storybook/internal/executor"
	"storybook/internal/logging"
	"storybook/internal/observability"
)

// RunServiceConfig bounds the runs a RunService launches.
type RunServiceConfig struct {
	// ExecutorName labels metrics and spans.
	ExecutorName      string
	MaxPages          int
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
}

// RunService validates job requests, launches exactly one executor run per
// request and relays its events to a FrameSink.
type RunService struct {
	executor executor.Executor
	cfg      RunServiceConfig
	logger   logging.Logger
	obs      *observability.Observability
	newID    func() string
}

// RunServiceOption configures a RunService.
type RunServiceOption func(*RunService)

// WithRunLogger sets the service logger.
func WithRunLogger(logger logging.Logger) RunServiceOption {
	return func(s *RunService) {
		s.logger = logging.OrNop(logger)
	}
}

// WithRunObservability enables metrics and tracing for runs.
func WithRunObservability(obs *observability.Observability) RunServiceOption {
	return func(s *RunService) {
		s.obs = obs
	}
}

// WithRunIDGenerator replaces the uuid run id generator.
func WithRunIDGenerator(fn func() string) RunServiceOption {
	return func(s *RunService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewRunService creates a run service around exec.
func NewRunService(exec executor.Executor, cfg RunServiceConfig, opts ...RunServiceOption) *RunService {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = config.DefaultMaxPage
	}
	if cfg.ExecutorName == "" {
		cfg.ExecutorName = "unknown"
	}
	s := &RunService{
		executor: exec,
		cfg:      cfg,
		logger:   logging.NewComponentLogger("RunService"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Config returns the service limits.
func (s *RunService) Config() RunServiceConfig { return s.cfg }

// Validate performs the superficial checks done before any executor starts.
func (s *RunService) Validate(job executor.Job) error {
	if strings.TrimSpace(job.Prompt) == "" {
		return ValidationError("prompt is required")
	}
	if job.PageCount < 1 || job.PageCount > s.cfg.MaxPages {
		return ValidationError(fmt.Sprintf("pageCount must be between 1 and %d", s.cfg.MaxPages))
	}
	if strings.ContainsRune(job.OutputPath, 0) {
		return ValidationError("outputPath contains a NUL byte")
	}
	return nil
}

// Start validates job and launches it. The returned Stream must be relayed
// with Relay, or released with Abort. Cancelling ctx cancels the executor.
func (s *RunService) Start(ctx context.Context, job executor.Job) (*Stream, error) {
	if err := s.Validate(job); err != nil {
		s.metrics().RecordRejected(ctx, "validation")
		return nil, err
	}
	if s.executor == nil {
		s.metrics().RecordRejected(ctx, "executor")
		return nil, UnavailableError(errors.New("no executor configured"))
	}

	id := s.newID()
	ctx = observability.ContextWithRunID(ctx, id)
	logger := logging.FromContext(ctx, s.logger)

	ctx, runSpan := s.tracer().StartSpan(ctx, observability.SpanRun, observability.RunAttrs(s.cfg.ExecutorName, job.PageCount)...)
	runCtx, cancel := context.WithCancelCause(ctx)

	startCtx, startSpan := s.tracer().StartSpan(runCtx, observability.SpanExecutorStart)
	started := time.Now()
	run, err := s.executor.Start(startCtx, job)
	if err != nil {
		startSpan.RecordError(err)
		startSpan.SetStatus(codes.Error, err.Error())
		startSpan.End()
		cancel(err)
		runSpan.SetAttributes(observability.ErrorAttrs(err)...)
		runSpan.SetStatus(codes.Error, "executor failed to start")
		runSpan.End()
		s.metrics().RecordRejected(ctx, "executor")
		logger.Error("Executor failed to start %s: %v", job, err)
		return nil, UnavailableError(err)
	}
	startSpan.End()

	s.metrics().RecordRunStarted(ctx, s.cfg.ExecutorName)
	logger.Info("Run started: %s", job)

	return &Stream{
		ID:      id,
		Job:     job,
		svc:     s,
		run:     run,
		parent:  ctx,
		ctx:     runCtx,
		cancel:  cancel,
		span:    runSpan,
		logger:  logger,
		started: started,
	}, nil
}

func (s *RunService) metrics() *observability.MetricsCollector {
	if s.obs == nil {
		return nil
	}
	return s.obs.Metrics
}

func (s *RunService) tracer() *observability.TracerProvider {
	if s.obs == nil {
		return nil
	}
	return s.obs.Tracer
}

// Stream is one started run awaiting relay.
type Stream struct {
	ID  string
	Job executor.Job

	svc    *RunService
	run    executor.Run
	parent context.Context
	ctx    context.Context
	cancel context.CancelCauseFunc
	span   trace.Span
	logger logging.Logger

	started time.Time
}

// Context carries the run id and the run span.
func (st *Stream) Context() context.Context { return st.ctx }

// Abort cancels a stream that will never be relayed and waits for the
// executor to release its resources.
func (st *Stream) Abort(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	st.cancel(cause)
	for range st.run.Events() {
	}
	err := st.run.Wait()
	st.span.SetStatus(codes.Error, cause.Error())
	st.span.End()
	st.svc.metrics().RecordRunCompleted(st.parent, observability.RunStatusCancelled, time.Since(st.started))
	st.logger.Warn("Run aborted before relay: %v (executor: %v)", cause, err)
}
