package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"storybook/internal/events"
)

// Run outcomes recorded on storybook.runs.completed.
const (
	RunStatusFinished  = "finished"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
	RunStatusTimeout   = "timeout"
)

// MetricsCollector manages all metrics for the storybook bridge
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider
	gatherer promclient.Gatherer

	runsStarted    metric.Int64Counter
	runsCompleted  metric.Int64Counter
	runDuration    metric.Float64Histogram
	framesRelayed  metric.Int64Counter
	streamsActive  metric.Int64UpDownCounter
	requestsDenied metric.Int64Counter

	// Server for Prometheus scraping on a dedicated port
	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// PrometheusPort serves /metrics on its own listener when set; otherwise
	// the API router exposes it.
	PrometheusPort int `yaml:"prometheus_port"`

	// Registry overrides the default Prometheus registry (tests).
	Registry *promclient.Registry `yaml:"-"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	var registerer promclient.Registerer = promclient.DefaultRegisterer
	var gatherer promclient.Gatherer = promclient.DefaultGatherer
	if config.Registry != nil {
		registerer = config.Registry
		gatherer = config.Registry
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(registerer))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("storybook")

	collector := &MetricsCollector{provider: provider, gatherer: gatherer}

	if collector.runsStarted, err = meter.Int64Counter(
		"storybook.runs.started",
		metric.WithDescription("Runs whose executor started"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create runs_started counter: %w", err)
	}

	if collector.runsCompleted, err = meter.Int64Counter(
		"storybook.runs.completed",
		metric.WithDescription("Runs that ended, by outcome"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create runs_completed counter: %w", err)
	}

	if collector.runDuration, err = meter.Float64Histogram(
		"storybook.run.duration",
		metric.WithDescription("Wall time from executor start to stream close"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create run_duration histogram: %w", err)
	}

	if collector.framesRelayed, err = meter.Int64Counter(
		"storybook.frames.relayed",
		metric.WithDescription("Event frames written to clients, by event type"),
		metric.WithUnit("{frame}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create frames_relayed counter: %w", err)
	}

	if collector.streamsActive, err = meter.Int64UpDownCounter(
		"storybook.streams.active",
		metric.WithDescription("Open event streams"),
		metric.WithUnit("{stream}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create streams_active gauge: %w", err)
	}

	if collector.requestsDenied, err = meter.Int64Counter(
		"storybook.requests.rejected",
		metric.WithDescription("Run requests refused before streaming, by reason"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create requests_rejected counter: %w", err)
	}

	if config.PrometheusPort > 0 {
		collector.startPrometheusServer(config.PrometheusPort)
	}

	return collector, nil
}

// Handler serves the Prometheus exposition for this collector.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ServesOwnPort reports whether metrics are exposed on a dedicated listener.
func (m *MetricsCollector) ServesOwnPort() bool {
	return m != nil && m.prometheusServer != nil
}

func (m *MetricsCollector) startPrometheusServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	m.prometheusServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := m.prometheusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			DefaultLogger().Error("prometheus server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.prometheusServer != nil {
		errs = append(errs, m.prometheusServer.Shutdown(ctx))
	}
	if m.provider != nil {
		errs = append(errs, m.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// RecordRunStarted counts a run whose executor started.
func (m *MetricsCollector) RecordRunStarted(ctx context.Context, executor string) {
	if m == nil || m.runsStarted == nil {
		return
	}
	m.runsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("executor", executor)))
}

// RecordRunCompleted records the outcome and duration of a run.
func (m *MetricsCollector) RecordRunCompleted(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.runsCompleted == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runsCompleted.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFrame counts one relayed frame. Types outside the known vocabulary
// share one label value.
func (m *MetricsCollector) RecordFrame(ctx context.Context, eventType events.Type) {
	if m == nil || m.framesRelayed == nil {
		return
	}
	label := string(eventType)
	if !eventType.Known() {
		label = "other"
	}
	m.framesRelayed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", label)))
}

// RecordRejected counts a request refused before streaming.
func (m *MetricsCollector) RecordRejected(ctx context.Context, reason string) {
	if m == nil || m.requestsDenied == nil {
		return
	}
	m.requestsDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// IncrementActiveStreams increments the open streams gauge
func (m *MetricsCollector) IncrementActiveStreams(ctx context.Context) {
	if m == nil || m.streamsActive == nil {
		return
	}
	m.streamsActive.Add(ctx, 1)
}

// DecrementActiveStreams decrements the open streams gauge
func (m *MetricsCollector) DecrementActiveStreams(ctx context.Context) {
	if m == nil || m.streamsActive == nil {
		return
	}
	m.streamsActive.Add(ctx, -1)
}
