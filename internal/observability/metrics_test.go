package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybook/internal/events"
)

func scrape(t *testing.T, m *MetricsCollector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsCollectorExportsRunMetrics(t *testing.T) {
	m, err := NewMetricsCollector(MetricsConfig{Enabled: true, Registry: promclient.NewRegistry()})
	require.NoError(t, err)
	defer func() { _ = m.Shutdown(context.Background()) }()

	ctx := context.Background()
	m.RecordRunStarted(ctx, "gptscript")
	m.IncrementActiveStreams(ctx)
	m.RecordFrame(ctx, events.TypeRunStart)
	m.RecordFrame(ctx, events.Type("callTeleport"))
	m.RecordRunCompleted(ctx, RunStatusFinished, 1500*time.Millisecond)
	m.DecrementActiveStreams(ctx)
	m.RecordRejected(ctx, "validation")

	body := scrape(t, m)
	assert.Contains(t, body, "storybook_runs_started")
	assert.Contains(t, body, `executor="gptscript"`)
	assert.Contains(t, body, "storybook_runs_completed")
	assert.Contains(t, body, `status="finished"`)
	assert.Contains(t, body, "storybook_run_duration")
	assert.Contains(t, body, "storybook_frames_relayed")
	assert.Contains(t, body, `type="runStart"`)
	assert.Contains(t, body, `type="other"`)
	assert.NotContains(t, body, "callTeleport")
	assert.Contains(t, body, "storybook_streams_active")
	assert.Contains(t, body, `reason="validation"`)
	assert.False(t, m.ServesOwnPort())
}

func TestDisabledMetricsCollectorIsNoop(t *testing.T) {
	m, err := NewMetricsCollector(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRunStarted(ctx, "replay")
		m.RecordFrame(ctx, events.TypeRunFinish)
		m.RecordRunCompleted(ctx, RunStatusFailed, time.Second)
		m.IncrementActiveStreams(ctx)
		m.DecrementActiveStreams(ctx)
		m.RecordRejected(ctx, "limit")
	})
	assert.NoError(t, m.Shutdown(ctx))

	var nilCollector *MetricsCollector
	assert.NotPanics(t, func() { nilCollector.RecordRunStarted(ctx, "replay") })
	assert.NoError(t, nilCollector.Shutdown(ctx))
}
