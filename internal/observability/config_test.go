package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.True(t, config.Metrics.Enabled)
	assert.Zero(t, config.Metrics.PrometheusPort)
	assert.False(t, config.Tracing.Enabled)
	assert.Equal(t, "otlp", config.Tracing.Exporter)
	assert.Equal(t, 1.0, config.Tracing.SampleRate)
	assert.Equal(t, "storybook", config.Tracing.ServiceName)
}

func TestLoadConfig_NonExistent(t *testing.T) {
	config, err := LoadConfig("/nonexistent/path/storybook.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)

	config, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "storybook.yaml")
	configContent := `
server:
  addr: ":9000"
observability:
  logging:
    level: debug
    format: json
  metrics:
    enabled: true
    prometheus_port: 9464
  tracing:
    enabled: true
    exporter: zipkin
    zipkin_endpoint: http://zipkin:9411/api/v2/spans
    sample_rate: 0.5
    service_name: storybook-test
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.True(t, config.Metrics.Enabled)
	assert.Equal(t, 9464, config.Metrics.PrometheusPort)
	assert.True(t, config.Tracing.Enabled)
	assert.Equal(t, "zipkin", config.Tracing.Exporter)
	assert.Equal(t, "http://zipkin:9411/api/v2/spans", config.Tracing.ZipkinEndpoint)
	assert.Equal(t, 0.5, config.Tracing.SampleRate)
	assert.Equal(t, "storybook-test", config.Tracing.ServiceName)
	assert.Equal(t, "dev", config.Tracing.ServiceVersion)
}

func TestLoadConfig_PartialFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "storybook.yaml")
	configContent := `
observability:
  logging:
    level: warn
  metrics:
    enabled: false
  tracing:
    sample_rate: 7
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "warn", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.False(t, config.Metrics.Enabled)
	assert.False(t, config.Tracing.Enabled)
	assert.Equal(t, 1.0, config.Tracing.SampleRate)
}

func TestLoadConfig_NoObservabilitySection(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "storybook.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  addr: \":8080\"\n"), 0o644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "storybook.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("observability: [unclosed"), 0o644))

	_, err := LoadConfig(configPath)
	assert.Error(t, err)
}
