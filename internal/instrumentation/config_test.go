package instrumentation

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	for _, key := range []string{
		"OTEL_SERVICE_NAME", "INSTRUMENTATION_ENABLED", "METRICS_EXPORTER",
		"TRACING_EXPORTER", "OTEL_TRACES_SAMPLER_ARG", "AUDIT_LOGGING_INCLUDE_PII",
	} {
		t.Setenv(key, "")
	}

	config := DefaultConfig()

	assert.Equal(t, "followmail", config.ServiceName)
	assert.True(t, config.Enabled)
	assert.Equal(t, ExporterPrometheus, config.MetricsExporter)
	assert.Equal(t, ExporterNone, config.TracingExporter)
	assert.InDelta(t, 0.1, config.TraceSamplingRate, 1e-9)
	assert.True(t, config.AuditLogging.Enabled)
	assert.False(t, config.AuditLogging.IncludePII)
	assert.NoError(t, config.Validate())
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "followmail-staging")
	t.Setenv("INSTRUMENTATION_ENABLED", "false")
	t.Setenv("METRICS_EXPORTER", ExporterStdout)
	t.Setenv("TRACING_EXPORTER", ExporterOTLP)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	t.Setenv("AUDIT_LOGGING_INCLUDE_PII", "true")

	config := DefaultConfig()

	assert.Equal(t, "followmail-staging", config.ServiceName)
	assert.False(t, config.Enabled)
	assert.Equal(t, ExporterStdout, config.MetricsExporter)
	assert.Equal(t, ExporterOTLP, config.TracingExporter)
	assert.Equal(t, "collector:4318", config.OTLPEndpoint)
	assert.InDelta(t, 0.5, config.TraceSamplingRate, 1e-9)
	assert.True(t, config.AuditLogging.IncludePII)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			ServiceName:       "followmail",
			Enabled:           true,
			MetricsExporter:   ExporterPrometheus,
			TracingExporter:   ExporterNone,
			TraceSamplingRate: 0.1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "disabled skips checks", mutate: func(c *Config) { c.Enabled = false; c.MetricsExporter = "bogus" }},
		{name: "otlp with endpoint", mutate: func(c *Config) {
			c.MetricsExporter, c.TracingExporter, c.OTLPEndpoint = ExporterOTLP, ExporterOTLP, "collector:4318"
		}},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: []string{"service name is required"}},
		{name: "sampling rate above one", mutate: func(c *Config) { c.TraceSamplingRate = 1.5 }, wantErr: []string{"trace sampling rate"}},
		{name: "negative sampling rate", mutate: func(c *Config) { c.TraceSamplingRate = -0.1 }, wantErr: []string{"trace sampling rate"}},
		{name: "empty metrics exporter", mutate: func(c *Config) { c.MetricsExporter = "" }, wantErr: []string{"invalid metrics exporter"}},
		{name: "otlp metrics without endpoint", mutate: func(c *Config) { c.MetricsExporter = ExporterOTLP }, wantErr: []string{"OTLP endpoint is required"}},
		{
			name:    "reports every problem",
			mutate:  func(c *Config) { c.TracingExporter = "zipkin"; c.TraceSamplingRate = 2 },
			wantErr: []string{"invalid tracing exporter", "trace sampling rate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(&config)

			err := config.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestConfig_InstanceID(t *testing.T) {
	config := Config{InstanceID: "replica-1"}
	assert.Equal(t, "replica-1", config.instanceID())

	hostname, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, hostname, (&Config{}).instanceID())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("FM_STRING", "value")
	t.Setenv("FM_BOOL", "true")
	t.Setenv("FM_BOOL_INVALID", "maybe")
	t.Setenv("FM_FLOAT", "0.75")
	t.Setenv("FM_FLOAT_INVALID", "lots")

	assert.Equal(t, "value", getEnvOrDefault("FM_STRING", "default"))
	assert.Equal(t, "default", getEnvOrDefault("FM_UNSET", "default"))

	assert.True(t, getEnvBoolOrDefault("FM_BOOL", false))
	assert.True(t, getEnvBoolOrDefault("FM_BOOL_INVALID", true))
	assert.False(t, getEnvBoolOrDefault("FM_UNSET", false))

	assert.InDelta(t, 0.75, getEnvFloatOrDefault("FM_FLOAT", 0.5), 1e-9)
	assert.InDelta(t, 0.5, getEnvFloatOrDefault("FM_FLOAT_INVALID", 0.5), 1e-9)
	assert.InDelta(t, 0.5, getEnvFloatOrDefault("FM_UNSET", 0.5), 1e-9)
}
