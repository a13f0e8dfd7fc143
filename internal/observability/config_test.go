package observability

import (
	"testing"

	"github.com/smallbiznis/billbook/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsAppConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:  "1.2.0",
		Environment: "production",
		Observability: config.ObservabilityConfig{
			LogLevel:      "warn",
			LogFormat:     "json",
			OtelEnabled:   true,
			OtlpEndpoint:  " collector:4317 ",
			OtlpProtocol:  "grpc",
			SamplingRatio: 0.5,
		},
	})

	assert.Equal(t, "billbook", cfg.ServiceName)
	assert.False(t, cfg.Debug())
	assert.Equal(t, "collector:4317", cfg.Tracing().ExporterEndpoint)
	assert.Equal(t, 0.5, cfg.Tracing().SamplingRatio)
	assert.True(t, cfg.Metrics().Enabled)
	assert.Equal(t, "warn", cfg.Logger().Level)
}

func TestDebugFollowsLevelOrEnvironment(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "local"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
