package observability

import (
	"strings"

	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/observability/tracing"
)

// Config is the observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled   bool
	OtlpEndpoint  string
	OtlpProtocol  string
	SamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	o := cfg.Observability
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "billbook"
	}
	return Config{
		ServiceName:   name,
		Environment:   strings.TrimSpace(cfg.Environment),
		Version:       strings.TrimSpace(cfg.AppVersion),
		LogLevel:      o.LogLevel,
		LogFormat:     o.LogFormat,
		OtelEnabled:   o.OtelEnabled,
		OtlpEndpoint:  strings.TrimSpace(o.OtlpEndpoint),
		OtlpProtocol:  o.OtlpProtocol,
		SamplingRatio: o.SamplingRatio,
	}
}

// Debug turns on console-friendly logs and gin debug mode.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtlpEndpoint,
		ExporterProtocol: c.OtlpProtocol,
		SamplingRatio:    c.SamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtlpEndpoint,
		ExporterProtocol: c.OtlpProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
