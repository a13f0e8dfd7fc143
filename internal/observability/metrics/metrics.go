package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments exported over OTLP.
type Metrics struct {
	taxComputations metric.Int64Counter
	reportRequests  metric.Int64Counter
	invoiceTotal    metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("build metrics resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "billbook"
	}
	meter := provider.Meter(name)

	taxComputations, err := meter.Int64Counter("billbook_tax_computations_total",
		metric.WithDescription("Line items priced by the tax engine."))
	if err != nil {
		return nil, err
	}
	reportRequests, err := meter.Int64Counter("billbook_report_requests_total",
		metric.WithDescription("Dashboard report requests by period and cache outcome."))
	if err != nil {
		return nil, err
	}
	invoiceTotal, err := meter.Float64Histogram("billbook_invoice_total_amount",
		metric.WithDescription("Distribution of persisted invoice totals."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		taxComputations: taxComputations,
		reportRequests:  reportRequests,
		invoiceTotal:    invoiceTotal,
	}, nil
}

// RecordTaxComputation counts priced line items for a tax regime.
func (m *Metrics) RecordTaxComputation(ctx context.Context, taxType string, items int) {
	if m == nil || items <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("tax_type", strings.TrimSpace(taxType)))
	m.taxComputations.Add(ctx, int64(items), metric.WithAttributes(attrs...))
}

// RecordReportRequest counts a stats request and whether it was served from cache.
func (m *Metrics) RecordReportRequest(ctx context.Context, period string, cacheHit bool) {
	if m == nil {
		return
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	attrs := FilterAttributes(
		attribute.String("period", strings.TrimSpace(period)),
		attribute.String("cache", cache),
	)
	m.reportRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceTotal observes the grand total of a saved invoice.
func (m *Metrics) RecordInvoiceTotal(ctx context.Context, invoiceType string, total float64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("invoice_type", strings.TrimSpace(invoiceType)))
	m.invoiceTotal.Record(ctx, total, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"tax_type":     {},
	"invoice_type": {},
	"period":       {},
	"cache":        {},
	"action":       {},
	"status_code":  {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
