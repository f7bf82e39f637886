package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

const (
	otelReaderManual = "manual"
	otelReaderLog    = "log"
	serviceName      = "godeliver"
)

// newMeterProvider returns the provider and, for the manual reader, the
// reader itself so callers can Collect on demand.
func newMeterProvider(cfg otelSection, logger *zap.Logger) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader, error) {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	switch cfg.Reader {
	case otelReaderManual:
		reader := sdkmetric.NewManualReader()
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), reader, nil
	case otelReaderLog:
		reader := sdkmetric.NewPeriodicReader(&logExporter{logger: logger}, sdkmetric.WithInterval(cfg.Interval))
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics.otel.reader %q", cfg.Reader)
	}
}

// logExporter writes each collection as one structured log entry.
type logExporter struct {
	logger *zap.Logger
}

var _ sdkmetric.Exporter = (*logExporter)(nil)

func (e *logExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *logExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *logExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	var fields []zap.Field
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					fields = append(fields, zap.Int64(pointKey(m.Name, dp.Attributes), dp.Value))
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					fields = append(fields, zap.Int64(pointKey(m.Name, dp.Attributes), dp.Value))
				}
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	e.logger.Info("metrics", fields...)
	return nil
}

func (e *logExporter) ForceFlush(context.Context) error { return nil }

func (e *logExporter) Shutdown(context.Context) error {
	_ = e.logger.Sync()
	return nil
}

func pointKey(name string, attrs attribute.Set) string {
	if attrs.Len() == 0 {
		return name
	}
	return name + "{" + attrs.Encoded(attribute.DefaultEncoder()) + "}"
}
