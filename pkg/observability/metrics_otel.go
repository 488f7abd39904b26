package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/platinummonkey/depreg/pkg/storage"
)

const meterName = "github.com/platinummonkey/depreg"

// OTelMetrics holds OpenTelemetry instruments for registry checks. The
// instruments are exported through the OTLP meter provider installed by
// InitOTel.
type OTelMetrics struct {
	checks     metric.Int64Counter
	dependents metric.Int64Histogram
}

// NewOTelMetrics creates the instruments on provider, or on the global
// provider when provider is nil
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	checks, err := meter.Int64Counter(
		"depreg.registry.checks",
		metric.WithDescription("Dependency checks by outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checks counter: %w", err)
	}

	dependents, err := meter.Int64Histogram(
		"depreg.registry.blocking_dependents",
		metric.WithDescription("Dependents reported by each dependents check"),
		metric.WithUnit("{dependent}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25, 50),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dependents histogram: %w", err)
	}

	return &OTelMetrics{checks: checks, dependents: dependents}, nil
}

// RecordCheck counts one dependency check
func (m *OTelMetrics) RecordCheck(ctx context.Context, hive storage.Hive, outcome string) {
	m.checks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("hive", string(hive)),
		attribute.String("outcome", outcome),
	))
}

// RecordDependents records how many dependents blocked a removal
func (m *OTelMetrics) RecordDependents(ctx context.Context, hive storage.Hive, blocking int) {
	m.dependents.Record(ctx, int64(blocking), metric.WithAttributes(
		attribute.String("hive", string(hive)),
	))
}
