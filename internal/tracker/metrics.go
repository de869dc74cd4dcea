package tracker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/fieldvigil/fieldvigil/internal/tracker"

// metrics holds the OpenTelemetry instruments of the background engine.
type metrics struct {
	cyclesTotal     metric.Int64Counter
	cyclesSkipped   metric.Int64Counter
	refreshFailures metric.Int64Counter
	alertsRaised    metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(meterName)

	cyclesTotal, err := meter.Int64Counter(
		"tracker.cycles.total",
		metric.WithDescription("Total number of completed background cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cyclesSkipped, err := meter.Int64Counter(
		"tracker.cycles.skipped",
		metric.WithDescription("Cycles aborted before risk evaluation"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	refreshFailures, err := meter.Int64Counter(
		"tracker.cache.refresh_failures",
		metric.WithDescription("Failed risk zone refresh attempts"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, err
	}

	alertsRaised, err := meter.Int64Counter(
		"tracker.alerts.raised",
		metric.WithDescription("Risks found inside the alert radius"),
		metric.WithUnit("{risk}"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		cyclesTotal:     cyclesTotal,
		cyclesSkipped:   cyclesSkipped,
		refreshFailures: refreshFailures,
		alertsRaised:    alertsRaised,
	}, nil
}

func (m *metrics) recordSkip(ctx context.Context, reason string) {
	m.cyclesSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
