package dispatch

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter  = otel.Meter("runner/dispatch")
	tracer = otel.Tracer("runner/dispatch")
)

type instruments struct {
	duration metric.Float64Histogram
	failures metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	duration, err := meter.Float64Histogram(
		"runner.callback.duration",
		metric.WithDescription("Time a module spent handling one callback"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		"runner.callback.failures",
		metric.WithDescription("Module callbacks that panicked"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}
	return &instruments{duration: duration, failures: failures}, nil
}
