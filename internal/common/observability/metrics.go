// internal/common/observability/metrics.go
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the otel meter and tracer used by the dispatcher.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider shutdowner
	tracer         trace.Tracer
	queryCounter   otelmetric.Int64Counter
	queryDuration  otelmetric.Float64Histogram
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Logger is the subset of the logger used during setup.
type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

// Options configure New.
type Options struct {
	ServiceName    string
	JaegerEndpoint string
	SampleRatio    float64
}

// New wires an otel MeterProvider backed by the prometheus exporter and, when
// a Jaeger endpoint is configured, a TracerProvider. Setup failures degrade to
// no-op instruments and are logged.
func New(opts Options, log Logger) *Observability {
	o := &Observability{tracer: tracenoop.NewTracerProvider().Tracer(opts.ServiceName)}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("prometheus exporter unavailable, meters disabled", map[string]interface{}{"error": err.Error()})
		o.initInstruments(noop.NewMeterProvider().Meter(opts.ServiceName))
	} else {
		provider := metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(provider)
		o.meterProvider = provider
		o.initInstruments(provider.Meter(opts.ServiceName))
	}

	if opts.JaegerEndpoint != "" {
		tp, err := newTracerProvider(opts)
		if err != nil {
			log.Warn("jaeger exporter unavailable, tracing disabled", map[string]interface{}{"error": err.Error()})
		} else {
			otel.SetTracerProvider(tp)
			o.tracerProvider = tp
			o.tracer = tp.Tracer(opts.ServiceName)
		}
	}

	return o
}

// NewNoop returns instruments that record nothing.
func NewNoop() *Observability {
	o := &Observability{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
	o.initInstruments(noop.NewMeterProvider().Meter("noop"))
	return o
}

func (o *Observability) initInstruments(meter otelmetric.Meter) {
	o.queryCounter, _ = meter.Int64Counter(
		"dispatch.queries",
		otelmetric.WithDescription("Number of queries processed"),
	)
	o.queryDuration, _ = meter.Float64Histogram(
		"dispatch.duration",
		otelmetric.WithDescription("Query processing duration"),
		otelmetric.WithUnit("ms"),
	)
}

// StartSpan opens a span for one dispatch turn.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordQueryProcessed(ctx context.Context, handler, kind string) {
	if o.queryCounter != nil {
		o.queryCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("handler", handler),
			attribute.String("kind", kind),
		))
	}
}

func (o *Observability) RecordQueryDuration(ctx context.Context, duration time.Duration, handler string) {
	if o.queryDuration != nil {
		o.queryDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("handler", handler),
		))
	}
}

func (o *Observability) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
