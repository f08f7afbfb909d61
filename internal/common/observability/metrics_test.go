package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

type nopLogger struct{ warnings int }

func (l *nopLogger) Warn(string, map[string]interface{}) { l.warnings++ }

func TestNewNoop_RecordsWithoutPanicking(t *testing.T) {
	o := NewNoop()
	ctx, span := o.StartSpan(context.Background(), "dispatch.process", attribute.String("session.id", "s-1"))
	defer span.End()

	assert.NotPanics(t, func() {
		o.RecordQueryProcessed(ctx, "quote", "answer")
		o.RecordQueryDuration(ctx, 12*time.Millisecond, "quote")
		o.Shutdown(ctx)
	})
}

func TestNew_WithJaegerEndpoint(t *testing.T) {
	log := &nopLogger{}
	o := New(Options{ServiceName: "orqon-test", JaegerEndpoint: "http://127.0.0.1:14268/api/traces", SampleRatio: 1}, log)

	_, span := o.StartSpan(context.Background(), "dispatch.process")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	o.Shutdown(context.Background())
}
