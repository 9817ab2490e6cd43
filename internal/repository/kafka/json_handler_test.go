package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	domainkafka "github.com/growsome/trafficlens/internal/domain/kafka"
)

func TestJSONHandler(t *testing.T) {
	var got domainkafka.DispatchRequested
	h := JSONHandler(func(_ context.Context, key []byte, ev domainkafka.DispatchRequested) error {
		assert.Equal(t, "12", string(key))
		got = ev
		return nil
	})

	require.NoError(t, h(context.Background(), KeyFromInt64(12), []byte(`{"campaign_id":12,"requested_at":"2026-01-02T03:04:05Z"}`)))
	assert.EqualValues(t, 12, got.CampaignID)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), got.RequestedAt)

	err := h(context.Background(), nil, []byte(`not json`))
	assert.ErrorIs(t, err, ErrPoison)
}

func TestHeaderCarrierRoundTrip(t *testing.T) {
	prop := propagation.TraceContext{}
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	var hs []kafka.Header
	prop.Inject(ctx, headerCarrier{hs: &hs})
	prop.Inject(ctx, headerCarrier{hs: &hs})
	require.Len(t, hs, 1)
	assert.Equal(t, "traceparent", hs[0].Key)

	extracted := prop.Extract(context.Background(), headerCarrier{hs: &hs})
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}
