package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/growsome/trafficlens/internal/domain/kafka"
	"github.com/growsome/trafficlens/internal/domain/outbox"
	"github.com/growsome/trafficlens/internal/obs/retry"
)

// CampaignDuePayload is the outbox body written by the scheduler.
type CampaignDuePayload struct {
	CampaignID  int64     `json:"campaign_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// CampaignDueKey identifies one claim of a campaign. A rescheduled campaign
// gets a new key for its new send time.
func CampaignDueKey(campaignID int64, scheduledAt time.Time) string {
	return fmt.Sprintf("campaign-due:%d:%d", campaignID, scheduledAt.Unix())
}

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trafficlens_outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficlens_outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

// WrapKindHandler retries h according to p.
func WrapKindHandler(h outbox.KindHandler, p retry.Policy) outbox.KindHandler {
	return func(ctx context.Context, data []byte) error {
		return retry.Do(ctx, func() error { return h(ctx, data) }, p)
	}
}

func instrument(kind string, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind
	}
	wrapped := WrapKindHandler(h, pol)
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle", trace.WithAttributes(attribute.String("outbox.kind", kind)))
		defer span.End()

		start := time.Now()
		err := wrapped(ctx, data)
		outboxHandlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind).Inc()
		}
		return err
	}
}

// MakeGlobalOutboxHandler routes outbox kinds to their publishers.
func MakeGlobalOutboxHandler(pub kafka.CampaignEvents, pol retry.Policy) outbox.GlobalHandler {
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch kind {
		case outbox.KindCampaignDue:
			base := func(ctx context.Context, data []byte) error {
				var p CampaignDuePayload
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("unmarshal campaign-due payload: %w", err)
				}
				return pub.PublishDispatchRequested(ctx, kafka.DispatchRequested{
					CampaignID:  p.CampaignID,
					RequestedAt: p.RequestedAt,
				})
			}
			return instrument("campaign_due", base, pol), nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
	}
}
