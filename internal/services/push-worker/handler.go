package push_worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/kafka"
	"github.com/growsome/trafficlens/internal/obs"
	"github.com/growsome/trafficlens/internal/obs/retry"
	kafkax "github.com/growsome/trafficlens/internal/repository/kafka"
	"github.com/growsome/trafficlens/internal/services/delivery"
)

type Dispatcher interface {
	SendDue(ctx context.Context, id int64) (*delivery.Result, error)
}

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trafficlens_push_worker_requests_total",
	Help: "Dispatch requests by result.",
}, []string{"result"})

// DefaultSendPolicy retries transient repository failures around a fan-out.
// Rows already created are skipped on the next attempt, so a retry never
// pushes twice.
func DefaultSendPolicy(log *zap.Logger) retry.Policy {
	return retry.Policy{
		Name:     "campaign_send",
		Attempts: 4,
		Backoff:  retry.ExpoJitter{Base: 500 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !final(err)
		},
		OnAttempt: func(i int, err error) {
			if log != nil && !final(err) {
				log.Warn("send retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
	}
}

func final(err error) bool {
	return errors.Is(err, delivery.ErrAlreadySent) ||
		errors.Is(err, delivery.ErrNotDue) ||
		errors.Is(err, domain.ErrNotFound)
}

type Handler struct {
	log    *zap.Logger
	disp   Dispatcher
	policy retry.Policy
}

func NewHandler(log *zap.Logger, disp Dispatcher, policy retry.Policy) *Handler {
	return &Handler{log: obs.Component(log, "push-worker"), disp: disp, policy: policy}
}

// HandleDispatch fans out one campaign. Duplicate and stale requests are
// acknowledged; a request for a missing campaign is reported as poison.
func (h *Handler) HandleDispatch(ctx context.Context, ev kafka.DispatchRequested) error {
	log := obs.WithTrace(ctx, h.log).With(zap.Int64("campaign_id", ev.CampaignID))
	if ev.CampaignID <= 0 {
		requestsTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: campaign id %d", kafkax.ErrPoison, ev.CampaignID)
	}

	res, err := retry.DoValue(ctx, func() (*delivery.Result, error) {
		return h.disp.SendDue(ctx, ev.CampaignID)
	}, h.policy)

	switch {
	case err == nil:
		requestsTotal.WithLabelValues("sent").Inc()
		log.Info("campaign dispatched",
			zap.Int("targeted", res.Targeted),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Duration("lag", time.Since(ev.RequestedAt)),
		)
		return nil
	case errors.Is(err, delivery.ErrAlreadySent):
		requestsTotal.WithLabelValues("duplicate").Inc()
		log.Debug("campaign already sent")
		return nil
	case errors.Is(err, delivery.ErrNotDue):
		requestsTotal.WithLabelValues("not_due").Inc()
		log.Info("campaign rescheduled after claim")
		return nil
	case errors.Is(err, domain.ErrNotFound):
		requestsTotal.WithLabelValues("missing").Inc()
		return fmt.Errorf("%w: %v", kafkax.ErrPoison, err)
	default:
		requestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("send campaign %d: %w", ev.CampaignID, err)
	}
}
