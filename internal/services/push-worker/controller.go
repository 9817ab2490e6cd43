package push_worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/domain/kafka"
	kafkax "github.com/growsome/trafficlens/internal/repository/kafka"
)

type Subscriber interface {
	Consume(ctx context.Context, h kafkax.Handler) error
}

type Controller struct {
	Log *zap.Logger
	Sub Subscriber
	UC  *Handler
}

func (c *Controller) Run(ctx context.Context) error {
	handler := kafkax.JSONHandler(func(ctx context.Context, _ []byte, ev kafka.DispatchRequested) error {
		c.Log.Debug("dispatch-requested", zap.Int64("campaign_id", ev.CampaignID))
		return c.UC.HandleDispatch(ctx, ev)
	})
	if err := c.Sub.Consume(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		c.Log.Warn("kafka consume", zap.Error(err))
		return err
	}
	return ctx.Err()
}
