package scheduler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/domain/kafka"
	"github.com/growsome/trafficlens/internal/services/delivery"
)

type Dispatcher interface {
	SendDue(ctx context.Context, id int64) (*delivery.Result, error)
}

// LocalEvents hands dispatch requests straight to an in-process dispatcher.
// It stands in for Kafka when the api runs on the memory driver.
type LocalEvents struct {
	Log        *zap.Logger
	Dispatcher Dispatcher
}

func (e LocalEvents) PublishDispatchRequested(ctx context.Context, ev kafka.DispatchRequested) error {
	res, err := e.Dispatcher.SendDue(ctx, ev.CampaignID)
	if errors.Is(err, delivery.ErrAlreadySent) || errors.Is(err, delivery.ErrNotDue) {
		e.Log.Debug("dispatch request dropped", zap.Int64("campaign_id", ev.CampaignID), zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	e.Log.Info("campaign dispatched",
		zap.Int64("campaign_id", res.CampaignID),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	return nil
}
