package kafka

import (
	"context"

	"github.com/growsome/trafficlens/internal/domain/kafka"
)

type CampaignEventsKafka struct {
	p *Producer
}

func NewCampaignEventsKafka(p *Producer) *CampaignEventsKafka { return &CampaignEventsKafka{p: p} }

var _ kafka.CampaignEvents = (*CampaignEventsKafka)(nil)

func (e *CampaignEventsKafka) PublishDispatchRequested(ctx context.Context, ev kafka.DispatchRequested) error {
	return e.p.PublishJSON(ctx, KeyFromInt64(ev.CampaignID), ev)
}
