package kafka

import (
	"context"
	"time"
)

// DispatchRequested asks a push worker to fan out a campaign.
type DispatchRequested struct {
	CampaignID  int64     `json:"campaign_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type CampaignEvents interface {
	PublishDispatchRequested(ctx context.Context, ev DispatchRequested) error
}
