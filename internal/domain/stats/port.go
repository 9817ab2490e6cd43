package stats

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/growsome/trafficlens/internal/domain"
)

type Repo interface {
	SubscriberCounts(ctx context.Context, owner uuid.UUID, domainID *int64, now time.Time) (*SubscriberCounts, error)
	CampaignMetrics(ctx context.Context, f AnalyticsFilter, p domain.Page) ([]*CampaignMetrics, int, error)
	// RebuildDaily recomputes daily_stats for every domain on the given UTC day.
	RebuildDaily(ctx context.Context, day time.Time) (int, error)
	ListDaily(ctx context.Context, owner uuid.UUID, domainID *int64, since time.Time) ([]*Daily, error)
}
