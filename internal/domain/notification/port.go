package notification

import (
	"context"
	"time"
)

type Repo interface {
	// CreateBatch inserts one sent row per subscriber and returns only rows
	// that did not exist yet for the campaign.
	CreateBatch(ctx context.Context, campaignID int64, subscriberIDs []int64, at time.Time) ([]*Notification, error)
	GetByID(ctx context.Context, id int64) (*Notification, error)
	LatestSentForCampaign(ctx context.Context, campaignID int64) (*Notification, error)
	MarkFailed(ctx context.Context, id int64, reason string) error
	// MarkClicked moves a sent row to clicked and reports whether it did.
	MarkClicked(ctx context.Context, id int64, at time.Time, userAgent string) (bool, error)
	MarkClosed(ctx context.Context, id int64, at time.Time) error
	MarkViewed(ctx context.Context, id int64, at time.Time) error
}
