package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/campaign"
	"github.com/growsome/trafficlens/internal/domain/notification"
	"github.com/growsome/trafficlens/internal/domain/stats"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
)

const (
	DefaultPeriodDays = 30
	DefaultDailyDays  = 30
	maxWindowDays     = 365
)

type Config struct {
	// CampaignFallback attributes a campaign-only click to the latest sent
	// notification of that campaign.
	CampaignFallback bool `mapstructure:"campaign_fallback"`
	PublicBaseURL    string `mapstructure:"public_base_url"`
}

type Usecase struct {
	log           *zap.Logger
	notifications notification.Repo
	subs          subscriber.Repo
	stats         stats.Repo
	tx            domain.Transactor
	cfg           Config
	clk           func() time.Time
}

func New(log *zap.Logger, n notification.Repo, subs subscriber.Repo, st stats.Repo, tx domain.Transactor, cfg Config, clk func() time.Time) *Usecase {
	if clk == nil {
		clk = func() time.Time { return time.Now().UTC() }
	}
	return &Usecase{log: log, notifications: n, subs: subs, stats: st, tx: tx, cfg: cfg, clk: clk}
}

type ClickInput struct {
	NotificationID int64
	CampaignID     int64
	UserAgent      string
}

type ClickResult struct {
	NotificationID int64 `json:"notificationId"`
	Recorded       bool  `json:"recorded"`
}

func (u *Usecase) resolve(ctx context.Context, in ClickInput) (int64, error) {
	if in.NotificationID > 0 {
		return in.NotificationID, nil
	}
	if in.CampaignID <= 0 {
		return 0, fmt.Errorf("%w: notificationId is required", domain.ErrInvalidInput)
	}
	if !u.cfg.CampaignFallback {
		return 0, fmt.Errorf("%w: notificationId is required, campaign attribution is disabled", domain.ErrInvalidInput)
	}
	n, err := u.notifications.LatestSentForCampaign(ctx, in.CampaignID)
	if err != nil {
		return 0, err
	}
	return n.ID, nil
}

// TrackClick records the first click of a notification. Repeat clicks and
// clicks on failed rows succeed without changing anything.
func (u *Usecase) TrackClick(ctx context.Context, in ClickInput) (*ClickResult, error) {
	id, err := u.resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	n, err := u.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := u.clk()
	var recorded bool
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := u.notifications.MarkClicked(ctx, id, now, in.UserAgent)
		if err != nil {
			return err
		}
		recorded = ok
		if !ok {
			return nil
		}
		if err := u.subs.Touch(ctx, n.SubscriberID, now); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("track click: %w", err)
	}
	if recorded {
		u.log.Debug("click recorded", zap.Int64("notification_id", id), zap.Int64("campaign_id", n.CampaignID))
	}
	return &ClickResult{NotificationID: id, Recorded: recorded}, nil
}

func (u *Usecase) TrackClose(ctx context.Context, notificationID int64) error {
	if notificationID <= 0 {
		return fmt.Errorf("%w: notificationId is required", domain.ErrInvalidInput)
	}
	return u.notifications.MarkClosed(ctx, notificationID, u.clk())
}

func (u *Usecase) TrackView(ctx context.Context, notificationID int64) error {
	if notificationID <= 0 {
		return fmt.Errorf("%w: notificationId is required", domain.ErrInvalidInput)
	}
	return u.notifications.MarkViewed(ctx, notificationID, u.clk())
}

type AnalyticsQuery struct {
	Owner      uuid.UUID
	DomainID   *int64
	PeriodDays int
	Status     *campaign.Status
	Page       domain.Page
}

func window(days, def int) (int, error) {
	if days == 0 {
		return def, nil
	}
	if days < 0 || days > maxWindowDays {
		return 0, fmt.Errorf("%w: window must be between 1 and %d days", domain.ErrInvalidInput, maxWindowDays)
	}
	return days, nil
}

// CampaignAnalytics lists per-campaign delivery figures for campaigns created
// within the trailing period.
func (u *Usecase) CampaignAnalytics(ctx context.Context, q AnalyticsQuery) ([]*stats.CampaignMetrics, int, error) {
	days, err := window(q.PeriodDays, DefaultPeriodDays)
	if err != nil {
		return nil, 0, err
	}
	if q.Status != nil && !q.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, *q.Status)
	}
	f := stats.AnalyticsFilter{
		OwnerID:  q.Owner,
		DomainID: q.DomainID,
		Status:   q.Status,
		Since:    u.clk().AddDate(0, 0, -days),
	}
	list, total, err := u.stats.CampaignMetrics(ctx, f, q.Page)
	if err != nil {
		return nil, 0, err
	}
	for _, m := range list {
		m.Derive()
	}
	return list, total, nil
}

// Daily returns materialised rows for the trailing days, today included.
func (u *Usecase) Daily(ctx context.Context, owner uuid.UUID, domainID *int64, days int) ([]*stats.Daily, error) {
	days, err := window(days, DefaultDailyDays)
	if err != nil {
		return nil, err
	}
	since := u.clk().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
	return u.stats.ListDaily(ctx, owner, domainID, since)
}

// RebuildDaily recomputes the daily counters of every domain for day.
func (u *Usecase) RebuildDaily(ctx context.Context, day time.Time) (int, error) {
	n, err := u.stats.RebuildDaily(ctx, day.UTC().Truncate(24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("rebuild daily stats: %w", err)
	}
	return n, nil
}
