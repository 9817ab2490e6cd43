package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/campaign"
	"github.com/growsome/trafficlens/internal/domain/notification"
	"github.com/growsome/trafficlens/internal/domain/site"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
	"github.com/growsome/trafficlens/internal/repository/memory"
)

type fixture struct {
	store *memory.Store
	owner uuid.UUID
	dom   *site.Domain
	camp  *campaign.Campaign
	subs  []*subscriber.Subscriber
	rows  []*notification.Notification
	now   time.Time
}

// newFixture seeds one domain with two subscribers and a sent campaign
// delivered to both of them.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), owner: uuid.New()}
	f.store = memory.NewStore().WithClock(func() time.Time { return f.now })

	f.dom = &site.Domain{OwnerID: f.owner, Name: "example.com"}
	require.NoError(t, f.store.Domains().Create(ctx, f.dom))

	for _, ep := range []string{"https://push.example/a", "https://push.example/b"} {
		s := &subscriber.Subscriber{DomainID: f.dom.ID, Endpoint: ep, LastSeenAt: f.now.Add(-time.Hour)}
		_, err := f.store.Subscribers().Upsert(ctx, s)
		require.NoError(t, err)
		f.subs = append(f.subs, s)
	}

	f.camp = &campaign.Campaign{DomainID: f.dom.ID, OwnerID: f.owner, Title: "t", Body: "b", Status: campaign.StatusDraft, TargetType: campaign.TargetAll}
	require.NoError(t, f.store.Campaigns().Create(ctx, f.camp))
	rows, err := f.store.Notifications().CreateBatch(ctx, f.camp.ID, []int64{f.subs[0].ID, f.subs[1].ID}, f.now.Add(-time.Minute))
	require.NoError(t, err)
	f.rows = rows
	require.NoError(t, f.store.Campaigns().MarkSent(ctx, f.camp.ID, f.now.Add(-time.Minute)))
	return f
}

func (f *fixture) usecase(cfg Config) *Usecase {
	return New(zap.NewNop(), f.store.Notifications(), f.store.Subscribers(), f.store.Stats(), memory.Transactor{}, cfg,
		func() time.Time { return f.now })
}

func TestTrackClickIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	uc := f.usecase(Config{})
	id := f.rows[0].ID

	res, err := uc.TrackClick(ctx, ClickInput{NotificationID: id, UserAgent: "Chrome"})
	require.NoError(t, err)
	assert.True(t, res.Recorded)

	n, err := f.store.Notifications().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusClicked, n.Status)
	require.NotNil(t, n.ClickedAt)
	assert.Equal(t, f.now, *n.ClickedAt)
	assert.Equal(t, "Chrome", n.ClickUserAgent)

	sub, err := f.store.Subscribers().GetByID(ctx, n.SubscriberID)
	require.NoError(t, err)
	assert.Equal(t, f.now, sub.LastSeenAt)

	f.now = f.now.Add(time.Hour)
	res, err = uc.TrackClick(ctx, ClickInput{NotificationID: id, UserAgent: "Firefox"})
	require.NoError(t, err)
	assert.False(t, res.Recorded)

	again, err := f.store.Notifications().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, *n.ClickedAt, *again.ClickedAt)
	assert.Equal(t, "Chrome", again.ClickUserAgent)
}

func TestTrackClickFailedRowIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.rows[1].ID
	require.NoError(t, f.store.Notifications().MarkFailed(ctx, id, "410 gone"))

	res, err := f.usecase(Config{}).TrackClick(ctx, ClickInput{NotificationID: id})
	require.NoError(t, err)
	assert.False(t, res.Recorded)

	n, err := f.store.Notifications().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Nil(t, n.ClickedAt)
}

func TestTrackClickUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.usecase(Config{}).TrackClick(context.Background(), ClickInput{NotificationID: 9999})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCampaignFallbackPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled rejects campaign-only beacons", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.usecase(Config{}).TrackClick(ctx, ClickInput{CampaignID: f.camp.ID})
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("neither id is invalid", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.usecase(Config{CampaignFallback: true}).TrackClick(ctx, ClickInput{})
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("enabled attributes to the latest sent row", func(t *testing.T) {
		f := newFixture(t)
		uc := f.usecase(Config{CampaignFallback: true})

		first, err := uc.TrackClick(ctx, ClickInput{CampaignID: f.camp.ID})
		require.NoError(t, err)
		assert.True(t, first.Recorded)
		assert.Equal(t, f.rows[1].ID, first.NotificationID)

		second, err := uc.TrackClick(ctx, ClickInput{CampaignID: f.camp.ID})
		require.NoError(t, err)
		assert.Equal(t, f.rows[0].ID, second.NotificationID)

		_, err = uc.TrackClick(ctx, ClickInput{CampaignID: f.camp.ID})
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestTrackCloseAndView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	uc := f.usecase(Config{})
	id := f.rows[0].ID

	require.NoError(t, uc.TrackView(ctx, id))
	require.NoError(t, uc.TrackClose(ctx, id))
	first := f.now

	f.now = f.now.Add(time.Minute)
	require.NoError(t, uc.TrackView(ctx, id))
	require.NoError(t, uc.TrackClose(ctx, id))

	n, err := f.store.Notifications().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, n.Status)
	assert.Equal(t, first, *n.ViewedAt)
	assert.Equal(t, first, *n.ClosedAt)

	require.ErrorIs(t, uc.TrackClose(ctx, 0), domain.ErrInvalidInput)
	require.ErrorIs(t, uc.TrackView(ctx, 9999), domain.ErrNotFound)
}

func TestCampaignAnalytics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	uc := f.usecase(Config{})

	_, err := uc.TrackClick(ctx, ClickInput{NotificationID: f.rows[0].ID})
	require.NoError(t, err)
	require.NoError(t, uc.TrackView(ctx, f.rows[0].ID))
	require.NoError(t, uc.TrackView(ctx, f.rows[1].ID))

	list, total, err := uc.CampaignAnalytics(ctx, AnalyticsQuery{Owner: f.owner, Page: domain.NewPage(1, 20)})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	m := list[0]
	assert.Equal(t, f.camp.ID, m.CampaignID)
	assert.Equal(t, int64(2), m.TotalSent)
	assert.Equal(t, int64(1), m.TotalClicks)
	assert.Equal(t, int64(2), m.TotalViews)
	assert.Equal(t, 50.0, m.ClickRate)
	assert.Equal(t, 100.0, m.ViewRate)

	drafts := campaign.StatusDraft
	list, total, err = uc.CampaignAnalytics(ctx, AnalyticsQuery{Owner: f.owner, Status: &drafts, Page: domain.NewPage(1, 20)})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	_, _, err = uc.CampaignAnalytics(ctx, AnalyticsQuery{Owner: f.owner, PeriodDays: 1000, Page: domain.NewPage(1, 20)})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	f.now = f.now.AddDate(0, 0, 31)
	_, total, err = uc.CampaignAnalytics(ctx, AnalyticsQuery{Owner: f.owner, Page: domain.NewPage(1, 20)})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRebuildAndListDaily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	uc := f.usecase(Config{})
	_, err := uc.TrackClick(ctx, ClickInput{NotificationID: f.rows[0].ID})
	require.NoError(t, err)

	n, err := uc.RebuildDaily(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = uc.RebuildDaily(ctx, f.now)
	require.NoError(t, err)

	rows, err := uc.Daily(ctx, f.owner, nil, 7)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	d := rows[0]
	assert.Equal(t, f.dom.ID, d.DomainID)
	assert.Equal(t, int64(2), d.NewSubscribers)
	assert.Equal(t, int64(1), d.CampaignsSent)
	assert.Equal(t, int64(2), d.NotificationsSent)
	assert.Equal(t, int64(1), d.Clicks)
	assert.Equal(t, 50.0, d.ClickRate)

	others, err := uc.Daily(ctx, uuid.New(), nil, 7)
	require.NoError(t, err)
	assert.Empty(t, others)
}
