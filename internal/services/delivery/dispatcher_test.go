package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/agent"
	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/campaign"
	"github.com/growsome/trafficlens/internal/domain/notification"
	"github.com/growsome/trafficlens/internal/domain/site"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
	"github.com/growsome/trafficlens/internal/push"
	"github.com/growsome/trafficlens/internal/repository/memory"
)

type fakeSender struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]error
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
}

func newFakeSender() *fakeSender {
	return &fakeSender{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeSender) Send(ctx context.Context, sub push.Subscription, keys push.VAPID, payload []byte) error {
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	f.mu.Lock()
	f.calls[sub.Endpoint]++
	err := f.fail[sub.Endpoint]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeSender) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fixture struct {
	store  *memory.Store
	repos  Repos
	domain *site.Domain
	subs   []*subscriber.Subscriber
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store: store,
		repos: Repos{
			Campaigns:     store.Campaigns(),
			Domains:       store.Domains(),
			Subscribers:   store.Subscribers(),
			Notifications: store.Notifications(),
		},
	}
	ctx := context.Background()
	d := &site.Domain{OwnerID: uuid.New(), Name: "shop.example.com", SiteName: "Shop", ServiceWorkerPath: "/sw.js",
		VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}
	require.NoError(t, f.repos.Domains.Create(ctx, d))
	f.domain = d

	for i := 0; i < n; i++ {
		s := &subscriber.Subscriber{
			DomainID: d.ID,
			Endpoint: "https://push.example.net/" + string(rune('a'+i)),
			Keys:     subscriber.Keys{P256dh: "k", Auth: "a"},
			Country:  []string{"KR", "US"}[i%2],
		}
		_, err := f.repos.Subscribers.Upsert(ctx, s)
		require.NoError(t, err)
		f.subs = append(f.subs, s)
	}
	return f
}

func (f *fixture) campaign(t *testing.T, mut func(c *campaign.Campaign)) *campaign.Campaign {
	t.Helper()
	c := &campaign.Campaign{
		DomainID:   f.domain.ID,
		OwnerID:    f.domain.OwnerID,
		Title:      "Hello",
		Body:       "World",
		Status:     campaign.StatusDraft,
		TargetType: campaign.TargetAll,
	}
	if mut != nil {
		mut(c)
	}
	require.NoError(t, f.repos.Campaigns.Create(context.Background(), c))
	return c
}

func TestSendCampaign_AllTargets(t *testing.T) {
	f := newFixture(t, 3)
	c := f.campaign(t, nil)
	sender := newFakeSender()
	d := NewDispatcher(zap.NewNop(), f.repos, sender, Config{}, nil)

	res, err := d.SendCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, &Result{CampaignID: c.ID, Targeted: 3, Sent: 3}, res)
	assert.Equal(t, 3, sender.total())

	got, err := f.repos.Campaigns.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
}

func TestSendCampaign_SecondCallIsConflictAndSendsNothing(t *testing.T) {
	f := newFixture(t, 2)
	c := f.campaign(t, nil)
	sender := newFakeSender()
	d := NewDispatcher(zap.NewNop(), f.repos, sender, Config{}, nil)

	_, err := d.SendCampaign(context.Background(), c.ID)
	require.NoError(t, err)

	_, err = d.SendCampaign(context.Background(), c.ID)
	require.ErrorIs(t, err, ErrAlreadySent)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 2, sender.total())
}

func TestSendCampaign_ReinvokeAfterCrashDoesNotResend(t *testing.T) {
	f := newFixture(t, 2)
	c := f.campaign(t, nil)
	ctx := context.Background()

	// rows created but campaign never flipped to sent
	_, err := f.repos.Notifications.CreateBatch(ctx, c.ID, []int64{f.subs[0].ID}, time.Now())
	require.NoError(t, err)

	sender := newFakeSender()
	res, err := NewDispatcher(zap.NewNop(), f.repos, sender, Config{}, nil).SendCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Targeted)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, map[string]int{f.subs[1].Endpoint: 1}, sender.calls)
}

func TestSendCampaign_FailuresAndGoneSubscribers(t *testing.T) {
	f := newFixture(t, 3)
	c := f.campaign(t, nil)
	sender := newFakeSender()
	sender.fail[f.subs[0].Endpoint] = &push.StatusError{Code: 410}
	sender.fail[f.subs[1].Endpoint] = errors.New("connection reset")

	res, err := NewDispatcher(zap.NewNop(), f.repos, sender, Config{}, nil).SendCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.Deactivated)

	gone, err := f.repos.Subscribers.GetByID(context.Background(), f.subs[0].ID)
	require.NoError(t, err)
	assert.False(t, gone.Active)
	flaky, err := f.repos.Subscribers.GetByID(context.Background(), f.subs[1].ID)
	require.NoError(t, err)
	assert.True(t, flaky.Active)
}

func TestSendCampaign_FailedRowCarriesError(t *testing.T) {
	f := newFixture(t, 1)
	c := f.campaign(t, nil)

	var notificationID int64
	sender := senderFunc(func(_ context.Context, _ push.Subscription, _ push.VAPID, payload []byte) error {
		var p agent.Payload
		assert.NoError(t, json.Unmarshal(payload, &p))
		notificationID = p.Data.NotificationID
		return &push.StatusError{Code: 500, Body: "upstream"}
	})

	_, err := NewDispatcher(zap.NewNop(), f.repos, sender, Config{}, nil).SendCampaign(context.Background(), c.ID)
	require.NoError(t, err)

	n, err := f.repos.Notifications.GetByID(context.Background(), notificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Contains(t, n.Error, "500")
}

func TestSendCampaign_TimeoutIsPerSubscriber(t *testing.T) {
	f := newFixture(t, 4)
	c := f.campaign(t, nil)
	sender := newFakeSender()
	sender.delay = time.Second

	start := time.Now()
	res, err := NewDispatcher(zap.NewNop(), f.repos, sender, Config{Concurrency: 4, PushTimeout: 30 * time.Millisecond}, nil).
		SendCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Failed)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestSendCampaign_BoundedConcurrency(t *testing.T) {
	f := newFixture(t, 10)
	c := f.campaign(t, nil)
	sender := newFakeSender()
	sender.delay = 20 * time.Millisecond

	res, err := NewDispatcher(zap.NewNop(), f.repos, sender, Config{Concurrency: 3}, nil).SendCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Sent)
	assert.LessOrEqual(t, sender.peak.Load(), int32(3))
}

func TestSendCampaign_SegmentAndIndividual(t *testing.T) {
	f := newFixture(t, 4)

	seg := f.campaign(t, func(c *campaign.Campaign) {
		c.TargetType = campaign.TargetSegment
		c.TargetFilter = &campaign.TargetFilter{Segment: subscriber.Segment{Countries: []string{"kr"}}}
	})
	ind := f.campaign(t, func(c *campaign.Campaign) {
		c.TargetType = campaign.TargetIndividual
		c.TargetFilter = &campaign.TargetFilter{SubscriberIDs: []int64{f.subs[3].ID, 999}}
	})

	d := NewDispatcher(zap.NewNop(), f.repos, newFakeSender(), Config{}, nil)

	res, err := d.SendCampaign(context.Background(), seg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Targeted)

	res, err = d.SendCampaign(context.Background(), ind.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Targeted)
}

func TestSendCampaign_PayloadUsesCampaignAndNotification(t *testing.T) {
	f := newFixture(t, 1)
	c := f.campaign(t, func(c *campaign.Campaign) { c.ClickURL = "https://shop.example.com/sale" })

	var got []byte
	sender := senderFunc(func(_ context.Context, _ push.Subscription, keys push.VAPID, payload []byte) error {
		assert.Equal(t, push.VAPID{PublicKey: "pub", PrivateKey: "priv"}, keys)
		got = payload
		return nil
	})
	_, err := NewDispatcher(zap.NewNop(), f.repos, sender, Config{Concurrency: 1}, nil).SendCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(got), `"url":"https://shop.example.com/sale"`))
	assert.True(t, strings.Contains(string(got), `"tag":"campaign-`))
}

func TestSendCampaign_Unknown(t *testing.T) {
	f := newFixture(t, 0)
	_, err := NewDispatcher(zap.NewNop(), f.repos, newFakeSender(), Config{}, nil).SendCampaign(context.Background(), 404)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

type senderFunc func(ctx context.Context, sub push.Subscription, keys push.VAPID, payload []byte) error

func (f senderFunc) Send(ctx context.Context, sub push.Subscription, keys push.VAPID, payload []byte) error {
	return f(ctx, sub, keys, payload)
}

func TestSendDue_SkipsRescheduledCampaign(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, 2)
	later := now.Add(time.Hour)
	c := f.campaign(t, func(c *campaign.Campaign) {
		c.Status = campaign.StatusScheduled
		c.ScheduledAt = &later
	})
	sender := newFakeSender()
	d := NewDispatcher(zap.NewNop(), f.repos, sender, Config{}, func() time.Time { return now })

	_, err := d.SendDue(context.Background(), c.ID)
	require.ErrorIs(t, err, ErrNotDue)
	assert.Zero(t, sender.total())

	now = later
	res, err := d.SendDue(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)

	_, err = d.SendDue(context.Background(), c.ID)
	require.ErrorIs(t, err, ErrAlreadySent)
}
