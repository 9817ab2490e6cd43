package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/growsome/trafficlens/internal/agent"
	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/campaign"
	"github.com/growsome/trafficlens/internal/domain/notification"
	"github.com/growsome/trafficlens/internal/domain/site"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
	"github.com/growsome/trafficlens/internal/obs"
	"github.com/growsome/trafficlens/internal/push"
)

var (
	ErrAlreadySent = domain.ErrCampaignAlreadySent
	ErrNotDue      = errors.New("campaign is not due yet")
)

type Config struct {
	Concurrency int           `mapstructure:"concurrency"`
	PushTimeout time.Duration `mapstructure:"push_timeout"`
}

type Repos struct {
	Campaigns     campaign.Repo
	Domains       site.Repo
	Subscribers   subscriber.Repo
	Notifications notification.Repo
}

// Result summarises one fan-out. Sent and Failed only count rows created by
// this call.
type Result struct {
	CampaignID  int64 `json:"campaignId"`
	Targeted    int   `json:"targeted"`
	Sent        int   `json:"sent"`
	Failed      int   `json:"failed"`
	Deactivated int   `json:"deactivated"`
}

var (
	pushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficlens_pushes_total",
		Help: "Push deliveries by outcome.",
	}, []string{"outcome"})
	fanoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trafficlens_fanout_duration_seconds",
		Help:    "Wall time of a campaign fan-out.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)

type Dispatcher struct {
	log    *zap.Logger
	repos  Repos
	sender push.Sender
	cfg    Config
	clk    func() time.Time
	tr     trace.Tracer
}

func NewDispatcher(log *zap.Logger, repos Repos, sender push.Sender, cfg Config, clk func() time.Time) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 10 * time.Second
	}
	if clk == nil {
		clk = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		log:    obs.Component(log, "delivery"),
		repos:  repos,
		sender: sender,
		cfg:    cfg,
		clk:    clk,
		tr:     otel.Tracer("delivery"),
	}
}

// SendDue sends a campaign claimed by the scheduler. A campaign rescheduled
// after its claim is left for the next claim and yields ErrNotDue.
func (d *Dispatcher) SendDue(ctx context.Context, id int64) (*Result, error) {
	c, err := d.repos.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if c.Status == campaign.StatusScheduled && c.ScheduledAt != nil && c.ScheduledAt.After(d.clk()) {
		return nil, ErrNotDue
	}
	return d.SendCampaign(ctx, id)
}

// SendCampaign pushes the campaign to every target that has no notification
// row yet and then marks the campaign sent. Per-subscriber failures are
// recorded on their rows and never abort the fan-out.
func (d *Dispatcher) SendCampaign(ctx context.Context, id int64) (*Result, error) {
	start := time.Now()
	ctx, span := d.tr.Start(ctx, "delivery.send_campaign", trace.WithAttributes(attribute.Int64("campaign.id", id)))
	defer span.End()
	log := obs.WithTrace(ctx, d.log).With(zap.Int64("campaign_id", id))

	c, err := d.repos.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if c.Status == campaign.StatusSent {
		return nil, ErrAlreadySent
	}
	dom, err := d.repos.Domains.GetByID(ctx, c.DomainID)
	if err != nil {
		return nil, fmt.Errorf("load domain: %w", err)
	}

	targets, err := d.targets(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("resolve targets: %w", err)
	}
	res := &Result{CampaignID: c.ID, Targeted: len(targets)}

	byID := make(map[int64]*subscriber.Subscriber, len(targets))
	ids := make([]int64, 0, len(targets))
	for _, s := range targets {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	var rows []*notification.Notification
	if len(ids) > 0 {
		rows, err = d.repos.Notifications.CreateBatch(ctx, c.ID, ids, d.clk())
		if err != nil {
			return nil, fmt.Errorf("create notifications: %w", err)
		}
	}

	var sent, failed, gone atomic.Int64
	keys := push.VAPID{PublicKey: dom.VAPIDPublicKey, PrivateKey: dom.VAPIDPrivateKey}
	fallbackURL := "https://" + dom.Name + "/"

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for _, n := range rows {
		sub, ok := byID[n.SubscriberID]
		if !ok {
			continue
		}
		g.Go(func() error {
			switch outcome := d.deliver(ctx, c, n, sub, keys, fallbackURL, log); outcome {
			case outcomeSent:
				sent.Add(1)
			case outcomeGone:
				gone.Add(1)
				failed.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Sent, res.Failed, res.Deactivated = int(sent.Load()), int(failed.Load()), int(gone.Load())

	if err := d.repos.Campaigns.MarkSent(ctx, c.ID, d.clk()); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			span.RecordError(err)
			return res, fmt.Errorf("mark sent: %w", err)
		}
		log.Info("campaign marked sent concurrently")
	}

	fanoutDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("fanout.targeted", res.Targeted),
		attribute.Int("fanout.sent", res.Sent),
		attribute.Int("fanout.failed", res.Failed),
	)
	log.Info("campaign sent",
		zap.Int("targeted", res.Targeted),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("deactivated", res.Deactivated),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

func (d *Dispatcher) targets(ctx context.Context, c *campaign.Campaign) ([]*subscriber.Subscriber, error) {
	switch c.TargetType {
	case campaign.TargetSegment:
		if c.TargetFilter == nil {
			return d.repos.Subscribers.ListTargets(ctx, c.DomainID, nil, nil)
		}
		seg := c.TargetFilter.Segment
		return d.repos.Subscribers.ListTargets(ctx, c.DomainID, &seg, nil)
	case campaign.TargetIndividual:
		if c.TargetFilter == nil || len(c.TargetFilter.SubscriberIDs) == 0 {
			return nil, nil
		}
		return d.repos.Subscribers.ListTargets(ctx, c.DomainID, nil, c.TargetFilter.SubscriberIDs)
	default:
		return d.repos.Subscribers.ListTargets(ctx, c.DomainID, nil, nil)
	}
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeGone
)

func (d *Dispatcher) deliver(
	ctx context.Context,
	c *campaign.Campaign,
	n *notification.Notification,
	sub *subscriber.Subscriber,
	keys push.VAPID,
	fallbackURL string,
	log *zap.Logger,
) outcome {
	payload, err := agent.BuildPayload(c, n.ID, fallbackURL)
	if err == nil {
		pctx, cancel := context.WithTimeout(ctx, d.cfg.PushTimeout)
		err = d.sender.Send(pctx, push.Subscription{
			Endpoint: sub.Endpoint,
			P256dh:   sub.Keys.P256dh,
			Auth:     sub.Keys.Auth,
		}, keys, payload)
		cancel()
	}
	if err == nil {
		pushesTotal.WithLabelValues("sent").Inc()
		return outcomeSent
	}

	// bookkeeping must survive a cancelled fan-out
	bctx := context.WithoutCancel(ctx)
	if merr := d.repos.Notifications.MarkFailed(bctx, n.ID, err.Error()); merr != nil {
		log.Error("mark failed", zap.Int64("notification_id", n.ID), zap.Error(merr))
	}
	if !errors.Is(err, push.ErrGone) {
		pushesTotal.WithLabelValues("failed").Inc()
		log.Debug("push failed", zap.Int64("subscriber_id", sub.ID), zap.Error(err))
		return outcomeFailed
	}

	pushesTotal.WithLabelValues("gone").Inc()
	if derr := d.repos.Subscribers.Deactivate(bctx, sub.ID); derr != nil {
		log.Error("deactivate subscriber", zap.Int64("subscriber_id", sub.ID), zap.Error(derr))
	}
	return outcomeGone
}
