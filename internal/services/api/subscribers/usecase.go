package subscribers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/site"
	"github.com/growsome/trafficlens/internal/domain/stats"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
	"github.com/growsome/trafficlens/internal/geo"
)

const (
	statsWindowDays = 7
	maxBulkIDs      = 1000
)

type GeoConfig struct {
	Resolver geo.Resolver
	Timeout  time.Duration
}

type Usecase struct {
	log     *zap.Logger
	subs    subscriber.Repo
	domains site.Repo
	stats   stats.Repo
	tx      domain.Transactor
	geo     GeoConfig
	clk     func() time.Time
}

func New(log *zap.Logger, subs subscriber.Repo, domains site.Repo, st stats.Repo, tx domain.Transactor, g GeoConfig, clk func() time.Time) *Usecase {
	if clk == nil {
		clk = func() time.Time { return time.Now().UTC() }
	}
	if g.Resolver == nil {
		g.Resolver = geo.Noop{}
	}
	return &Usecase{log: log, subs: subs, domains: domains, stats: st, tx: tx, geo: g, clk: clk}
}

type SubscribeInput struct {
	DomainID  int64
	Endpoint  string
	Keys      subscriber.Keys
	UserAgent string
	ClientIP  string
}

// Subscribe upserts the browser subscription on (domain, endpoint) and reports
// whether a new row was created.
func (u *Usecase) Subscribe(ctx context.Context, in SubscribeInput) (*subscriber.Subscriber, bool, error) {
	if strings.TrimSpace(in.Endpoint) == "" || in.Keys.P256dh == "" || in.Keys.Auth == "" {
		return nil, false, domain.ErrInvalidSubscription
	}
	if err := checkEndpoint(in.Endpoint); err != nil {
		return nil, false, err
	}
	d, err := u.domains.GetByID(ctx, in.DomainID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("%w %d", domain.ErrDomainNotFound, in.DomainID)
		}
		return nil, false, err
	}
	if !d.Active {
		return nil, false, fmt.Errorf("%w %d is inactive", domain.ErrDomainNotFound, in.DomainID)
	}

	loc := geo.BestEffort(ctx, u.geo.Resolver, in.ClientIP, u.geo.Timeout, u.log)
	s := &subscriber.Subscriber{
		DomainID:   d.ID,
		Endpoint:   strings.TrimSpace(in.Endpoint),
		Keys:       in.Keys,
		UserAgent:  in.UserAgent,
		Country:    loc.Country,
		City:       loc.City,
		LastSeenAt: u.clk(),
	}
	created, err := u.subs.Upsert(ctx, s)
	if err != nil {
		return nil, false, err
	}
	return s, created, nil
}

// checkEndpoint accepts only https push service URLs on public hosts.
// Numeric hosts must be routable unicast addresses.
func checkEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: endpoint: %v", domain.ErrInvalidSubscription, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: endpoint scheme %q is not https", domain.ErrInvalidSubscription, u.Scheme)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	switch {
	case host == "":
		return fmt.Errorf("%w: endpoint has no host", domain.ErrInvalidSubscription)
	case host == "localhost" || strings.HasSuffix(host, ".localhost"):
		return fmt.Errorf("%w: endpoint host %q is local", domain.ErrInvalidSubscription, host)
	case isIPLiteral(host) && !geo.Public(host):
		return fmt.Errorf("%w: endpoint host %q is not public", domain.ErrInvalidSubscription, host)
	}
	return nil
}

// isIPLiteral also matches shorthand forms like 127.1 or 2130706433.
func isIPLiteral(host string) bool {
	return strings.Trim(host, "0123456789.") == "" || strings.Contains(host, ":")
}

func (u *Usecase) ownDomainFilter(ctx context.Context, owner uuid.UUID, domainID *int64) error {
	if domainID == nil {
		return nil
	}
	d, err := u.domains.GetByID(ctx, *domainID)
	if err != nil {
		return err
	}
	if d.OwnerID != owner {
		return fmt.Errorf("%w: domain %d", domain.ErrForbidden, *domainID)
	}
	return nil
}

func (u *Usecase) List(ctx context.Context, f subscriber.Filter, p domain.Page) ([]*subscriber.Subscriber, int, error) {
	if err := u.ownDomainFilter(ctx, f.OwnerID, f.DomainID); err != nil {
		return nil, 0, err
	}
	return u.subs.List(ctx, f, p)
}

// Bulk applies action to the owner's subscribers among ids. Ids that are
// unknown or belong to someone else count as failed.
func (u *Usecase) Bulk(ctx context.Context, owner uuid.UUID, action subscriber.BulkAction, ids []int64) (*subscriber.BulkResult, error) {
	if len(ids) == 0 || len(ids) > maxBulkIDs {
		return nil, fmt.Errorf("%w: subscriberIds must hold 1..%d ids", domain.ErrInvalidInput, maxBulkIDs)
	}
	res := &subscriber.BulkResult{RequestedCount: len(ids)}

	owned, err := u.subs.OwnedIDs(ctx, owner, ids)
	if err != nil {
		return nil, err
	}
	n := 0
	switch action {
	case subscriber.BulkActivate, subscriber.BulkDeactivate:
		n, err = u.subs.SetActive(ctx, owned, action == subscriber.BulkActivate)
	case subscriber.BulkDelete:
		err = u.tx.WithTx(ctx, func(ctx context.Context) error {
			var derr error
			n, derr = u.subs.Delete(ctx, owned)
			return derr
		})
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, action)
	}
	if err != nil {
		return nil, err
	}

	// duplicates in the request can only succeed once
	res.SuccessCount = min(n, countDistinct(ids))
	res.FailedCount = res.RequestedCount - res.SuccessCount
	return res, nil
}

func countDistinct(ids []int64) int {
	c := slices.Clone(ids)
	slices.Sort(c)
	return len(slices.Compact(c))
}

// Stats aggregates subscriber and click figures for the owner, optionally for one domain.
func (u *Usecase) Stats(ctx context.Context, owner uuid.UUID, domainID *int64) (*stats.SubscriberStats, error) {
	if err := u.ownDomainFilter(ctx, owner, domainID); err != nil {
		return nil, err
	}
	now := u.clk()
	counts, err := u.stats.SubscriberCounts(ctx, owner, domainID, now)
	if err != nil {
		return nil, err
	}
	return counts.Build(now, statsWindowDays), nil
}
