package campaigns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/campaign"
	"github.com/growsome/trafficlens/internal/domain/site"
	"github.com/growsome/trafficlens/internal/services/delivery"
)

type Dispatcher interface {
	SendCampaign(ctx context.Context, id int64) (*delivery.Result, error)
}

type Usecase struct {
	repo     campaign.Repo
	domains  site.Repo
	dispatch Dispatcher
	clk      func() time.Time
}

func New(repo campaign.Repo, domains site.Repo, dispatch Dispatcher, clk func() time.Time) *Usecase {
	if clk == nil {
		clk = func() time.Time { return time.Now().UTC() }
	}
	return &Usecase{repo: repo, domains: domains, dispatch: dispatch, clk: clk}
}

// Create stores a draft, or a scheduled campaign when ScheduledAt is in the future.
func (u *Usecase) Create(ctx context.Context, owner uuid.UUID, c *campaign.Campaign) (*campaign.Campaign, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	d, err := u.domains.GetByID(ctx, c.DomainID)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != owner {
		return nil, fmt.Errorf("%w: domain %d", domain.ErrForbidden, c.DomainID)
	}

	now := u.clk()
	if c.ScheduledAt != nil {
		at := c.ScheduledAt.UTC()
		c.ScheduledAt = &at
	}
	c.OwnerID = owner
	c.Status = campaign.InitialStatus(c.ScheduledAt, now)
	c.SentAt = nil
	c.DispatchRequestedAt = nil
	if err := u.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (u *Usecase) Get(ctx context.Context, owner uuid.UUID, id int64) (*campaign.Campaign, error) {
	c, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != owner {
		return nil, fmt.Errorf("%w: campaign %d", domain.ErrForbidden, id)
	}
	return c, nil
}

func (u *Usecase) List(ctx context.Context, f campaign.Filter, p domain.Page) ([]*campaign.Campaign, int, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, *f.Status)
	}
	return u.repo.List(ctx, f, p)
}

// Update edits a draft or scheduled campaign. Sent campaigns are immutable.
func (u *Usecase) Update(ctx context.Context, owner uuid.UUID, id int64, p campaign.Patch) (*campaign.Campaign, error) {
	c, err := u.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if err := c.Apply(p, u.clk()); err != nil {
		return nil, err
	}
	if err := u.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Send fans the campaign out right away, whatever its schedule.
func (u *Usecase) Send(ctx context.Context, owner uuid.UUID, id int64) (*delivery.Result, error) {
	if _, err := u.Get(ctx, owner, id); err != nil {
		return nil, err
	}
	return u.dispatch.SendCampaign(ctx, id)
}
