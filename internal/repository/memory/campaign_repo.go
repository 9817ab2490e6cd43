package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/campaign"
)

var _ campaign.Repo = (*CampaignRepo)(nil)

type CampaignRepo struct{ s *Store }

func (r *CampaignRepo) Create(_ context.Context, c *campaign.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.domains[c.DomainID]; !ok {
		return fmt.Errorf("insert campaign: %w", domain.ErrNotFound)
	}
	now := r.s.now()
	c.ID = r.s.nextID()
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *CampaignRepo) GetByID(_ context.Context, id int64) (*campaign.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r *CampaignRepo) List(_ context.Context, f campaign.Filter, p domain.Page) ([]*campaign.Campaign, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var all []campaign.Campaign
	for _, c := range r.s.campaigns {
		if c.OwnerID != f.OwnerID {
			continue
		}
		if f.DomainID != nil && c.DomainID != *f.DomainID {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		all = append(all, c)
	}
	slices.SortFunc(all, func(a, b campaign.Campaign) int {
		if x := b.CreatedAt.Compare(a.CreatedAt); x != 0 {
			return x
		}
		return cmp.Compare(b.ID, a.ID)
	})
	var out []*campaign.Campaign
	for i := p.Offset(); i < len(all) && len(out) < p.Limit; i++ {
		out = append(out, &all[i])
	}
	return out, len(all), nil
}

func (r *CampaignRepo) Update(_ context.Context, c *campaign.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.campaigns[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status == campaign.StatusSent {
		return fmt.Errorf("%w: campaign %d is not editable", domain.ErrConflict, c.ID)
	}
	c.OwnerID, c.DomainID, c.CreatedAt, c.SentAt = cur.OwnerID, cur.DomainID, cur.CreatedAt, cur.SentAt
	c.UpdatedAt = r.s.now()
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *CampaignRepo) MarkSent(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Status == campaign.StatusSent {
		return fmt.Errorf("%w: campaign %d already sent", domain.ErrConflict, id)
	}
	c.Status = campaign.StatusSent
	c.SentAt = &at
	c.UpdatedAt = r.s.now()
	r.s.campaigns[id] = c
	return nil
}

func (r *CampaignRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]*campaign.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var due []campaign.Campaign
	for _, c := range r.s.campaigns {
		if c.Status == campaign.StatusScheduled && c.DispatchRequestedAt == nil &&
			c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			due = append(due, c)
		}
	}
	slices.SortFunc(due, func(a, b campaign.Campaign) int { return a.ScheduledAt.Compare(*b.ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*campaign.Campaign, 0, len(due))
	for _, c := range due {
		at := now
		c.DispatchRequestedAt = &at
		r.s.campaigns[c.ID] = c
		out = append(out, &c)
	}
	return out, nil
}
