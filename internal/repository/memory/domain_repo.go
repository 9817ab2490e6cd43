package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/site"
)

var _ site.Repo = (*DomainRepo)(nil)

type DomainRepo struct{ s *Store }

func (r *DomainRepo) Create(_ context.Context, d *site.Domain) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, ex := range r.s.domains {
		if ex.Name == d.Name {
			return domain.ErrConflict
		}
	}
	now := r.s.now()
	d.ID = r.s.nextID()
	d.Active = true
	d.CreatedAt, d.UpdatedAt = now, now
	r.s.domains[d.ID] = *d
	return nil
}

func (r *DomainRepo) GetByID(_ context.Context, id int64) (*site.Domain, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.domains[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (r *DomainRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*site.Domain, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*site.Domain
	for _, d := range r.s.domains {
		if d.OwnerID == ownerID {
			out = append(out, &d)
		}
	}
	slices.SortFunc(out, func(a, b *site.Domain) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (r *DomainRepo) Update(_ context.Context, id int64, upd site.Update) (*site.Domain, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.domains[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if upd.SiteName != nil {
		d.SiteName = *upd.SiteName
	}
	if upd.ServiceWorkerPath != nil {
		d.ServiceWorkerPath = *upd.ServiceWorkerPath
	}
	if upd.Active != nil {
		d.Active = *upd.Active
	}
	d.UpdatedAt = r.s.now()
	r.s.domains[id] = d
	return &d, nil
}

// Delete cascades to everything recorded under the domain.
func (r *DomainRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.domains[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.domains, id)

	campaigns := map[int64]bool{}
	for cid, c := range r.s.campaigns {
		if c.DomainID == id {
			campaigns[cid] = true
			delete(r.s.campaigns, cid)
		}
	}
	subs := map[int64]bool{}
	for sid, sub := range r.s.subscribers {
		if sub.DomainID == id {
			subs[sid] = true
			delete(r.s.subscribers, sid)
		}
	}
	for nid, n := range r.s.notifications {
		if campaigns[n.CampaignID] || subs[n.SubscriberID] {
			delete(r.s.notifications, nid)
		}
	}
	for k := range r.s.daily {
		if k.domainID == id {
			delete(r.s.daily, k)
		}
	}
	return nil
}
