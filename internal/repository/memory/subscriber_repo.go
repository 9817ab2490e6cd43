package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
)

var _ subscriber.Repo = (*SubscriberRepo)(nil)

type SubscriberRepo struct{ s *Store }

func (r *SubscriberRepo) Upsert(_ context.Context, sub *subscriber.Subscriber) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.domains[sub.DomainID]; !ok {
		return false, domain.ErrNotFound
	}
	for id, ex := range r.s.subscribers {
		if ex.DomainID != sub.DomainID || ex.Endpoint != sub.Endpoint {
			continue
		}
		ex.Keys = sub.Keys
		if sub.UserAgent != "" {
			ex.UserAgent = sub.UserAgent
		}
		if sub.Country != "" {
			ex.Country = sub.Country
		}
		if sub.City != "" {
			ex.City = sub.City
		}
		ex.LastSeenAt = sub.LastSeenAt
		ex.Active = true
		ex.UnsubscribedAt = nil
		r.s.subscribers[id] = ex
		*sub = ex
		return false, nil
	}
	sub.ID = r.s.nextID()
	sub.SubscribedAt = sub.LastSeenAt
	sub.Active = true
	sub.UnsubscribedAt = nil
	r.s.subscribers[sub.ID] = *sub
	return true, nil
}

func (r *SubscriberRepo) GetByID(_ context.Context, id int64) (*subscriber.Subscriber, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sub, ok := r.s.subscribers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &sub, nil
}

func (r *SubscriberRepo) match(f subscriber.Filter, sub subscriber.Subscriber) bool {
	d, ok := r.s.domains[sub.DomainID]
	if !ok || d.OwnerID != f.OwnerID {
		return false
	}
	if f.DomainID != nil && sub.DomainID != *f.DomainID {
		return false
	}
	if f.Active != nil && sub.Active != *f.Active {
		return false
	}
	if c := strings.TrimSpace(f.Country); c != "" && !strings.EqualFold(c, sub.Country) {
		return false
	}
	return true
}

func (r *SubscriberRepo) filtered(f subscriber.Filter) []subscriber.Subscriber {
	var out []subscriber.Subscriber
	for _, sub := range r.s.subscribers {
		if r.match(f, sub) {
			out = append(out, sub)
		}
	}
	slices.SortFunc(out, func(a, b subscriber.Subscriber) int {
		if c := b.SubscribedAt.Compare(a.SubscribedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

func (r *SubscriberRepo) List(_ context.Context, f subscriber.Filter, p domain.Page) ([]*subscriber.Subscriber, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := r.filtered(f)
	var out []*subscriber.Subscriber
	for i := p.Offset(); i < len(all) && len(out) < p.Limit; i++ {
		out = append(out, &all[i])
	}
	return out, len(all), nil
}

func (r *SubscriberRepo) ListTargets(_ context.Context, domainID int64, seg *subscriber.Segment, ids []int64) ([]*subscriber.Subscriber, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*subscriber.Subscriber
	for _, sub := range r.s.subscribers {
		if sub.DomainID != domainID || !sub.Active {
			continue
		}
		if ids != nil && !slices.Contains(ids, sub.ID) {
			continue
		}
		if seg != nil && !seg.Match(&sub) {
			continue
		}
		out = append(out, &sub)
	}
	slices.SortFunc(out, func(a, b *subscriber.Subscriber) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *SubscriberRepo) OwnedIDs(_ context.Context, owner uuid.UUID, ids []int64) ([]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []int64
	for _, id := range ids {
		sub, ok := r.s.subscribers[id]
		if !ok {
			continue
		}
		if d, ok := r.s.domains[sub.DomainID]; ok && d.OwnerID == owner && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *SubscriberRepo) SetActive(_ context.Context, ids []int64, active bool) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, id := range ids {
		sub, ok := r.s.subscribers[id]
		if !ok {
			continue
		}
		sub.Active = active
		if active {
			sub.UnsubscribedAt = nil
		} else if sub.UnsubscribedAt == nil {
			now := r.s.now()
			sub.UnsubscribedAt = &now
		}
		r.s.subscribers[id] = sub
		n++
	}
	return n, nil
}

func (r *SubscriberRepo) Delete(_ context.Context, ids []int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for nid, n := range r.s.notifications {
		if slices.Contains(ids, n.SubscriberID) {
			delete(r.s.notifications, nid)
		}
	}
	deleted := 0
	for _, id := range ids {
		if _, ok := r.s.subscribers[id]; ok {
			delete(r.s.subscribers, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *SubscriberRepo) Deactivate(_ context.Context, id int64) error {
	n, _ := r.SetActive(context.Background(), []int64{id}, false)
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SubscriberRepo) Touch(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sub, ok := r.s.subscribers[id]
	if !ok {
		return nil
	}
	if at.After(sub.LastSeenAt) {
		sub.LastSeenAt = at
		r.s.subscribers[id] = sub
	}
	return nil
}

func (r *SubscriberRepo) Export(ctx context.Context, f subscriber.Filter, fn func(subscriber.ExportRow) error) error {
	r.s.mu.RLock()
	rows := make([]subscriber.ExportRow, 0)
	for _, sub := range r.filtered(f) {
		d := r.s.domains[sub.DomainID]
		var count int64
		for _, n := range r.s.notifications {
			if n.SubscriberID == sub.ID {
				count++
			}
		}
		rows = append(rows, subscriber.ExportRow{
			Subscriber:        sub,
			SiteName:          d.SiteName,
			DomainName:        d.Name,
			NotificationCount: count,
		})
	}
	r.s.mu.RUnlock()

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}
