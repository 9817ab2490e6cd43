package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct{ s *Store }

func (r *NotificationRepo) CreateBatch(_ context.Context, campaignID int64, subscriberIDs []int64, at time.Time) ([]*notification.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing := map[int64]bool{}
	for _, n := range r.s.notifications {
		if n.CampaignID == campaignID {
			existing[n.SubscriberID] = true
		}
	}
	var out []*notification.Notification
	for _, sid := range subscriberIDs {
		if existing[sid] {
			continue
		}
		if _, ok := r.s.subscribers[sid]; !ok {
			continue
		}
		existing[sid] = true
		n := notification.Notification{
			ID:           r.s.nextID(),
			CampaignID:   campaignID,
			SubscriberID: sid,
			Status:       notification.StatusSent,
			SentAt:       at,
		}
		r.s.notifications[n.ID] = n
		out = append(out, &n)
	}
	return out, nil
}

func (r *NotificationRepo) GetByID(_ context.Context, id int64) (*notification.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &n, nil
}

func (r *NotificationRepo) LatestSentForCampaign(_ context.Context, campaignID int64) (*notification.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var found []notification.Notification
	for _, n := range r.s.notifications {
		if n.CampaignID == campaignID && n.Status == notification.StatusSent {
			found = append(found, n)
		}
	}
	if len(found) == 0 {
		return nil, domain.ErrNotFound
	}
	latest := slices.MaxFunc(found, func(a, b notification.Notification) int {
		if c := a.SentAt.Compare(b.SentAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return &latest, nil
}

func (r *NotificationRepo) update(id int64, fn func(n *notification.Notification) bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	changed := fn(&n)
	r.s.notifications[id] = n
	return changed, nil
}

func (r *NotificationRepo) MarkFailed(_ context.Context, id int64, reason string) error {
	_, err := r.update(id, func(n *notification.Notification) bool {
		n.Status = notification.StatusFailed
		n.Error = reason
		return true
	})
	return err
}

func (r *NotificationRepo) MarkClicked(_ context.Context, id int64, at time.Time, userAgent string) (bool, error) {
	return r.update(id, func(n *notification.Notification) bool {
		if n.Status != notification.StatusSent {
			return false
		}
		n.Status = notification.StatusClicked
		n.ClickedAt = &at
		n.ClickUserAgent = userAgent
		return true
	})
}

func (r *NotificationRepo) MarkClosed(_ context.Context, id int64, at time.Time) error {
	_, err := r.update(id, func(n *notification.Notification) bool {
		if n.ClosedAt != nil {
			return false
		}
		n.ClosedAt = &at
		return true
	})
	return err
}

func (r *NotificationRepo) MarkViewed(_ context.Context, id int64, at time.Time) error {
	_, err := r.update(id, func(n *notification.Notification) bool {
		if n.ViewedAt != nil {
			return false
		}
		n.ViewedAt = &at
		return true
	})
	return err
}
