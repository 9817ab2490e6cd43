package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/notification"
	"github.com/growsome/trafficlens/internal/domain/stats"
)

var _ stats.Repo = (*StatsRepo)(nil)

type StatsRepo struct{ s *Store }

func dayStart(t time.Time) time.Time { return t.UTC().Truncate(24 * time.Hour) }

func delivered(n notification.Notification) bool {
	return n.Status == notification.StatusSent || n.Status == notification.StatusClicked
}

func (r *StatsRepo) owns(owner uuid.UUID, domainID *int64, id int64) bool {
	d, ok := r.s.domains[id]
	if !ok || d.OwnerID != owner {
		return false
	}
	return domainID == nil || *domainID == id
}

func (r *StatsRepo) SubscriberCounts(_ context.Context, owner uuid.UUID, domainID *int64, now time.Time) (*stats.SubscriberCounts, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	today := dayStart(now)
	weekStart := today.AddDate(0, 0, -6)
	out := &stats.SubscriberCounts{NewByDay: map[string]int64{}}
	countries := map[string]int64{}

	for _, sub := range r.s.subscribers {
		if !r.owns(owner, domainID, sub.DomainID) {
			continue
		}
		out.Total++
		if sub.Active {
			out.Active++
		}
		if !sub.SubscribedAt.Before(today) {
			out.NewToday++
		}
		if !sub.SubscribedAt.Before(weekStart) {
			out.NewByDay[sub.SubscribedAt.UTC().Format(stats.DayLayout)]++
		}
		if sub.Country != "" {
			countries[sub.Country]++
		}
	}

	since := now.AddDate(0, 0, -30)
	for _, n := range r.s.notifications {
		c, ok := r.s.campaigns[n.CampaignID]
		if !ok || !r.owns(owner, domainID, c.DomainID) || n.SentAt.Before(since) {
			continue
		}
		if delivered(n) {
			out.Delivered30d++
		}
		if n.Status == notification.StatusClicked {
			out.Clicked30d++
		}
	}

	for country, count := range countries {
		out.TopCountries = append(out.TopCountries, stats.CountryCount{Country: country, Count: count})
	}
	slices.SortFunc(out.TopCountries, func(a, b stats.CountryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Country, b.Country)
	})
	if len(out.TopCountries) > 5 {
		out.TopCountries = out.TopCountries[:5]
	}
	return out, nil
}

func (r *StatsRepo) CampaignMetrics(_ context.Context, f stats.AnalyticsFilter, p domain.Page) ([]*stats.CampaignMetrics, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var all []*stats.CampaignMetrics
	for _, c := range r.s.campaigns {
		if c.OwnerID != f.OwnerID || (f.DomainID != nil && c.DomainID != *f.DomainID) {
			continue
		}
		if (f.Status != nil && c.Status != *f.Status) || c.CreatedAt.Before(f.Since) {
			continue
		}
		m := &stats.CampaignMetrics{
			CampaignID: c.ID,
			DomainID:   c.DomainID,
			Title:      c.Title,
			Status:     c.Status,
			CreatedAt:  c.CreatedAt,
			SentAt:     c.SentAt,
		}
		for _, n := range r.s.notifications {
			if n.CampaignID != c.ID {
				continue
			}
			if delivered(n) {
				m.TotalSent++
			}
			if n.Status == notification.StatusClicked {
				m.TotalClicks++
			}
			if n.ViewedAt != nil {
				m.TotalViews++
			}
		}
		m.Derive()
		all = append(all, m)
	}
	slices.SortFunc(all, func(a, b *stats.CampaignMetrics) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.CampaignID, a.CampaignID)
	})
	var out []*stats.CampaignMetrics
	for i := p.Offset(); i < len(all) && len(out) < p.Limit; i++ {
		out = append(out, all[i])
	}
	return out, len(all), nil
}

func within(t *time.Time, start, end time.Time) bool {
	return t != nil && !t.Before(start) && t.Before(end)
}

func (r *StatsRepo) RebuildDaily(_ context.Context, day time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	start := dayStart(day)
	end := start.AddDate(0, 0, 1)
	n := 0
	for id := range r.s.domains {
		row := stats.Daily{DomainID: id, Day: start}
		for _, sub := range r.s.subscribers {
			if sub.DomainID != id {
				continue
			}
			if within(&sub.SubscribedAt, start, end) {
				row.NewSubscribers++
			}
			if within(sub.UnsubscribedAt, start, end) {
				row.Unsubscribes++
			}
		}
		for _, c := range r.s.campaigns {
			if c.DomainID == id && within(c.SentAt, start, end) {
				row.CampaignsSent++
			}
		}
		for _, nt := range r.s.notifications {
			c, ok := r.s.campaigns[nt.CampaignID]
			if !ok || c.DomainID != id || !within(&nt.SentAt, start, end) {
				continue
			}
			if delivered(nt) {
				row.NotificationsSent++
			}
			if nt.Status == notification.StatusClicked {
				row.Clicks++
			}
		}
		row.ClickRate = stats.Rate(row.Clicks, row.NotificationsSent)
		r.s.daily[dailyKey{domainID: id, day: start.Format(stats.DayLayout)}] = row
		n++
	}
	return n, nil
}

func (r *StatsRepo) ListDaily(_ context.Context, owner uuid.UUID, domainID *int64, since time.Time) ([]*stats.Daily, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	from := dayStart(since)
	var out []*stats.Daily
	for _, row := range r.s.daily {
		if !r.owns(owner, domainID, row.DomainID) || row.Day.Before(from) {
			continue
		}
		out = append(out, &row)
	}
	slices.SortFunc(out, func(a, b *stats.Daily) int {
		if c := a.Day.Compare(b.Day); c != 0 {
			return c
		}
		return cmp.Compare(a.DomainID, b.DomainID)
	})
	return out, nil
}
