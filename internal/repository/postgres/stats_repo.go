package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/stats"
)

var _ stats.Repo = (*StatsRepo)(nil)

type StatsRepo struct{ db *DB }

func NewStatsRepo(db *DB) *StatsRepo { return &StatsRepo{db: db} }

const subscriberScope = `
FROM subscribers s
JOIN domains d ON d.id = s.domain_id
WHERE d.owner_id = $1
  AND ($2::bigint IS NULL OR s.domain_id = $2)`

const (
	qStatsSubscriberTotals = `
SELECT count(*),
       count(*) FILTER (WHERE s.active),
       count(*) FILTER (WHERE s.subscribed_at >= $3)` + subscriberScope + `;`

	qStatsDelivery = `
SELECT count(*) FILTER (WHERE n.status IN ('sent', 'clicked')),
       count(*) FILTER (WHERE n.status = 'clicked')
FROM notifications n
JOIN campaigns c ON c.id = n.campaign_id
JOIN domains d ON d.id = c.domain_id
WHERE d.owner_id = $1
  AND ($2::bigint IS NULL OR c.domain_id = $2)
  AND n.sent_at >= $3;`

	qStatsTopCountries = `
SELECT s.country, count(*) AS cnt` + subscriberScope + `
  AND s.country <> ''
GROUP BY s.country
ORDER BY cnt DESC, s.country
LIMIT 5;`

	qStatsNewByDay = `
SELECT to_char(s.subscribed_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*)` + subscriberScope + `
  AND s.subscribed_at >= $3
GROUP BY day;`

	campaignMetricsFilter = `
WHERE c.owner_id = $1
  AND ($2::bigint IS NULL OR c.domain_id = $2)
  AND ($3::text IS NULL OR c.status = $3)
  AND c.created_at >= $4`

	qStatsCampaignCount = `SELECT count(*) FROM campaigns c` + campaignMetricsFilter + `;`

	qStatsCampaignMetrics = `
SELECT c.id, c.domain_id, c.title, c.status, c.created_at, c.sent_at,
       count(n.id) FILTER (WHERE n.status IN ('sent', 'clicked')),
       count(n.id) FILTER (WHERE n.status = 'clicked'),
       count(n.id) FILTER (WHERE n.viewed_at IS NOT NULL)
FROM campaigns c
LEFT JOIN notifications n ON n.campaign_id = c.id` + campaignMetricsFilter + `
GROUP BY c.id
ORDER BY c.created_at DESC, c.id DESC
LIMIT $5 OFFSET $6;`

	qStatsRebuildDaily = `
INSERT INTO daily_stats (domain_id, day, new_subscribers, unsubscribes, campaigns_sent,
                         notifications_sent, clicks, click_rate, updated_at)
SELECT d.id,
       ($1::timestamptz AT TIME ZONE 'UTC')::date,
       (SELECT count(*) FROM subscribers s
         WHERE s.domain_id = d.id AND s.subscribed_at >= $1 AND s.subscribed_at < $2),
       (SELECT count(*) FROM subscribers s
         WHERE s.domain_id = d.id AND s.unsubscribed_at >= $1 AND s.unsubscribed_at < $2),
       (SELECT count(*) FROM campaigns c
         WHERE c.domain_id = d.id AND c.sent_at >= $1 AND c.sent_at < $2),
       ns.sent,
       ns.clicks,
       CASE WHEN ns.sent = 0 THEN 0 ELSE round(ns.clicks::numeric / ns.sent * 100, 2) END,
       now()
FROM domains d
CROSS JOIN LATERAL (
    SELECT count(*) FILTER (WHERE n.status IN ('sent', 'clicked')) AS sent,
           count(*) FILTER (WHERE n.status = 'clicked')            AS clicks
    FROM notifications n
    JOIN campaigns c ON c.id = n.campaign_id
    WHERE c.domain_id = d.id AND n.sent_at >= $1 AND n.sent_at < $2
) ns
ON CONFLICT (domain_id, day) DO UPDATE
SET new_subscribers    = EXCLUDED.new_subscribers,
    unsubscribes       = EXCLUDED.unsubscribes,
    campaigns_sent     = EXCLUDED.campaigns_sent,
    notifications_sent = EXCLUDED.notifications_sent,
    clicks             = EXCLUDED.clicks,
    click_rate         = EXCLUDED.click_rate,
    updated_at         = now();`

	qStatsListDaily = `
SELECT ds.domain_id, ds.day, ds.new_subscribers, ds.unsubscribes, ds.campaigns_sent,
       ds.notifications_sent, ds.clicks, ds.click_rate
FROM daily_stats ds
JOIN domains d ON d.id = ds.domain_id
WHERE d.owner_id = $1
  AND ($2::bigint IS NULL OR ds.domain_id = $2)
  AND ds.day >= ($3::timestamptz AT TIME ZONE 'UTC')::date
ORDER BY ds.day, ds.domain_id;`
)

func dayStart(t time.Time) time.Time { return t.UTC().Truncate(24 * time.Hour) }

func (r *StatsRepo) SubscriberCounts(ctx context.Context, owner uuid.UUID, domainID *int64, now time.Time) (*stats.SubscriberCounts, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	today := dayStart(now)
	out := &stats.SubscriberCounts{NewByDay: map[string]int64{}}

	if err := eq.QueryRow(ctx, qStatsSubscriberTotals, owner, domainID, today).
		Scan(&out.Total, &out.Active, &out.NewToday); err != nil {
		return nil, fmt.Errorf("subscriber totals: %w", err)
	}
	if err := eq.QueryRow(ctx, qStatsDelivery, owner, domainID, now.AddDate(0, 0, -30)).
		Scan(&out.Delivered30d, &out.Clicked30d); err != nil {
		return nil, fmt.Errorf("delivery totals: %w", err)
	}

	rows, err := eq.Query(ctx, qStatsTopCountries, owner, domainID)
	if err != nil {
		return nil, fmt.Errorf("top countries: %w", err)
	}
	top, err := collect(rows, func(row pgx.Row, c *stats.CountryCount) error {
		return row.Scan(&c.Country, &c.Count)
	})
	if err != nil {
		return nil, err
	}
	for _, c := range top {
		out.TopCountries = append(out.TopCountries, *c)
	}

	rows, err = eq.Query(ctx, qStatsNewByDay, owner, domainID, today.AddDate(0, 0, -6))
	if err != nil {
		return nil, fmt.Errorf("new by day: %w", err)
	}
	days, err := collect(rows, func(row pgx.Row, d *stats.DayCount) error {
		return row.Scan(&d.Date, &d.Count)
	})
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		out.NewByDay[d.Date] = d.Count
	}
	return out, nil
}

func (r *StatsRepo) CampaignMetrics(ctx context.Context, f stats.AnalyticsFilter, p domain.Page) ([]*stats.CampaignMetrics, int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	eq := r.db.execQueryer(ctx)
	args := []any{f.OwnerID, f.DomainID, status, f.Since}

	var total int
	if err := eq.QueryRow(ctx, qStatsCampaignCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaign metrics: %w", err)
	}
	rows, err := eq.Query(ctx, qStatsCampaignMetrics, append(args, p.Limit, p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("campaign metrics: %w", err)
	}
	out, err := collect(rows, func(row pgx.Row, m *stats.CampaignMetrics) error {
		if err := row.Scan(&m.CampaignID, &m.DomainID, &m.Title, &m.Status, &m.CreatedAt, &m.SentAt,
			&m.TotalSent, &m.TotalClicks, &m.TotalViews); err != nil {
			return err
		}
		m.Derive()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *StatsRepo) RebuildDaily(ctx context.Context, day time.Time) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	start := dayStart(day)
	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qStatsRebuildDaily, start, start.AddDate(0, 0, 1))
	if err != nil {
		return 0, fmt.Errorf("rebuild daily stats: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *StatsRepo) ListDaily(ctx context.Context, owner uuid.UUID, domainID *int64, since time.Time) ([]*stats.Daily, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qStatsListDaily, owner, domainID, dayStart(since))
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	return collect(rows, func(row pgx.Row, d *stats.Daily) error {
		return row.Scan(&d.DomainID, &d.Day, &d.NewSubscribers, &d.Unsubscribes, &d.CampaignsSent,
			&d.NotificationsSent, &d.Clicks, &d.ClickRate)
	})
}
