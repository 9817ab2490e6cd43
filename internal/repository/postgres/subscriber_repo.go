package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
)

var _ subscriber.Repo = (*SubscriberRepo)(nil)

type SubscriberRepo struct{ db *DB }

func NewSubscriberRepo(db *DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

const subscriberCols = `s.id, s.domain_id, s.endpoint, s.p256dh, s.auth, s.user_agent, s.country, s.city,
       s.subscribed_at, s.last_seen_at, s.active, s.unsubscribed_at`

// ownerFilter is shared by List, count and Export: $1 owner, $2 domain, $3 active, $4 country.
const ownerFilter = `
FROM subscribers s
JOIN domains d ON d.id = s.domain_id
WHERE d.owner_id = $1
  AND ($2::bigint IS NULL OR s.domain_id = $2)
  AND ($3::boolean IS NULL OR s.active = $3)
  AND ($4 = '' OR upper(s.country) = upper($4))`

const (
	qSubscriberUpsert = `
INSERT INTO subscribers AS s (domain_id, endpoint, p256dh, auth, user_agent, country, city, subscribed_at, last_seen_at, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, TRUE)
ON CONFLICT (domain_id, endpoint) DO UPDATE
SET p256dh          = EXCLUDED.p256dh,
    auth            = EXCLUDED.auth,
    user_agent      = CASE WHEN EXCLUDED.user_agent <> '' THEN EXCLUDED.user_agent ELSE s.user_agent END,
    country         = CASE WHEN EXCLUDED.country <> '' THEN EXCLUDED.country ELSE s.country END,
    city            = CASE WHEN EXCLUDED.city <> '' THEN EXCLUDED.city ELSE s.city END,
    last_seen_at    = EXCLUDED.last_seen_at,
    active          = TRUE,
    unsubscribed_at = NULL
RETURNING ` + subscriberCols + `, (xmax = 0);`

	qSubscriberGet = `SELECT ` + subscriberCols + ` FROM subscribers s WHERE s.id = $1;`

	qSubscriberCount = `SELECT count(*) ` + ownerFilter + `;`

	qSubscriberList = `SELECT ` + subscriberCols + ownerFilter + `
ORDER BY s.subscribed_at DESC, s.id DESC
LIMIT $5 OFFSET $6;`

	qSubscriberExport = `SELECT ` + subscriberCols + `, d.site_name, d.domain,
       (SELECT count(*) FROM notifications n WHERE n.subscriber_id = s.id)` + ownerFilter + `
ORDER BY s.subscribed_at DESC, s.id DESC;`

	qSubscriberTargets = `
SELECT ` + subscriberCols + `
FROM subscribers s
WHERE s.domain_id = $1
  AND s.active
  AND ($2::bigint[] IS NULL OR s.id = ANY($2))
  AND (cardinality($3::text[]) = 0 OR lower(s.country) = ANY($3))
  AND (cardinality($4::text[]) = 0 OR lower(s.city) = ANY($4))
  AND ($5 = '' OR strpos(lower(s.user_agent), lower($5)) > 0)
  AND ($6::timestamptz IS NULL OR s.subscribed_at >= $6)
  AND ($7::timestamptz IS NULL OR s.last_seen_at >= $7)
ORDER BY s.id;`

	qSubscriberOwned = `
SELECT s.id
FROM subscribers s
JOIN domains d ON d.id = s.domain_id
WHERE d.owner_id = $1 AND s.id = ANY($2);`

	qSubscriberSetActive = `
UPDATE subscribers
SET active          = $2,
    unsubscribed_at = CASE WHEN $2 THEN NULL ELSE COALESCE(unsubscribed_at, now()) END
WHERE id = ANY($1);`

	qSubscriberDeleteNotifications = `DELETE FROM notifications WHERE subscriber_id = ANY($1);`
	qSubscriberDelete              = `DELETE FROM subscribers WHERE id = ANY($1);`

	qSubscriberDeactivate = `
UPDATE subscribers
SET active = FALSE, unsubscribed_at = COALESCE(unsubscribed_at, now())
WHERE id = $1;`

	qSubscriberTouch = `UPDATE subscribers SET last_seen_at = GREATEST(last_seen_at, $2) WHERE id = $1;`
)

func subscriberDest(s *subscriber.Subscriber) []any {
	return []any{
		&s.ID,
		&s.DomainID,
		&s.Endpoint,
		&s.Keys.P256dh,
		&s.Keys.Auth,
		&s.UserAgent,
		&s.Country,
		&s.City,
		&s.SubscribedAt,
		&s.LastSeenAt,
		&s.Active,
		&s.UnsubscribedAt,
	}
}

func scanSubscriber(row pgx.Row, s *subscriber.Subscriber) error {
	return row.Scan(subscriberDest(s)...)
}

func filterArgs(f subscriber.Filter) []any {
	return []any{f.OwnerID, f.DomainID, f.Active, strings.TrimSpace(f.Country)}
}

func (r *SubscriberRepo) Upsert(ctx context.Context, s *subscriber.Subscriber) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var created bool
	row := r.db.execQueryer(ctx).QueryRow(ctx, qSubscriberUpsert,
		s.DomainID, s.Endpoint, s.Keys.P256dh, s.Keys.Auth, s.UserAgent, s.Country, s.City, s.LastSeenAt)
	if err := row.Scan(append(subscriberDest(s), &created)...); err != nil {
		return false, mapErr("upsert subscriber", err)
	}
	return created, nil
}

func (r *SubscriberRepo) GetByID(ctx context.Context, id int64) (*subscriber.Subscriber, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s subscriber.Subscriber
	if err := scanSubscriber(r.db.execQueryer(ctx).QueryRow(ctx, qSubscriberGet, id), &s); err != nil {
		return nil, mapErr("get subscriber", err)
	}
	return &s, nil
}

func (r *SubscriberRepo) List(ctx context.Context, f subscriber.Filter, p domain.Page) ([]*subscriber.Subscriber, int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	args := filterArgs(f)

	var total int
	if err := eq.QueryRow(ctx, qSubscriberCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subscribers: %w", err)
	}
	rows, err := eq.Query(ctx, qSubscriberList, append(args, p.Limit, p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscribers: %w", err)
	}
	out, err := collect(rows, scanSubscriber)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *SubscriberRepo) ListTargets(ctx context.Context, domainID int64, seg *subscriber.Segment, ids []int64) ([]*subscriber.Subscriber, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s subscriber.Segment
	if seg != nil {
		s = *seg
	}
	rows, err := r.db.execQueryer(ctx).Query(ctx, qSubscriberTargets,
		domainID, ids, lowerAll(s.Countries), lowerAll(s.Cities), s.UserAgentContains, s.SubscribedAfter, s.LastSeenAfter)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return collect(rows, scanSubscriber)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (r *SubscriberRepo) OwnedIDs(ctx context.Context, owner uuid.UUID, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qSubscriberOwned, owner, ids)
	if err != nil {
		return nil, fmt.Errorf("owned subscribers: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("owned subscribers: %w", err)
	}
	return out, nil
}

func (r *SubscriberRepo) SetActive(ctx context.Context, ids []int64, active bool) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qSubscriberSetActive, ids, active)
	if err != nil {
		return 0, fmt.Errorf("set active: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *SubscriberRepo) Delete(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if _, err := eq.Exec(ctx, qSubscriberDeleteNotifications, ids); err != nil {
		return 0, fmt.Errorf("delete subscriber notifications: %w", err)
	}
	cmd, err := eq.Exec(ctx, qSubscriberDelete, ids)
	if err != nil {
		return 0, fmt.Errorf("delete subscribers: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *SubscriberRepo) Deactivate(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qSubscriberDeactivate, id)
	if err != nil {
		return fmt.Errorf("deactivate subscriber: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SubscriberRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qSubscriberTouch, id, at); err != nil {
		return fmt.Errorf("touch subscriber: %w", err)
	}
	return nil
}

// Export streams rows without the query timeout, since exports may be large.
func (r *SubscriberRepo) Export(ctx context.Context, f subscriber.Filter, fn func(subscriber.ExportRow) error) error {
	rows, err := r.db.execQueryer(ctx).Query(ctx, qSubscriberExport, filterArgs(f)...)
	if err != nil {
		return fmt.Errorf("export subscribers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var er subscriber.ExportRow
		dest := append(subscriberDest(&er.Subscriber), &er.SiteName, &er.DomainName, &er.NotificationCount)
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan export row: %w", err)
		}
		if err := fn(er); err != nil {
			return err
		}
	}
	return rows.Err()
}
