package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/growsome/trafficlens/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

const notificationCols = `id, campaign_id, subscriber_id, status, sent_at, clicked_at, viewed_at, closed_at, error, click_user_agent`

const (
	qNotificationCreateBatch = `
INSERT INTO notifications (campaign_id, subscriber_id, status, sent_at)
SELECT $1, sid, 'sent', $3
FROM unnest($2::bigint[]) AS sid
ON CONFLICT (campaign_id, subscriber_id) DO NOTHING
RETURNING ` + notificationCols + `;`

	qNotificationGet = `SELECT ` + notificationCols + ` FROM notifications WHERE id = $1;`

	qNotificationLatestSent = `
SELECT ` + notificationCols + `
FROM notifications
WHERE campaign_id = $1 AND status = 'sent'
ORDER BY sent_at DESC, id DESC
LIMIT 1;`

	qNotificationMarkFailed = `UPDATE notifications SET status = 'failed', error = $2 WHERE id = $1;`

	qNotificationMarkClicked = `
UPDATE notifications
SET status = 'clicked', clicked_at = $2, click_user_agent = $3
WHERE id = $1 AND status = 'sent';`

	qNotificationExists = `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1);`

	qNotificationMarkClosed = `UPDATE notifications SET closed_at = COALESCE(closed_at, $2) WHERE id = $1;`
	qNotificationMarkViewed = `UPDATE notifications SET viewed_at = COALESCE(viewed_at, $2) WHERE id = $1;`
)

func scanNotification(row pgx.Row, n *notification.Notification) error {
	return row.Scan(
		&n.ID,
		&n.CampaignID,
		&n.SubscriberID,
		&n.Status,
		&n.SentAt,
		&n.ClickedAt,
		&n.ViewedAt,
		&n.ClosedAt,
		&n.Error,
		&n.ClickUserAgent,
	)
}

func (r *NotificationRepo) CreateBatch(ctx context.Context, campaignID int64, subscriberIDs []int64, at time.Time) ([]*notification.Notification, error) {
	if len(subscriberIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qNotificationCreateBatch, campaignID, subscriberIDs, at)
	if err != nil {
		return nil, fmt.Errorf("insert notifications: %w", err)
	}
	return collect(rows, scanNotification)
}

func (r *NotificationRepo) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n notification.Notification
	if err := scanNotification(r.db.execQueryer(ctx).QueryRow(ctx, qNotificationGet, id), &n); err != nil {
		return nil, mapErr("get notification", err)
	}
	return &n, nil
}

func (r *NotificationRepo) LatestSentForCampaign(ctx context.Context, campaignID int64) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n notification.Notification
	if err := scanNotification(r.db.execQueryer(ctx).QueryRow(ctx, qNotificationLatestSent, campaignID), &n); err != nil {
		return nil, mapErr("latest notification", err)
	}
	return &n, nil
}

func (r *NotificationRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.execOne(ctx, "mark failed", qNotificationMarkFailed, id, reason)
}

func (r *NotificationRepo) MarkClicked(ctx context.Context, id int64, at time.Time, userAgent string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	cmd, err := eq.Exec(ctx, qNotificationMarkClicked, id, at, userAgent)
	if err != nil {
		return false, fmt.Errorf("mark clicked: %w", err)
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := eq.QueryRow(ctx, qNotificationExists, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("notification exists: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *NotificationRepo) MarkClosed(ctx context.Context, id int64, at time.Time) error {
	return r.execOne(ctx, "mark closed", qNotificationMarkClosed, id, at)
}

func (r *NotificationRepo) MarkViewed(ctx context.Context, id int64, at time.Time) error {
	return r.execOne(ctx, "mark viewed", qNotificationMarkViewed, id, at)
}

func (r *NotificationRepo) execOne(ctx context.Context, op, q string, args ...any) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
