package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/campaign"
)

var _ campaign.Repo = (*CampaignRepo)(nil)

type CampaignRepo struct{ db *DB }

func NewCampaignRepo(db *DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignCols = `c.id, c.domain_id, c.owner_id, c.title, c.body, c.icon_url, c.image_url, c.badge_url, c.click_url,
       c.require_interaction, c.scheduled_at, c.sent_at, c.status, c.target_type, c.target_filter,
       c.dispatch_requested_at, c.created_at, c.updated_at`

const campaignFilter = `
FROM campaigns c
WHERE c.owner_id = $1
  AND ($2::bigint IS NULL OR c.domain_id = $2)
  AND ($3::text IS NULL OR c.status = $3)`

const (
	qCampaignInsert = `
INSERT INTO campaigns AS c (domain_id, owner_id, title, body, icon_url, image_url, badge_url, click_url,
                            require_interaction, scheduled_at, status, target_type, target_filter)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + campaignCols + `;`

	qCampaignGet = `SELECT ` + campaignCols + ` FROM campaigns c WHERE c.id = $1;`

	qCampaignCount = `SELECT count(*) ` + campaignFilter + `;`

	qCampaignList = `SELECT ` + campaignCols + campaignFilter + `
ORDER BY c.created_at DESC, c.id DESC
LIMIT $4 OFFSET $5;`

	qCampaignUpdate = `
UPDATE campaigns c
SET title                 = $2,
    body                  = $3,
    icon_url              = $4,
    image_url             = $5,
    badge_url             = $6,
    click_url             = $7,
    require_interaction   = $8,
    scheduled_at          = $9,
    status                = $10,
    target_type           = $11,
    target_filter         = $12,
    dispatch_requested_at = $13,
    updated_at            = now()
WHERE c.id = $1 AND c.status <> 'sent'
RETURNING ` + campaignCols + `;`

	qCampaignMarkSent = `
UPDATE campaigns
SET status = 'sent', sent_at = $2, updated_at = now()
WHERE id = $1 AND status <> 'sent';`

	qCampaignClaimDue = `
WITH due AS (
    SELECT id
    FROM campaigns
    WHERE status = 'scheduled'
      AND scheduled_at <= $1
      AND dispatch_requested_at IS NULL
    ORDER BY scheduled_at
    FOR UPDATE SKIP LOCKED
    LIMIT $2
)
UPDATE campaigns c
SET dispatch_requested_at = $1, updated_at = now()
FROM due
WHERE c.id = due.id
RETURNING ` + campaignCols + `;`
)

func scanCampaign(row pgx.Row, c *campaign.Campaign) error {
	return row.Scan(
		&c.ID,
		&c.DomainID,
		&c.OwnerID,
		&c.Title,
		&c.Body,
		&c.IconURL,
		&c.ImageURL,
		&c.BadgeURL,
		&c.ClickURL,
		&c.RequireInteraction,
		&c.ScheduledAt,
		&c.SentAt,
		&c.Status,
		&c.TargetType,
		&c.TargetFilter,
		&c.DispatchRequestedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
}

func (r *CampaignRepo) Create(ctx context.Context, c *campaign.Campaign) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qCampaignInsert,
		c.DomainID, c.OwnerID, c.Title, c.Body, c.IconURL, c.ImageURL, c.BadgeURL, c.ClickURL,
		c.RequireInteraction, c.ScheduledAt, string(c.Status), string(c.TargetType), c.TargetFilter)
	return mapErr("insert campaign", scanCampaign(row, c))
}

func (r *CampaignRepo) GetByID(ctx context.Context, id int64) (*campaign.Campaign, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var c campaign.Campaign
	if err := scanCampaign(r.db.execQueryer(ctx).QueryRow(ctx, qCampaignGet, id), &c); err != nil {
		return nil, mapErr("get campaign", err)
	}
	return &c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.Filter, p domain.Page) ([]*campaign.Campaign, int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	eq := r.db.execQueryer(ctx)
	args := []any{f.OwnerID, f.DomainID, status}

	var total int
	if err := eq.QueryRow(ctx, qCampaignCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}
	rows, err := eq.Query(ctx, qCampaignList, append(args, p.Limit, p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	out, err := collect(rows, scanCampaign)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *CampaignRepo) Update(ctx context.Context, c *campaign.Campaign) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qCampaignUpdate,
		c.ID, c.Title, c.Body, c.IconURL, c.ImageURL, c.BadgeURL, c.ClickURL, c.RequireInteraction,
		c.ScheduledAt, string(c.Status), string(c.TargetType), c.TargetFilter, c.DispatchRequestedAt)
	if err := scanCampaign(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: campaign %d is not editable", ErrConflict, c.ID)
		}
		return mapErr("update campaign", err)
	}
	return nil
}

func (r *CampaignRepo) MarkSent(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qCampaignMarkSent, id, at)
	if err != nil {
		return fmt.Errorf("mark campaign sent: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: campaign %d already sent", ErrConflict, id)
	}
	return nil
}

func (r *CampaignRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*campaign.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qCampaignClaimDue, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due campaigns: %w", err)
	}
	return collect(rows, scanCampaign)
}
