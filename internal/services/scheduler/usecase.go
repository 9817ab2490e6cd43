package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/campaign"
	"github.com/growsome/trafficlens/internal/domain/outbox"
	"github.com/growsome/trafficlens/internal/domain/stats"
	ob "github.com/growsome/trafficlens/internal/outbox"
)

type Usecase struct {
	campaigns campaign.Repo
	outbox    outbox.Repository
	stats     stats.Repo
	tx        domain.Transactor
	clk       func() time.Time
}

func NewUC(campaigns campaign.Repo, out outbox.Repository, st stats.Repo, tx domain.Transactor, clk func() time.Time) *Usecase {
	if clk == nil {
		clk = func() time.Time { return time.Now().UTC() }
	}
	return &Usecase{campaigns: campaigns, outbox: out, stats: st, tx: tx, clk: clk}
}

// Tick claims due scheduled campaigns and records a dispatch request for each
// in the outbox, in one transaction. A claimed campaign is never claimed again
// unless it is rescheduled.
func (u *Usecase) Tick(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	tr := otel.Tracer("scheduler.uc")
	ctx, span := tr.Start(ctx, "scheduler.tick",
		trace.WithAttributes(attribute.Int("batch.limit", limit)),
	)
	defer span.End()

	now := u.clk()
	claimed := 0
	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		due, err := u.campaigns.ClaimDue(ctx, now, limit)
		if err != nil {
			return fmt.Errorf("claim due: %w", err)
		}
		for _, c := range due {
			at := now
			if c.ScheduledAt != nil {
				at = *c.ScheduledAt
			}
			data, err := json.Marshal(ob.CampaignDuePayload{CampaignID: c.ID, RequestedAt: now})
			if err != nil {
				return err
			}
			if err := u.outbox.Enqueue(ctx, ob.CampaignDueKey(c.ID, at), outbox.KindCampaignDue, data); err != nil {
				return fmt.Errorf("enqueue campaign %d: %w", c.ID, err)
			}
		}
		claimed = len(due)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("batch.claimed", claimed))
	return claimed, nil
}

// RebuildStats refreshes daily stats for today and yesterday, so late clicks
// on yesterday's sends are still counted.
func (u *Usecase) RebuildStats(ctx context.Context) (int, error) {
	today := u.clk().UTC().Truncate(24 * time.Hour)
	total := 0
	for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
		n, err := u.stats.RebuildDaily(ctx, day)
		if err != nil {
			return total, fmt.Errorf("rebuild %s: %w", day.Format(stats.DayLayout), err)
		}
		total += n
	}
	return total, nil
}
