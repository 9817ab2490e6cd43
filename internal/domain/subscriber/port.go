package subscriber

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/growsome/trafficlens/internal/domain"
)

type Repo interface {
	// Upsert inserts or refreshes the row keyed by (domain, endpoint) and
	// reports whether a new row was created.
	Upsert(ctx context.Context, s *Subscriber) (bool, error)
	GetByID(ctx context.Context, id int64) (*Subscriber, error)
	List(ctx context.Context, f Filter, p domain.Page) ([]*Subscriber, int, error)
	// ListTargets returns active subscribers of a domain, narrowed by an
	// optional segment and an optional explicit id list.
	ListTargets(ctx context.Context, domainID int64, seg *Segment, ids []int64) ([]*Subscriber, error)
	// OwnedIDs filters ids down to subscribers of domains owned by owner.
	OwnedIDs(ctx context.Context, owner uuid.UUID, ids []int64) ([]int64, error)
	SetActive(ctx context.Context, ids []int64, active bool) (int, error)
	// Delete removes the subscribers' notifications and then the subscribers.
	Delete(ctx context.Context, ids []int64) (int, error)
	Deactivate(ctx context.Context, id int64) error
	Touch(ctx context.Context, id int64, at time.Time) error
	Export(ctx context.Context, f Filter, fn func(ExportRow) error) error
}
