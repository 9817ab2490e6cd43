package campaign

import (
	"context"
	"time"

	"github.com/growsome/trafficlens/internal/domain"
)

type Repo interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id int64) (*Campaign, error)
	List(ctx context.Context, f Filter, p domain.Page) ([]*Campaign, int, error)
	// Update persists editable fields; a sent campaign yields ErrConflict.
	Update(ctx context.Context, c *Campaign) error
	// MarkSent flips the campaign to sent once; a second call yields ErrConflict.
	MarkSent(ctx context.Context, id int64, at time.Time) error
	// ClaimDue stamps up to limit due scheduled campaigns as dispatch requested
	// and returns them. Claimed campaigns are not returned again.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Campaign, error)
}
