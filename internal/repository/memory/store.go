// Package memory keeps every repository in process maps. It backs local runs
// with db.driver=memory and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/growsome/trafficlens/internal/domain/campaign"
	"github.com/growsome/trafficlens/internal/domain/notification"
	"github.com/growsome/trafficlens/internal/domain/outbox"
	"github.com/growsome/trafficlens/internal/domain/site"
	"github.com/growsome/trafficlens/internal/domain/stats"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
)

type dailyKey struct {
	domainID int64
	day      string
}

type Store struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	domains       map[int64]site.Domain
	subscribers   map[int64]subscriber.Subscriber
	campaigns     map[int64]campaign.Campaign
	notifications map[int64]notification.Notification
	daily         map[dailyKey]stats.Daily
	outbox        map[string]*outbox.Message
}

func NewStore() *Store {
	return &Store{
		now:           func() time.Time { return time.Now().UTC() },
		domains:       map[int64]site.Domain{},
		subscribers:   map[int64]subscriber.Subscriber{},
		campaigns:     map[int64]campaign.Campaign{},
		notifications: map[int64]notification.Notification{},
		daily:         map[dailyKey]stats.Daily{},
		outbox:        map[string]*outbox.Message{},
	}
}

// WithClock replaces the time source used for server-side timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) Domains() *DomainRepo             { return &DomainRepo{s: s} }
func (s *Store) Subscribers() *SubscriberRepo     { return &SubscriberRepo{s: s} }
func (s *Store) Campaigns() *CampaignRepo         { return &CampaignRepo{s: s} }
func (s *Store) Notifications() *NotificationRepo { return &NotificationRepo{s: s} }
func (s *Store) Stats() *StatsRepo                { return &StatsRepo{s: s} }
func (s *Store) Outbox() *OutboxRepo              { return &OutboxRepo{s: s} }

func (s *Store) Ping(context.Context) error { return nil }

// Transactor runs the function directly; each repository call is atomic on
// its own under the store lock.
type Transactor struct{}

func (Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
