package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/domain/kafka"
	"github.com/growsome/trafficlens/internal/domain/outbox"
	"github.com/growsome/trafficlens/internal/obs/retry"
	"github.com/growsome/trafficlens/internal/repository/memory"
)

type fakeEvents struct {
	mu    sync.Mutex
	fails int
	got   []kafka.DispatchRequested
}

func (f *fakeEvents) PublishDispatchRequested(_ context.Context, ev kafka.DispatchRequested) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("broker unavailable")
	}
	f.got = append(f.got, ev)
	return nil
}

func noRetry() retry.Policy {
	return retry.Policy{Attempts: 1}
}

func enqueueDue(t *testing.T, repo outbox.Repository, id int64) {
	t.Helper()
	data, err := json.Marshal(CampaignDuePayload{CampaignID: id, RequestedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(context.Background(), CampaignDueKey(id, time.Unix(1700000000, 0)), outbox.KindCampaignDue, data))
}

func TestRunner_TickPublishesAndMarks(t *testing.T) {
	repo := memory.NewStore().Outbox()
	events := &fakeEvents{}
	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(events, noRetry()), Config{BatchSize: 10})

	enqueueDue(t, repo, 1)
	enqueueDue(t, repo, 2)
	enqueueDue(t, repo, 1)

	assert.Equal(t, 2, r.Tick(context.Background()))
	require.Len(t, events.got, 2)
	assert.ElementsMatch(t, []int64{1, 2}, []int64{events.got[0].CampaignID, events.got[1].CampaignID})

	assert.Equal(t, 0, r.Tick(context.Background()))
	assert.Len(t, events.got, 2)
}

func TestRunner_FailedMessageIsRetriedAfterTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore().WithClock(func() time.Time { return now })
	repo := store.Outbox()
	events := &fakeEvents{fails: 1}
	r := NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(events, noRetry()), Config{InProgressTTL: time.Minute})

	enqueueDue(t, repo, 5)
	assert.Equal(t, 0, r.Tick(context.Background()))
	assert.Equal(t, 0, r.Tick(context.Background()))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, r.Tick(context.Background()))
	require.Len(t, events.got, 1)
	assert.EqualValues(t, 5, events.got[0].CampaignID)
}

func TestGlobalHandler_UnknownKind(t *testing.T) {
	_, err := MakeGlobalOutboxHandler(&fakeEvents{}, noRetry())(outbox.Kind(99))
	require.Error(t, err)
}

func TestWrapKindHandler_Retries(t *testing.T) {
	calls := 0
	h := WrapKindHandler(func(context.Context, []byte) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	}, retry.Policy{Attempts: 3, Backoff: retry.ExpoJitter{Base: time.Millisecond}})
	require.NoError(t, h(context.Background(), nil))
	assert.Equal(t, 2, calls)
}
