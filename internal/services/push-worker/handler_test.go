package push_worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/kafka"
	"github.com/growsome/trafficlens/internal/obs/retry"
	kafkax "github.com/growsome/trafficlens/internal/repository/kafka"
	"github.com/growsome/trafficlens/internal/services/delivery"
)

type scriptedDispatcher struct {
	errs  []error
	calls int
}

func (d *scriptedDispatcher) SendDue(_ context.Context, id int64) (*delivery.Result, error) {
	d.calls++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &delivery.Result{CampaignID: id, Targeted: 3, Sent: 3}, nil
}

func fastPolicy() retry.Policy {
	p := DefaultSendPolicy(zap.NewNop())
	p.Backoff = retry.ExpoJitter{Base: time.Millisecond, Max: time.Millisecond}
	return p
}

func TestHandleDispatch(t *testing.T) {
	transient := errors.New("connection reset")
	tests := []struct {
		name      string
		id        int64
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{name: "sent", id: 7, wantCalls: 1},
		{name: "retries transient failure", id: 7, errs: []error{transient, nil}, wantCalls: 2},
		{name: "already sent is acknowledged", id: 7, errs: []error{delivery.ErrAlreadySent}, wantCalls: 1},
		{name: "not due is acknowledged", id: 7, errs: []error{delivery.ErrNotDue}, wantCalls: 1},
		{name: "missing campaign is poison", id: 7, errs: []error{fmt.Errorf("load campaign: %w", domain.ErrNotFound)}, wantCalls: 1, wantErr: kafkax.ErrPoison},
		{name: "bad id is poison", id: 0, wantCalls: 0, wantErr: kafkax.ErrPoison},
		{name: "gives up after attempts", id: 7, errs: []error{transient, transient, transient, transient}, wantCalls: 4, wantErr: transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &scriptedDispatcher{errs: tt.errs}
			h := NewHandler(zap.NewNop(), d, fastPolicy())

			err := h.HandleDispatch(context.Background(), kafka.DispatchRequested{CampaignID: tt.id, RequestedAt: time.Now()})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, d.calls)
		})
	}
}

type chanSubscriber struct {
	msgs [][]byte
	errs []error
}

func (s *chanSubscriber) Consume(ctx context.Context, h kafkax.Handler) error {
	for _, m := range s.msgs {
		s.errs = append(s.errs, h(ctx, nil, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestControllerRun(t *testing.T) {
	d := &scriptedDispatcher{}
	sub := &chanSubscriber{msgs: [][]byte{
		[]byte(`{"campaign_id":5,"requested_at":"2026-03-10T09:00:00Z"}`),
		[]byte(`garbage`),
	}}
	c := &Controller{Log: zap.NewNop(), Sub: sub, UC: NewHandler(zap.NewNop(), d, fastPolicy())}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Len(t, sub.errs, 2)
	assert.NoError(t, sub.errs[0])
	assert.ErrorIs(t, sub.errs[1], kafkax.ErrPoison)
	assert.Equal(t, 1, d.calls)
}
