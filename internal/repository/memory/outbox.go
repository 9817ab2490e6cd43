package memory

import (
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/growsome/trafficlens/internal/domain/outbox"
)

var _ outbox.Repository = (*OutboxRepo)(nil)

type OutboxRepo struct{ s *Store }

func (r *OutboxRepo) Enqueue(ctx context.Context, key string, kind outbox.Kind, data []byte) error {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.outbox[key]; ok {
		return nil
	}
	now := r.s.now()
	r.s.outbox[key] = &outbox.Message{
		IdempotencyKey: key,
		Kind:           kind,
		Data:           slices.Clone(data),
		Status:         outbox.StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
		Traceparent:    carrier.Get("traceparent"),
		Tracestate:     carrier.Get("tracestate"),
		Baggage:        carrier.Get("baggage"),
	}
	return nil
}

func (r *OutboxRepo) PickBatch(_ context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	var cand []*outbox.Message
	for _, m := range r.s.outbox {
		if m.Status == outbox.StatusCreated ||
			(m.Status == outbox.StatusInProgress && m.UpdatedAt.Before(now.Add(-inProgressTTL))) {
			cand = append(cand, m)
		}
	}
	slices.SortFunc(cand, func(a, b *outbox.Message) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(cand) > batch {
		cand = cand[:batch]
	}
	out := make([]outbox.Message, 0, len(cand))
	for _, m := range cand {
		m.Status = outbox.StatusInProgress
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (r *OutboxRepo) MarkSuccess(_ context.Context, keys []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, k := range keys {
		if m, ok := r.s.outbox[k]; ok {
			m.Status = outbox.StatusSuccess
			m.UpdatedAt = r.s.now()
		}
	}
	return nil
}
