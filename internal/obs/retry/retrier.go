package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Backoff interface {
	Next(attempt int) time.Duration
}

// ExpoJitter doubles Base per attempt up to Max, then spreads the wait by
// +/- Jitter (a fraction of the delay).
type ExpoJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (b ExpoJitter) Next(attempt int) time.Duration {
	d := b.Base
	for range max(attempt, 0) {
		if (b.Max > 0 && d >= b.Max) || d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		d = time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*b.Jitter))
	}
	return d
}

var defaultBackoff = ExpoJitter{Base: 100 * time.Millisecond, Max: 5 * time.Second}

// Policy describes how Do repeats a failing call. Name becomes the op label
// on the retry metrics.
type Policy struct {
	Name      string
	Attempts  int
	Backoff   Backoff
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	OnExhaust func(lastErr error)
}

func (p Policy) normalized() Policy {
	if p.Name == "" {
		p.Name = "unnamed"
	}
	p.Attempts = max(p.Attempts, 1)
	if p.Backoff == nil {
		p.Backoff = defaultBackoff
	}
	if p.Retryable == nil {
		p.Retryable = func(err error) bool { return err != nil }
	}
	return p
}

// Outcomes recorded on trafficlens_retry_calls_total.
const (
	outcomeOK       = "ok"
	outcomeGaveUp   = "gave_up"
	outcomeFatal    = "fatal"
	outcomeCanceled = "canceled"
)

var (
	retryCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficlens_retry_calls_total",
		Help: "Retried operations by final outcome.",
	}, []string{"op", "outcome"})
	retryAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trafficlens_retry_attempts",
		Help:    "Attempts spent per retried operation.",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12},
	}, []string{"op"})
	retryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trafficlens_retry_duration_seconds",
		Help:    "Wall time of a retried operation, waits included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// Do runs fn until it succeeds, the error is not retryable, attempts run out
// or ctx is done.
func Do(ctx context.Context, fn func() error, p Policy) error {
	_, err := DoValue(ctx, func() (struct{}, error) { return struct{}{}, fn() }, p)
	return err
}

// DoValue is Do for calls that return a result. The result of the last
// attempt is returned alongside its error.
func DoValue[T any](ctx context.Context, fn func() (T, error), p Policy) (T, error) {
	p = p.normalized()
	start := time.Now()
	span := trace.SpanFromContext(ctx)

	var (
		out     T
		err     error
		outcome string
		used    int
	)
	for attempt := range p.Attempts {
		used = attempt + 1
		if out, err = fn(); err == nil {
			outcome = outcomeOK
			break
		}
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, err)
		}
		if span.IsRecording() {
			span.AddEvent("retry.attempt", trace.WithAttributes(
				attribute.String("retry.op", p.Name),
				attribute.Int("retry.attempt", used),
				attribute.String("retry.error", err.Error()),
			))
		}
		if !p.Retryable(err) {
			outcome = outcomeFatal
			break
		}
		if used == p.Attempts {
			outcome = outcomeGaveUp
			break
		}
		if werr := sleep(ctx, p.Backoff.Next(attempt)); werr != nil {
			err, outcome = werr, outcomeCanceled
			break
		}
	}

	if outcome == outcomeGaveUp || outcome == outcomeFatal {
		if p.OnExhaust != nil {
			p.OnExhaust(err)
		}
	}
	retryCalls.WithLabelValues(p.Name, outcome).Inc()
	retryAttempts.WithLabelValues(p.Name).Observe(float64(used))
	retryDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
	return out, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
