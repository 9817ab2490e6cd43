package scheduler

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	config "github.com/growsome/trafficlens/internal/config/scheduler"
)

var (
	mClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trafficlens_scheduler_campaigns_claimed_total", Help: "Due campaigns claimed for dispatch",
	})
	mErr = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficlens_scheduler_errors_total", Help: "Errors in scheduler loops",
	}, []string{"loop"})
	mLoopDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "trafficlens_scheduler_loop_duration_seconds", Help: "Scheduler loop duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"loop"})
)

type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg *config.SchedCfg
}

func New(log *zap.Logger, uc *Usecase, cfg *config.SchedCfg) *Runner {
	return &Runner{Log: log, UC: uc, Cfg: cfg}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	claimed, err := r.UC.Tick(ctx, r.Cfg.BatchLimit)
	if err != nil {
		mErr.WithLabelValues("claim").Inc()
		r.Log.Warn("tick error", zap.Error(err))
	}
	if claimed > 0 {
		mClaimed.Add(float64(claimed))
		r.Log.Info("campaigns claimed", zap.Int("claimed", claimed))
	}
	mLoopDur.WithLabelValues("claim").Observe(time.Since(start).Seconds())
}

func (r *Runner) rebuild(ctx context.Context) {
	start := time.Now()
	n, err := r.UC.RebuildStats(ctx)
	if err != nil {
		mErr.WithLabelValues("stats").Inc()
		r.Log.Warn("stats rebuild error", zap.Error(err))
	} else {
		r.Log.Debug("daily stats rebuilt", zap.Int("rows", n))
	}
	mLoopDur.WithLabelValues("stats").Observe(time.Since(start).Seconds())
}

// Run claims due campaigns every Tick and rebuilds stats every StatsEvery
// until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	statsEvery := r.Cfg.StatsEvery
	if statsEvery <= 0 {
		statsEvery = 5 * time.Minute
	}
	statsTicker := time.NewTicker(statsEvery)
	defer statsTicker.Stop()

	r.tick(ctx)
	r.rebuild(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		case <-statsTicker.C:
			r.rebuild(ctx)
		}
	}
}
