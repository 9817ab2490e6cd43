package main

import (
	"context"

	"go.uber.org/zap"

	apicfg "github.com/growsome/trafficlens/internal/config/api"
	schedcfg "github.com/growsome/trafficlens/internal/config/scheduler"
	"github.com/growsome/trafficlens/internal/obs"
	"github.com/growsome/trafficlens/internal/obs/retry"
	"github.com/growsome/trafficlens/internal/outbox"
	"github.com/growsome/trafficlens/internal/push"
	"github.com/growsome/trafficlens/internal/services/delivery"
	"github.com/growsome/trafficlens/internal/services/scheduler"
)

// runLocal drives scheduled campaigns in-process when there is no Kafka or
// separate scheduler, i.e. on the memory driver. It blocks until ctx is done.
func runLocal(ctx context.Context, cfg *apicfg.Config, st *storage, sender push.Sender, logger *zap.Logger) {
	disp := delivery.NewDispatcher(logger, delivery.Repos{
		Campaigns:     st.repos.Campaigns,
		Domains:       st.repos.Domains,
		Subscribers:   st.repos.Subscribers,
		Notifications: st.repos.Notifications,
	}, sender, cfg.Delivery, nil)

	events := scheduler.LocalEvents{Log: obs.Component(logger, "local-dispatch"), Dispatcher: disp}
	obRunner := outbox.NewOutboxRunner(logger,
		st.outbox,
		outbox.MakeGlobalOutboxHandler(events, retry.DefaultKafkaPolicy(logger)),
		cfg.Outbox,
	)

	uc := scheduler.NewUC(st.repos.Campaigns, st.outbox, st.repos.Stats, st.repos.Tx, nil)
	runner := scheduler.New(obs.Component(logger, "scheduler"), uc, &schedcfg.SchedCfg{
		Tick:       cfg.Local.Tick,
		BatchLimit: 100,
		StatsEvery: cfg.Local.StatsEvery,
	})

	go obRunner.Start(ctx)
	logger.Info("local scheduler started", zap.Duration("tick", cfg.Local.Tick))
	_ = runner.Run(ctx)
}
