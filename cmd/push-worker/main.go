package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/growsome/trafficlens/internal/config/push-worker"
	"github.com/growsome/trafficlens/internal/obs"
	"github.com/growsome/trafficlens/internal/push"
	"github.com/growsome/trafficlens/internal/repository/kafka"
	pg "github.com/growsome/trafficlens/internal/repository/postgres"
	"github.com/growsome/trafficlens/internal/services/delivery"
	pushworker "github.com/growsome/trafficlens/internal/services/push-worker"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/push-worker.yaml"
}

func wire(cfg *config.Config, db *pg.DB, cons *kafka.Consumer, l *zap.Logger) *pushworker.Controller {
	disp := delivery.NewDispatcher(l, delivery.Repos{
		Campaigns:     pg.NewCampaignRepo(db),
		Domains:       pg.NewDomainRepo(db),
		Subscribers:   pg.NewSubscriberRepo(db),
		Notifications: pg.NewNotificationRepo(db),
	}, push.NewWebPushSender(cfg.Push, nil), cfg.Delivery, nil)

	uc := pushworker.NewHandler(l, disp, pushworker.DefaultSendPolicy(l))
	return &pushworker.Controller{Log: l, Sub: cons, UC: uc}
}

func main() {
	// init
	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	// otel
	otelCloser, err := obs.SetupOTel(root, cfg.OTEL.AsOTELConfig(cfg.App))
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(root, cfg.DB.Config)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	// kafka
	cons := kafka.BootstrapConsumer(root, &kafka.ConsumerConfig{
		Brokers: cfg.In.Brokers,
		GroupID: cfg.In.GroupID,
		Topic:   cfg.In.Topic,
		Logger:  l,
	}, cfg.In.Partitions, l)
	defer func() { _ = cons.Close() }()

	// wiring
	ctrl := wire(cfg, db, cons, l)

	// start
	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(root) }()
	l.Info("push-worker started", zap.String("topic", cfg.In.Topic), zap.String("group", cfg.In.GroupID))

	// loop
	select {
	case <-root.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("controller error", zap.Error(err))
		}
	}

	// graceful metrics server shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
