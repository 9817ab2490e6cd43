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

	config "github.com/growsome/trafficlens/internal/config/scheduler"
	"github.com/growsome/trafficlens/internal/obs"
	"github.com/growsome/trafficlens/internal/obs/retry"
	"github.com/growsome/trafficlens/internal/outbox"
	kafkaRepo "github.com/growsome/trafficlens/internal/repository/kafka"
	pg "github.com/growsome/trafficlens/internal/repository/postgres"
	"github.com/growsome/trafficlens/internal/services/scheduler"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/scheduler.yaml"
}

func main() {
	// init
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
	l.Info("starting scheduler",
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("kafka_topic", cfg.Kafka.Topic),
		zap.String("metrics_addr", cfg.Sched.MetricsAddr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig(cfg.App))
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(ctx, cfg.DB.Config)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// kafka
	if err := kafkaRepo.EnsureTopic(ctx, cfg.Kafka.Brokers, kafkaRepo.TopicSpec{
		Name:          cfg.Kafka.Topic,
		NumPartitions: 3,
		MaxWait:       5 * time.Second,
	}, l); err != nil {
		l.Warn("ensure topic", zap.Error(err))
	}
	kafkaProd := kafkaRepo.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(l)
	defer func() { _ = kafkaProd.Close() }()
	publisher := kafkaRepo.NewCampaignEventsKafka(kafkaProd)

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Sched.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	// wiring
	outboxRepo := pg.NewOutboxRepo(db)
	transactor := pg.NewTransactor(db, l)
	uc := scheduler.NewUC(pg.NewCampaignRepo(db), outboxRepo, pg.NewStatsRepo(db), transactor, nil)
	runner := scheduler.New(obs.Component(l, "scheduler"), uc, &cfg.Sched)
	obRunner := outbox.NewOutboxRunner(l,
		outboxRepo,
		outbox.MakeGlobalOutboxHandler(publisher, retry.DefaultKafkaPolicy(l)),
		cfg.Outbox,
	)

	// run
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()
	obDone := make(chan struct{})
	go func() {
		defer close(obDone)
		obRunner.Start(ctx)
	}()

	l.Info("scheduler started")

	// loop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
		stop()
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	select {
	case <-obDone:
	case <-shCtx.Done():
	}
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
