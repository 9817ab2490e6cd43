package scheduler_config

import (
	"time"

	"github.com/growsome/trafficlens/internal/config"
	"github.com/growsome/trafficlens/internal/outbox"
	"github.com/growsome/trafficlens/internal/repository/kafka"
)

type SchedCfg struct {
	Tick        time.Duration `mapstructure:"tick"`
	BatchLimit  int           `mapstructure:"batch_limit"`
	StatsEvery  time.Duration `mapstructure:"stats_every"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

type Config struct {
	App    config.App           `mapstructure:"app"`
	DB     config.DB            `mapstructure:"db"`
	Log    config.Log           `mapstructure:"log"`
	OTEL   config.OTEL          `mapstructure:"otel"`
	Kafka  kafka.ProducerConfig `mapstructure:"kafka"`
	Sched  SchedCfg             `mapstructure:"sched"`
	Outbox outbox.Config        `mapstructure:"outbox"`
}
