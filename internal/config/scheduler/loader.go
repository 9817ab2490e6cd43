package scheduler_config

import (
	"github.com/growsome/trafficlens/internal/config"
)

const DispatchTopic = "trafficlens.campaigns.dispatch"

func Load(path string) (*Config, error) {
	v, err := config.NewViper(path)
	if err != nil {
		return nil, err
	}
	config.SetCommonDefaults(v, "scheduler")
	v.SetDefault("db.max_conns", 5)

	v.SetDefault("kafka.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka.topic", DispatchTopic)

	v.SetDefault("sched.tick", "1s")
	v.SetDefault("sched.batch_limit", 100)
	v.SetDefault("sched.stats_every", "5m")
	v.SetDefault("sched.metrics_addr", ":8082")

	v.SetDefault("outbox.workers", 2)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.wait_time", "500ms")
	v.SetDefault("outbox.in_progress_ttl", "1m")

	var cfg Config
	if err := config.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.DB.Validate(false); err != nil {
		return nil, err
	}
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		return nil, config.ErrConfig("kafka.brokers and kafka.topic are required")
	}
	if cfg.Sched.Tick <= 0 {
		return nil, config.ErrConfig("sched.tick must be positive")
	}
	return &cfg, nil
}
