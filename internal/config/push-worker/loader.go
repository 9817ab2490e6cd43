package push_worker_config

import (
	"github.com/growsome/trafficlens/internal/config"
)

func Load(path string) (*Config, error) {
	v, err := config.NewViper(path)
	if err != nil {
		return nil, err
	}
	config.SetCommonDefaults(v, "push-worker")

	v.SetDefault("kafka_in.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka_in.topic", "trafficlens.campaigns.dispatch")
	v.SetDefault("kafka_in.group_id", "trafficlens-push-worker")
	v.SetDefault("kafka_in.partitions", 3)

	v.SetDefault("push.vapid_subject", "mailto:ops@trafficlens.io")
	v.SetDefault("push.ttl", "24h")
	v.SetDefault("push.urgency", "normal")
	v.SetDefault("push.timeout", "10s")

	v.SetDefault("delivery.concurrency", 32)
	v.SetDefault("delivery.push_timeout", "10s")

	v.SetDefault("server.metrics_addr", ":8083")

	var cfg Config
	if err := config.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.DB.Validate(false); err != nil {
		return nil, err
	}
	if len(cfg.In.Brokers) == 0 || cfg.In.Topic == "" || cfg.In.GroupID == "" {
		return nil, config.ErrConfig("kafka_in.brokers, topic and group_id are required")
	}
	return &cfg, nil
}
