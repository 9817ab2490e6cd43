package push_worker_config

import (
	"github.com/growsome/trafficlens/internal/config"
	"github.com/growsome/trafficlens/internal/push"
	"github.com/growsome/trafficlens/internal/services/delivery"
)

type KafkaIn struct {
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	GroupID    string   `mapstructure:"group_id"`
	Partitions int      `mapstructure:"partitions"`
}

type Server struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type Config struct {
	App      config.App      `mapstructure:"app"`
	DB       config.DB       `mapstructure:"db"`
	Log      config.Log      `mapstructure:"log"`
	OTEL     config.OTEL     `mapstructure:"otel"`
	In       KafkaIn         `mapstructure:"kafka_in"`
	Push     push.Config     `mapstructure:"push"`
	Delivery delivery.Config `mapstructure:"delivery"`
	Server   Server          `mapstructure:"server"`
}
