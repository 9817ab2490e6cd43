package api_config

import (
	"time"

	"github.com/growsome/trafficlens/internal/config"
	"github.com/growsome/trafficlens/internal/geo"
	"github.com/growsome/trafficlens/internal/outbox"
	"github.com/growsome/trafficlens/internal/push"
	"github.com/growsome/trafficlens/internal/services/api/tracking"
	"github.com/growsome/trafficlens/internal/services/delivery"
)

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type Auth struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type RateLimit struct {
	// Public is a ulule/limiter formatted rate such as "600-M".
	Public string `mapstructure:"public"`
}

// Local drives scheduled campaigns inside the api process when db.driver=memory.
type Local struct {
	Tick       time.Duration `mapstructure:"tick"`
	StatsEvery time.Duration `mapstructure:"stats_every"`
}

type Config struct {
	App       config.App      `mapstructure:"app"`
	Server    Server          `mapstructure:"server"`
	DB        config.DB       `mapstructure:"db"`
	Log       config.Log      `mapstructure:"log"`
	OTEL      config.OTEL     `mapstructure:"otel"`
	Auth      Auth            `mapstructure:"auth"`
	Push      push.Config     `mapstructure:"push"`
	Delivery  delivery.Config `mapstructure:"delivery"`
	Geo       geo.Config      `mapstructure:"geo"`
	Tracking  tracking.Config `mapstructure:"tracking"`
	RateLimit RateLimit       `mapstructure:"ratelimit"`
	Local     Local           `mapstructure:"local"`
	Outbox    outbox.Config   `mapstructure:"outbox"`
}
