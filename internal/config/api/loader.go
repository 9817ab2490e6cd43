package api_config

import (
	"github.com/ulule/limiter/v3"

	"github.com/growsome/trafficlens/internal/config"
)

func Load(path string) (*Config, error) {
	v, err := config.NewViper(path)
	if err != nil {
		return nil, err
	}
	config.SetCommonDefaults(v, "api")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "trafficlens")

	v.SetDefault("push.vapid_subject", "mailto:ops@trafficlens.io")
	v.SetDefault("push.ttl", "24h")
	v.SetDefault("push.urgency", "normal")
	v.SetDefault("push.timeout", "10s")

	v.SetDefault("delivery.concurrency", 16)
	v.SetDefault("delivery.push_timeout", "10s")

	v.SetDefault("geo.enabled", false)
	v.SetDefault("geo.base_url", "http://ip-api.com")
	v.SetDefault("geo.timeout", "1500ms")
	v.SetDefault("geo.redis_addr", "")
	v.SetDefault("geo.cache_ttl", "24h")

	v.SetDefault("tracking.campaign_fallback", false)
	v.SetDefault("tracking.public_base_url", "http://localhost:8080")

	v.SetDefault("ratelimit.public", "600-M")

	v.SetDefault("local.tick", "5s")
	v.SetDefault("local.stats_every", "10m")

	v.SetDefault("outbox.workers", 1)
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.wait_time", "1s")
	v.SetDefault("outbox.in_progress_ttl", "1m")

	var cfg Config
	if err := config.Unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.DB.Validate(true); err != nil {
		return err
	}
	if len(c.Auth.JWTSecret) < 16 {
		return config.ErrConfig("auth.jwt_secret must be at least 16 bytes")
	}
	if _, err := c.PublicRate(); err != nil {
		return config.ErrConfig("ratelimit.public: " + err.Error())
	}
	if c.Tracking.PublicBaseURL == "" {
		return config.ErrConfig("tracking.public_base_url is required")
	}
	return nil
}

func (c *Config) PublicRate() (limiter.Rate, error) {
	return limiter.NewRateFromFormatted(c.RateLimit.Public)
}
