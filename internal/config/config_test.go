package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growsome/trafficlens/internal/config"
	apicfg "github.com/growsome/trafficlens/internal/config/api"
	schedcfg "github.com/growsome/trafficlens/internal/config/scheduler"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestAPILoadDefaultsAndFile(t *testing.T) {
	path := writeYAML(t, `
db:
  driver: memory
auth:
  jwt_secret: 0123456789abcdef
delivery:
  concurrency: 4
tracking:
  campaign_fallback: true
`)
	cfg, err := apicfg.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.DriverMemory, cfg.DB.Driver)
	assert.Equal(t, 4, cfg.Delivery.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Delivery.PushTimeout)
	assert.True(t, cfg.Tracking.CampaignFallback)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "api", cfg.App.Name)

	rate, err := cfg.PublicRate()
	require.NoError(t, err)
	assert.Equal(t, int64(600), rate.Limit)
	assert.Equal(t, time.Minute, rate.Period)
}

func TestAPILoadEnvOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "from-env-secret-value")
	t.Setenv("DB_DSN", "postgres://u:p@db:5432/tl")
	t.Setenv("DELIVERY_PUSH_TIMEOUT", "3s")

	cfg, err := apicfg.Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env-secret-value", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres://u:p@db:5432/tl", cfg.DB.DSN)
	assert.Equal(t, 3*time.Second, cfg.Delivery.PushTimeout)
}

func TestAPILoadRejects(t *testing.T) {
	_, err := apicfg.Load(writeYAML(t, "auth:\n  jwt_secret: short\n"))
	require.Error(t, err)

	_, err = apicfg.Load(writeYAML(t, "auth:\n  jwt_secret: 0123456789abcdef\ndb:\n  driver: sqlite\n"))
	require.ErrorContains(t, err, "db.driver")

	_, err = apicfg.Load(writeYAML(t, "auth:\n  jwt_secret: 0123456789abcdef\nratelimit:\n  public: lots\n"))
	require.ErrorContains(t, err, "ratelimit.public")
}

func TestSchedulerRejectsMemoryDriver(t *testing.T) {
	_, err := schedcfg.Load(writeYAML(t, "db:\n  driver: memory\n"))
	require.ErrorContains(t, err, "only supported by the api")

	cfg, err := schedcfg.Load("")
	require.NoError(t, err)
	assert.Equal(t, schedcfg.DispatchTopic, cfg.Kafka.Topic)
	assert.Equal(t, 5*time.Minute, cfg.Sched.StatsEvery)
}
