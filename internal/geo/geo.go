package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

type Resolver interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RedisAddr string        `mapstructure:"redis_addr"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type Noop struct{}

func (Noop) Lookup(context.Context, string) (Location, error) { return Location{}, nil }

// HTTPResolver queries an ip-api compatible JSON endpoint.
type HTTPResolver struct {
	base   string
	client *http.Client
}

func NewHTTPResolver(base string, client *http.Client) *HTTPResolver {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPResolver{base: strings.TrimRight(base, "/"), client: client}
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
}

func (r *HTTPResolver) Lookup(ctx context.Context, ip string) (Location, error) {
	u := r.base + "/json/" + url.PathEscape(ip) + "?fields=status,message,countryCode,city"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Location{}, fmt.Errorf("geo request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo lookup: status %d", resp.StatusCode)
	}
	var out ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Location{}, fmt.Errorf("geo decode: %w", err)
	}
	if out.Status != "success" {
		return Location{}, fmt.Errorf("geo lookup: %s", out.Message)
	}
	return Location{Country: strings.ToUpper(out.CountryCode), City: out.City}, nil
}

// CachedResolver keeps lookups in redis. Cache failures fall through to next.
type CachedResolver struct {
	next Resolver
	rdb  redis.UniversalClient
	ttl  time.Duration
	log  *zap.Logger
}

func NewCachedResolver(next Resolver, rdb redis.UniversalClient, ttl time.Duration, log *zap.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedResolver{next: next, rdb: rdb, ttl: ttl, log: log.With(zap.String("component", "geo-cache"))}
}

func cacheKey(ip string) string { return "geo:" + ip }

func (c *CachedResolver) Lookup(ctx context.Context, ip string) (Location, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(ip)).Bytes()
	switch {
	case err == nil:
		var loc Location
		if jerr := json.Unmarshal(raw, &loc); jerr == nil {
			return loc, nil
		}
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache get failed", zap.Error(err))
	}

	loc, err := c.next.Lookup(ctx, ip)
	if err != nil {
		return Location{}, err
	}
	if b, jerr := json.Marshal(loc); jerr == nil {
		if serr := c.rdb.Set(ctx, cacheKey(ip), b, c.ttl).Err(); serr != nil {
			c.log.Warn("cache set failed", zap.Error(serr))
		}
	}
	return loc, nil
}

// Public reports whether ip is a routable unicast address worth resolving.
func Public(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsGlobalUnicast() && !addr.IsPrivate()
}

// BestEffort resolves ip within timeout and swallows every failure.
func BestEffort(ctx context.Context, r Resolver, ip string, timeout time.Duration, log *zap.Logger) Location {
	if r == nil || !Public(ip) {
		return Location{}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	loc, err := r.Lookup(ctx, ip)
	if err != nil {
		log.Debug("geo lookup skipped", zap.String("ip", ip), zap.Error(err))
		return Location{}
	}
	return loc
}

// New assembles the resolver chain described by cfg.
func New(cfg Config, log *zap.Logger) (Resolver, func() error) {
	if !cfg.Enabled || cfg.BaseURL == "" {
		return Noop{}, func() error { return nil }
	}
	var r Resolver = NewHTTPResolver(cfg.BaseURL, nil)
	if cfg.RedisAddr == "" {
		return r, func() error { return nil }
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return NewCachedResolver(r, rdb, cfg.CacheTTL, log), rdb.Close
}
