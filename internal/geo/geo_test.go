package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ipAPIServer(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/json/8.8.8.8", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPResolver_Lookup(t *testing.T) {
	var hits atomic.Int32
	srv := ipAPIServer(t, `{"status":"success","countryCode":"us","city":"Mountain View"}`, &hits)

	loc, err := NewHTTPResolver(srv.URL, srv.Client()).Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, Location{Country: "US", City: "Mountain View"}, loc)
}

func TestHTTPResolver_Failure(t *testing.T) {
	var hits atomic.Int32
	srv := ipAPIServer(t, `{"status":"fail","message":"reserved range"}`, &hits)

	_, err := NewHTTPResolver(srv.URL, srv.Client()).Lookup(context.Background(), "8.8.8.8")
	require.Error(t, err)
}

func TestPublic(t *testing.T) {
	assert.True(t, Public("8.8.8.8"))
	assert.True(t, Public("2001:4860:4860::8888"))
	assert.False(t, Public("10.0.0.1"))
	assert.False(t, Public("127.0.0.1"))
	assert.False(t, Public("::1"))
	assert.False(t, Public("not-an-ip"))
	assert.False(t, Public(""))
}

func TestBestEffort_SkipsPrivateAndSwallowsErrors(t *testing.T) {
	var hits atomic.Int32
	srv := ipAPIServer(t, `{"status":"fail","message":"nope"}`, &hits)
	r := NewHTTPResolver(srv.URL, srv.Client())

	assert.Equal(t, Location{}, BestEffort(context.Background(), r, "192.168.1.1", time.Second, zap.NewNop()))
	assert.EqualValues(t, 0, hits.Load())

	assert.Equal(t, Location{}, BestEffort(context.Background(), r, "8.8.8.8", time.Second, zap.NewNop()))
	assert.EqualValues(t, 1, hits.Load())
}

func TestCachedResolver_FallsThroughWhenRedisDown(t *testing.T) {
	var hits atomic.Int32
	srv := ipAPIServer(t, `{"status":"success","countryCode":"KR","city":"Seoul"}`, &hits)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	c := NewCachedResolver(NewHTTPResolver(srv.URL, srv.Client()), rdb, time.Minute, zap.NewNop())
	loc, err := c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "KR", loc.Country)
	assert.EqualValues(t, 1, hits.Load())
}

func TestNew_DisabledIsNoop(t *testing.T) {
	r, closeFn := New(Config{}, zap.NewNop())
	defer func() { _ = closeFn() }()
	_, ok := r.(Noop)
	assert.True(t, ok)
}
