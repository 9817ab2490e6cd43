package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/agent"
	"github.com/growsome/trafficlens/internal/auth"
	"github.com/growsome/trafficlens/internal/push"
	"github.com/growsome/trafficlens/internal/repository/memory"
	"github.com/growsome/trafficlens/internal/services/api/httpx"
	"github.com/growsome/trafficlens/internal/services/api/tracking"
)

type recordingSender struct {
	mu       sync.Mutex
	subs     []push.Subscription
	keys     []push.VAPID
	payloads []agent.Payload
}

func (s *recordingSender) Send(_ context.Context, sub push.Subscription, keys push.VAPID, payload []byte) error {
	var p agent.Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	s.keys = append(s.keys, keys)
	s.payloads = append(s.payloads, p)
	return nil
}

type envelope struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Error   *httpx.ErrorBody `json:"error"`
}

type client struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func (c *client) do(method, path string, body any) (int, envelope) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func newTestHandler(t *testing.T, sender push.Sender, rate limiter.Rate) (http.Handler, *auth.Verifier) {
	t.Helper()
	st := memory.NewStore()
	v := auth.NewVerifier([]byte("test-secret"), "trafficlens")
	h := NewHandler(Repos{
		Domains:       st.Domains(),
		Subscribers:   st.Subscribers(),
		Campaigns:     st.Campaigns(),
		Notifications: st.Notifications(),
		Stats:         st.Stats(),
		Tx:            memory.Transactor{},
	}, Options{
		Log:        zap.NewNop(),
		Verifier:   v,
		Sender:     sender,
		KeyGen:     func() (string, string, error) { return "BPUB", "PRIV", nil },
		Tracking:   tracking.Config{PublicBaseURL: "https://api.trafficlens.test/"},
		PublicRate: rate,
		Health:     st.Ping,
	})
	return h, v
}

func TestSubscribeSendClickFlow(t *testing.T) {
	sender := &recordingSender{}
	h, v := newTestHandler(t, sender, limiter.Rate{})
	token, err := v.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)
	owner := &client{t: t, handler: h, token: token}
	public := &client{t: t, handler: h}

	code, env := owner.do(http.MethodPost, "/domains", map[string]string{"domain": "example.com", "siteName": "Example"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	assert.NotContains(t, string(env.Data), "PRIV")
	dom := decode[struct {
		ID             int64  `json:"id"`
		VAPIDPublicKey string `json:"vapidPublicKey"`
	}](t, env.Data)
	assert.Equal(t, "BPUB", dom.VAPIDPublicKey)

	sub := map[string]any{
		"domainId": dom.ID,
		"endpoint": "https://fcm.googleapis.com/fcm/send/abc",
		"keys":     map[string]string{"p256dh": "k1", "auth": "a1"},
	}
	code, env = public.do(http.MethodPost, "/subscribers", sub)
	require.Equal(t, http.StatusCreated, code, env.Error)
	code, _ = public.do(http.MethodPost, "/subscribers", sub)
	require.Equal(t, http.StatusOK, code)

	code, env = owner.do(http.MethodPost, "/campaigns", map[string]any{
		"domainId": dom.ID,
		"title":    "Hello",
		"body":     "World",
		"clickUrl": "https://example.com/landing",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	camp := decode[struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}](t, env.Data)
	assert.Equal(t, "draft", camp.Status)

	sendPath := "/campaigns/" + itoa(camp.ID) + "/send"
	code, env = owner.do(http.MethodPost, sendPath, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	res := decode[map[string]int64](t, env.Data)
	assert.Equal(t, int64(1), res["targeted"])
	assert.Equal(t, int64(1), res["sent"])
	assert.Zero(t, res["failed"])

	require.Len(t, sender.payloads, 1)
	assert.Equal(t, push.Subscription{Endpoint: "https://fcm.googleapis.com/fcm/send/abc", P256dh: "k1", Auth: "a1"}, sender.subs[0])
	assert.Equal(t, push.VAPID{PublicKey: "BPUB", PrivateKey: "PRIV"}, sender.keys[0])
	p := sender.payloads[0]
	assert.Equal(t, "Hello", p.Title)
	assert.Equal(t, "https://example.com/landing", p.Data.URL)
	assert.Equal(t, camp.ID, p.Data.CampaignID)

	code, env = owner.do(http.MethodPost, sendPath, nil)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, httpx.CodeCampaignAlreadySent, env.Error.Code)
	assert.Len(t, sender.payloads, 1)

	beacon := map[string]any{"notificationId": p.Data.NotificationID, "campaignId": camp.ID, "timestamp": time.Now()}
	code, env = public.do(http.MethodPost, "/notifications/click", beacon)
	require.Equal(t, http.StatusOK, code, env.Error)
	code, _ = public.do(http.MethodPost, "/notifications/click", beacon)
	require.Equal(t, http.StatusOK, code)

	code, env = owner.do(http.MethodGet, "/subscribers/stats", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	stats := decode[struct {
		Total int64   `json:"totalSubscribers"`
		CTR   float64 `json:"clickThroughRate"`
	}](t, env.Data)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, 100.0, stats.CTR)

	code, env = owner.do(http.MethodGet, "/analytics/campaigns?periodDays=7", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	page := decode[struct {
		Items []struct {
			CampaignID int64   `json:"campaignId"`
			TotalSent  int64   `json:"totalSent"`
			ClickRate  float64 `json:"clickRate"`
		} `json:"items"`
		Pagination httpx.Pagination `json:"pagination"`
	}](t, env.Data)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(1), page.Items[0].TotalSent)
	assert.Equal(t, 100.0, page.Items[0].ClickRate)
	assert.Equal(t, 1, page.Pagination.Total)

	code, env = owner.do(http.MethodPatch, "/campaigns/"+itoa(camp.ID), map[string]string{"title": "late"})
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, httpx.CodeConflict, env.Error.Code)
}

func TestErrorEnvelopes(t *testing.T) {
	h, v := newTestHandler(t, &recordingSender{}, limiter.Rate{})
	anon := &client{t: t, handler: h}

	code, env := anon.do(http.MethodGet, "/domains", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, httpx.CodeUnauthorized, env.Error.Code)

	bad := &client{t: t, handler: h, token: "not-a-jwt"}
	code, _ = bad.do(http.MethodGet, "/campaigns", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = anon.do(http.MethodPost, "/subscribers", map[string]any{
		"domainId": 77,
		"endpoint": "https://push.example/1",
		"keys":     map[string]string{"p256dh": "k", "auth": "a"},
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, httpx.CodeDomainNotFound, env.Error.Code)

	code, env = anon.do(http.MethodPost, "/subscribers", map[string]any{"domainId": 1, "endpoint": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, httpx.CodeInvalidInput, env.Error.Code)

	code, env = anon.do(http.MethodPost, "/notifications/click", map[string]any{"campaignId": 3})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, httpx.CodeInvalidInput, env.Error.Code)

	tokA, err := v.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)
	tokB, err := v.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)
	a := &client{t: t, handler: h, token: tokA}
	b := &client{t: t, handler: h, token: tokB}
	code, env = a.do(http.MethodPost, "/domains", map[string]string{"domain": "mine.com", "siteName": "Mine"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	id := decode[struct {
		ID int64 `json:"id"`
	}](t, env.Data).ID

	code, env = b.do(http.MethodGet, "/domains/"+itoa(id), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, httpx.CodeForbidden, env.Error.Code)

	code, env = b.do(http.MethodPost, "/domains", map[string]string{"domain": "MINE.com", "siteName": "Copy"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, httpx.CodeConflict, env.Error.Code)

	code, env = a.do(http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, httpx.CodeNotFound, env.Error.Code)
}

func TestListingsRejectPagesPastLimit(t *testing.T) {
	h, v := newTestHandler(t, &recordingSender{}, limiter.Rate{})
	token, err := v.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)
	owner := &client{t: t, handler: h, token: token}

	for _, path := range []string{"/campaigns", "/subscribers", "/analytics/campaigns"} {
		code, env := owner.do(http.MethodGet, path+"?page=100000000000000000&limit=100", nil)
		assert.Equal(t, http.StatusBadRequest, code, path)
		require.NotNil(t, env.Error, path)
		assert.Equal(t, httpx.CodeInvalidInput, env.Error.Code, path)

		code, env = owner.do(http.MethodGet, path+"?page=2&limit=100", nil)
		assert.Equal(t, http.StatusOK, code, path)
		assert.True(t, env.Success, path)
	}
}

func TestSubscribeRejectsNonPushEndpoints(t *testing.T) {
	sender := &recordingSender{}
	h, v := newTestHandler(t, sender, limiter.Rate{})
	token, err := v.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)
	owner := &client{t: t, handler: h, token: token}
	public := &client{t: t, handler: h}

	code, env := owner.do(http.MethodPost, "/domains", map[string]string{"domain": "ssrf.com", "siteName": "S"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	id := decode[struct {
		ID int64 `json:"id"`
	}](t, env.Data).ID

	for _, ep := range []string{
		"http://169.254.169.254/latest/meta-data",
		"http://127.0.0.1:6379/",
		"ftp://internal/x",
		"https://192.168.1.10/push",
	} {
		code, env := public.do(http.MethodPost, "/subscribers", map[string]any{
			"domainId": id,
			"endpoint": ep,
			"keys":     map[string]string{"p256dh": "k", "auth": "a"},
		})
		assert.Equal(t, http.StatusBadRequest, code, ep)
		require.NotNil(t, env.Error, ep)
		assert.Equal(t, httpx.CodeInvalidInput, env.Error.Code, ep)
	}

	code, env = owner.do(http.MethodGet, "/subscribers?domainId="+itoa(id), nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.NotContains(t, string(env.Data), "169.254")
}

func TestPublicRateLimit(t *testing.T) {
	h, _ := newTestHandler(t, &recordingSender{}, limiter.Rate{Period: time.Minute, Limit: 2})
	anon := &client{t: t, handler: h}
	beacon := map[string]any{"notificationId": 1}

	for range 2 {
		code, _ := anon.do(http.MethodPost, "/notifications/view", beacon)
		assert.Equal(t, http.StatusNotFound, code)
	}
	code, env := anon.do(http.MethodPost, "/notifications/view", beacon)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, httpx.CodeRateLimited, env.Error.Code)
}

func TestServiceWorkerAndOps(t *testing.T) {
	h, v := newTestHandler(t, &recordingSender{}, limiter.Rate{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sw.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Service-Worker-Allowed"))
	assert.Contains(t, rec.Body.String(), `"https://api.trafficlens.test"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trafficlens_http_requests_total")

	token, err := v.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/subscribers/export", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\ufeffID,Site Name,Domain"))
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
