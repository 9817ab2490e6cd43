package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrGone marks a subscription the push service reports as expired (404/410).
var ErrGone = errors.New("push subscription gone")

type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

type VAPID struct {
	PublicKey  string
	PrivateKey string
}

type Sender interface {
	Send(ctx context.Context, sub Subscription, keys VAPID, payload []byte) error
}

type Config struct {
	Subject string        `mapstructure:"vapid_subject"`
	TTL     time.Duration `mapstructure:"ttl"`
	Urgency string        `mapstructure:"urgency"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StatusError is a non-2xx reply from a push service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service returned %d", e.Code)
	}
	return fmt.Sprintf("push service returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound || e.Code == http.StatusGone {
		return ErrGone
	}
	return nil
}

var _ Sender = (*WebPushSender)(nil)

type WebPushSender struct {
	cfg    Config
	client *http.Client
}

func NewWebPushSender(cfg Config, client *http.Client) *WebPushSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &WebPushSender{cfg: cfg, client: client}
}

// Send encrypts payload for one subscription and posts it. The call is bounded
// by the configured timeout on top of ctx.
func (s *WebPushSender) Send(ctx context.Context, sub Subscription, keys VAPID, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.cfg.Subject,
		TTL:             int(s.cfg.TTL / time.Second),
		Urgency:         webpush.Urgency(s.cfg.Urgency),
		VAPIDPublicKey:  keys.PublicKey,
		VAPIDPrivateKey: keys.PrivateKey,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
