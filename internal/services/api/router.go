package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/agent"
	"github.com/growsome/trafficlens/internal/auth"
	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/campaign"
	"github.com/growsome/trafficlens/internal/domain/notification"
	"github.com/growsome/trafficlens/internal/domain/site"
	"github.com/growsome/trafficlens/internal/domain/stats"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
	"github.com/growsome/trafficlens/internal/obs"
	"github.com/growsome/trafficlens/internal/push"
	"github.com/growsome/trafficlens/internal/services/api/campaigns"
	"github.com/growsome/trafficlens/internal/services/api/httpx"
	"github.com/growsome/trafficlens/internal/services/api/sites"
	"github.com/growsome/trafficlens/internal/services/api/subscribers"
	"github.com/growsome/trafficlens/internal/services/api/tracking"
	"github.com/growsome/trafficlens/internal/services/delivery"
)

type Repos struct {
	Domains       site.Repo
	Subscribers   subscriber.Repo
	Campaigns     campaign.Repo
	Notifications notification.Repo
	Stats         stats.Repo
	Tx            domain.Transactor
}

type Options struct {
	Log         *zap.Logger
	Verifier    *auth.Verifier
	Sender      push.Sender
	KeyGen      site.KeyGenerator
	Geo         subscribers.GeoConfig
	Delivery    delivery.Config
	Tracking    tracking.Config
	PublicRate  limiter.Rate
	CORSOrigins []string
	Health      func(context.Context) error
	Clock       func() time.Time
}

// NewHandler wires every usecase over repos and returns the instrumented router.
func NewHandler(repos Repos, opt Options) http.Handler {
	log := opt.Log
	if opt.KeyGen == nil {
		opt.KeyGen = push.GenerateKeyPair
	}
	if opt.Health == nil {
		opt.Health = func(context.Context) error { return nil }
	}
	if opt.PublicRate.Period == 0 {
		opt.PublicRate = limiter.Rate{Period: time.Minute, Limit: 600}
	}
	if len(opt.CORSOrigins) == 0 {
		opt.CORSOrigins = []string{"*"}
	}

	dispatcher := delivery.NewDispatcher(obs.Component(log, "delivery"), delivery.Repos{
		Campaigns:     repos.Campaigns,
		Domains:       repos.Domains,
		Subscribers:   repos.Subscribers,
		Notifications: repos.Notifications,
	}, opt.Sender, opt.Delivery, opt.Clock)

	sitesCtl := sites.NewController(log, sites.New(repos.Domains, opt.KeyGen))
	subsCtl := subscribers.NewController(log, subscribers.New(
		obs.Component(log, "subscribers"), repos.Subscribers, repos.Domains, repos.Stats, repos.Tx, opt.Geo, opt.Clock))
	campCtl := campaigns.NewController(log, campaigns.New(repos.Campaigns, repos.Domains, dispatcher, opt.Clock))
	trackCtl := tracking.NewController(log, tracking.New(
		obs.Component(log, "tracking"), repos.Notifications, repos.Subscribers, repos.Stats, repos.Tx, opt.Tracking, opt.Clock))

	public := httpx.RateLimit(limiter.New(memory.NewStore(), opt.PublicRate), log)
	owner := httpx.RequireOwner(opt.Verifier)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpx.Observe(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opt.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", obs.HealthHandler(opt.Health))
	r.Handle("/metrics", obs.MetricsHandler())
	r.With(public).Get("/sw.js", agent.Handler(opt.Tracking.PublicBaseURL).ServeHTTP)

	r.Route("/subscribers", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(public)
			subsCtl.PublicRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(owner)
			subsCtl.OwnerRoutes(r)
		})
	})
	r.Route("/notifications", func(r chi.Router) {
		r.Use(public)
		trackCtl.BeaconRoutes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(owner)
		r.Route("/domains", sitesCtl.Routes)
		r.Route("/campaigns", campCtl.Routes)
		r.Route("/analytics", trackCtl.AnalyticsRoutes)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusNotFound, httpx.CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, httpx.CodeInvalidInput, "method not allowed")
	})

	return otelhttp.NewHandler(r, "trafficlens-api")
}
