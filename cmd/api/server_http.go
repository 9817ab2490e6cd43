package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/auth"
	apicfg "github.com/growsome/trafficlens/internal/config/api"
	"github.com/growsome/trafficlens/internal/geo"
	"github.com/growsome/trafficlens/internal/push"
	"github.com/growsome/trafficlens/internal/services/api"
	"github.com/growsome/trafficlens/internal/services/api/subscribers"
)

func buildHTTPServer(cfg *apicfg.Config, logger *zap.Logger, st *storage, sender push.Sender, resolver geo.Resolver) (*http.Server, error) {
	rate, err := cfg.PublicRate()
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(st.repos, api.Options{
		Log:         logger,
		Verifier:    auth.NewVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer),
		Sender:      sender,
		Geo:         subscribers.GeoConfig{Resolver: resolver, Timeout: cfg.Geo.Timeout},
		Delivery:    cfg.Delivery,
		Tracking:    cfg.Tracking,
		PublicRate:  rate,
		CORSOrigins: cfg.Server.CORSOrigins,
		Health:      st.health,
	})

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, nil
}

func serveHTTP(srv *http.Server, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}
