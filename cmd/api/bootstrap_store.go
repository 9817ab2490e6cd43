package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/config"
	apicfg "github.com/growsome/trafficlens/internal/config/api"
	"github.com/growsome/trafficlens/internal/domain/outbox"
	"github.com/growsome/trafficlens/internal/repository/memory"
	pg "github.com/growsome/trafficlens/internal/repository/postgres"
	"github.com/growsome/trafficlens/internal/services/api"
)

type storage struct {
	repos  api.Repos
	outbox outbox.Repository
	health func(context.Context) error
	local  bool
	close  func()
}

func initStorage(ctx context.Context, cfg *apicfg.Config, logger *zap.Logger) (*storage, error) {
	if cfg.DB.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage; data is lost on restart")
		st := memory.NewStore()
		return &storage{
			repos: api.Repos{
				Domains:       st.Domains(),
				Subscribers:   st.Subscribers(),
				Campaigns:     st.Campaigns(),
				Notifications: st.Notifications(),
				Stats:         st.Stats(),
				Tx:            memory.Transactor{},
			},
			outbox: st.Outbox(),
			health: st.Ping,
			local:  true,
			close:  func() {},
		}, nil
	}

	db, err := pg.NewDB(ctx, cfg.DB.Config)
	if err != nil {
		return nil, err
	}
	return &storage{
		repos: api.Repos{
			Domains:       pg.NewDomainRepo(db),
			Subscribers:   pg.NewSubscriberRepo(db),
			Campaigns:     pg.NewCampaignRepo(db),
			Notifications: pg.NewNotificationRepo(db),
			Stats:         pg.NewStatsRepo(db),
			Tx:            pg.NewTransactor(db, logger),
		},
		outbox: pg.NewOutboxRepo(db),
		health: db.Ping,
		close:  db.Close,
	}, nil
}
