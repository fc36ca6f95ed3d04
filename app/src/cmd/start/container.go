package main

import (
	"electric-ping/app/src/api/shapeproxy"
	"electric-ping/app/src/domain"
	"electric-ping/app/src/infra"
)

type application struct {
	Config     infra.Config
	Logger     *infra.Logger
	Repository domain.PingRepository
	Service    domain.RecorderService
	Proxy      *shapeproxy.Proxy
}

func newApplication(cfg infra.Config, logger *infra.Logger, repo domain.PingRepository, service domain.RecorderService, proxy *shapeproxy.Proxy) *application {
	return &application{
		Config:     cfg,
		Logger:     logger,
		Repository: repo,
		Service:    service,
		Proxy:      proxy,
	}
}
