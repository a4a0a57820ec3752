package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/realtime-backplane/internal/api"
	"github.com/fathima-sithara/realtime-backplane/internal/backplane"
	"github.com/fathima-sithara/realtime-backplane/internal/bus"
	"github.com/fathima-sithara/realtime-backplane/internal/config"
	"github.com/fathima-sithara/realtime-backplane/internal/events"
	"github.com/fathima-sithara/realtime-backplane/internal/presence"
	"github.com/fathima-sithara/realtime-backplane/internal/subject"
	"github.com/fathima-sithara/realtime-backplane/internal/utils"
	"github.com/fathima-sithara/realtime-backplane/internal/ws"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := utils.NewLogger(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := zl.Sugar()

	var b bus.Bus
	switch cfg.Bus.Kind {
	case "memory":
		b = bus.NewMemoryBus()
	default:
		b, err = bus.ConnectNATS(cfg.Bus.URL)
		if err != nil {
			logger.Fatalw("bus connect", "url", cfg.Bus.URL, "error", err)
		}
	}

	coord, err := backplane.New(b, subject.New(cfg.App.HubName), logger, backplane.Options{
		AckTimeout:    cfg.AckTimeout,
		ReconnectWait: cfg.ReconnectWait,
		ReconnectPoll: cfg.ReconnectPoll,
	})
	if err != nil {
		logger.Fatalw("backplane init", "error", err)
	}
	logger.Infow("backplane ready", "server", coord.ServerName(), "hub", cfg.App.HubName)

	var pres *presence.Store
	if cfg.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Pass,
			DB:       cfg.Redis.DB,
		})
		pres = presence.NewStore(rc, cfg.Redis.Prefix)
	}

	var prod *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		prod = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicClientEvent)
		defer func() { _ = prod.Close() }()
	}

	wsHandler := ws.NewHandler(coord, pres, prod, cfg.JWT.Secret,
		cfg.PingInterval, cfg.WriteDeadline, cfg.WS.MaxMessageSizeBytes, logger)
	app := api.NewServer(wsHandler, pres)

	errs := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		logger.Infow("starting realtime backplane service", "addr", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		logger.Fatalw("server error", "error", e)
	case s := <-sig:
		logger.Infow("signal received", "signal", s.String())
	}

	if err := app.Shutdown(); err != nil {
		logger.Warnw("fiber shutdown", "error", err)
	}
	if err := coord.Close(); err != nil {
		logger.Warnw("backplane shutdown", "error", err)
	}
	logger.Info("shutting down")
}
