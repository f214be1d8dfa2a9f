package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/fishannotator/reel/internal/api"
	"github.com/fishannotator/reel/internal/config"
	"github.com/fishannotator/reel/internal/decoder"
	"github.com/fishannotator/reel/internal/health"
	"github.com/fishannotator/reel/internal/logger"
	"github.com/fishannotator/reel/internal/player"
	"github.com/fishannotator/reel/internal/registry"
	"github.com/fishannotator/reel/internal/server"
	"github.com/fishannotator/reel/pkg/version"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "run the control API",
		ArgsUsage: "[video]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "override server.http_port"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.Server.HTTPPort = c.Int("port")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, c.Args().First())
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, initial string) error {
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.WithField("version", version.GetInfo().Short()).Info("Starting reel")

	p, err := newPlayer(cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	var redisClient redis.UniversalClient
	if cfg.Registry.Backend == "redis" {
		redisClient = registry.NewRedisClient(cfg.Redis)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// The registry is advisory; keep serving and let the health
			// check report it.
			log.WithError(err).Warn("Redis unreachable, session registry will retry")
		}
	}

	reg, err := registry.New(cfg.Registry, redisClient, log)
	if err != nil {
		return err
	}
	defer reg.Close()

	srv := server.New(&cfg.Server, log)
	srv.RegisterHealthChecker(health.NewDecoderChecker(cfg.Decoder))
	srv.RegisterHealthChecker(health.NewPlayerChecker(p))
	if redisClient != nil {
		srv.RegisterHealthChecker(health.NewRedisChecker(redisClient))
	}

	handlers := api.NewHandlers(p, reg, srv.ErrorHandler(), log)
	srv.RegisterRoutes(handlers.RegisterRoutes)

	reporter := registry.NewReporter(reg, p, cfg.Registry.Workstation, cfg.Registry.HeartbeatInterval,
		logger.FromLogrus(log, "registry"))
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		reporter.Run(ctx)
	}()
	// The reporter withdraws its session on the way out; let it finish
	// before the registry closes.
	defer func() { <-reporterDone }()

	if cfg.Metrics.Enabled {
		ms := server.NewMetricsServer(cfg.Metrics, cfg.Server.ListenAddr)
		go func() {
			log.WithField("addr", ms.Addr).Info("Starting metrics server")
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Metrics server error")
			}
		}()
		defer ms.Close()
	}

	if initial != "" {
		go func() {
			lctx, cancel := context.WithTimeout(ctx, cfg.Decoder.ProbeTimeout)
			defer cancel()
			if err := p.Load(lctx, initial); err != nil {
				log.WithError(err).WithField("path", initial).Error("Initial load failed")
			}
		}()
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	log.Info("Shutdown complete")
	return nil
}

func newPlayer(cfg *config.Config, log *logrus.Logger) (*player.Player, error) {
	return player.New(player.Options{
		Config: cfg.Player,
		Opener: decoder.NewOpener(cfg.Decoder, logger.FromLogrus(log, "decoder")),
		Logger: logger.FromLogrus(log, "player"),
	})
}
