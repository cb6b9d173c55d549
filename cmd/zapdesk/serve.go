package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/zapdeskhq/zapdesk/internal/config"
	"github.com/zapdeskhq/zapdesk/internal/db"
	"github.com/zapdeskhq/zapdesk/internal/delivery"
	"github.com/zapdeskhq/zapdesk/internal/gateway"
	"github.com/zapdeskhq/zapdesk/internal/handlers"
	"github.com/zapdeskhq/zapdesk/internal/instance"
	"github.com/zapdeskhq/zapdesk/internal/logger"
	"github.com/zapdeskhq/zapdesk/internal/media"
	"github.com/zapdeskhq/zapdesk/internal/message"
	"github.com/zapdeskhq/zapdesk/internal/realtime"
	"github.com/zapdeskhq/zapdesk/internal/resilience"
	"github.com/zapdeskhq/zapdesk/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideGatewayClient,
			resilience.NewBreakers,
			instance.NewStore,
			provideRegistry,
			provideTranscoder,
			providePipeline,
			provideMessageStore,
			provideDeliveryService,
			provideRealtimeManager,
			handlers.NewPingHandler,
			provideMessageHandler,
			provideInstanceHandler,
			provideConnectionHandler,
			provideServer,
		),
		fx.Invoke(
			startRealtimeManager,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideGatewayClient(log *slog.Logger, cfg config.Config) *gateway.Client {
	return gateway.NewClient(log, cfg.Gateway.Timeout())
}

func provideRegistry(log *slog.Logger, store *instance.Store, client *gateway.Client) *instance.Registry {
	return instance.NewRegistry(log, store, client)
}

func provideTranscoder(log *slog.Logger, cfg config.Config) media.Transcoder {
	return media.NewFFmpegTranscoder(log, cfg.Media.FFmpegPath)
}

func providePipeline(log *slog.Logger, cfg config.Config, transcoder media.Transcoder) *media.Pipeline {
	return media.NewPipeline(log, cfg.Media, transcoder)
}

func provideMessageStore(log *slog.Logger, conn *pgxpool.Pool) *message.Store {
	return message.NewStore(log, conn)
}

func provideDeliveryService(log *slog.Logger, cfg config.Config, registry *instance.Registry, client *gateway.Client, pipeline *media.Pipeline, store *message.Store, breakers *resilience.Breakers) *delivery.Service {
	return delivery.NewService(log, cfg.Delivery, registry, client, pipeline, store, breakers)
}

func provideRealtimeManager(log *slog.Logger, cfg config.Config, registry *instance.Registry, client *gateway.Client) *realtime.Manager {
	return realtime.NewManager(log, cfg, registry, client)
}

func provideMessageHandler(log *slog.Logger, svc *delivery.Service, store *message.Store) *handlers.MessageHandler {
	return handlers.NewMessageHandler(log, svc, store)
}

func provideInstanceHandler(log *slog.Logger, registry *instance.Registry, client *gateway.Client, cfg config.Config) *handlers.InstanceHandler {
	return handlers.NewInstanceHandler(log, registry, client, cfg.Gateway)
}

func provideConnectionHandler(log *slog.Logger, manager *realtime.Manager) *handlers.ConnectionHandler {
	return handlers.NewConnectionHandler(log, manager)
}

func provideServer(log *slog.Logger, cfg config.Config, pingHandler *handlers.PingHandler, messageHandler *handlers.MessageHandler, instanceHandler *handlers.InstanceHandler, connectionHandler *handlers.ConnectionHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, pingHandler, messageHandler, instanceHandler, connectionHandler)
}

func startRealtimeManager(lc fx.Lifecycle, logger *slog.Logger, manager *realtime.Manager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := manager.RestoreConnections(ctx); err != nil {
				logger.Warn("restore connections", slog.Any("error", err))
			}
			return manager.StartReconciler(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			manager.Shutdown()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
