package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/hostbridge/hostbridge/internal/channels/krossbooking"
	"github.com/hostbridge/hostbridge/internal/channels/smoobu"
	"github.com/hostbridge/hostbridge/internal/config"
	"github.com/hostbridge/hostbridge/internal/conversation"
	"github.com/hostbridge/hostbridge/internal/db"
	"github.com/hostbridge/hostbridge/internal/dedup"
	"github.com/hostbridge/hostbridge/internal/handlers"
	"github.com/hostbridge/hostbridge/internal/hosts"
	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/ingest/parsers"
	"github.com/hostbridge/hostbridge/internal/logger"
	"github.com/hostbridge/hostbridge/internal/mailbox"
	imapadapter "github.com/hostbridge/hostbridge/internal/mailbox/adapters/imap"
	mailgunadapter "github.com/hostbridge/hostbridge/internal/mailbox/adapters/mailgun"
	"github.com/hostbridge/hostbridge/internal/poller"
	"github.com/hostbridge/hostbridge/internal/reservation"
	"github.com/hostbridge/hostbridge/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideReservationStore,
			provideConversationStore,
			provideSeenStore,
			provideChain,
			provideDispatcher,
			provideMailboxRegistry,
			provideMailboxManager,
			provideAuthHandler,
			reservation.NewReconciler,
			provideRouter,
			hosts.NewService,
			smoobu.NewAdapter,
			poller.NewManager,
			handlers.NewPingHandler,
			provideWebhookHandler,
			handlers.NewAdminHandler,
			provideServer,
		),
		fx.Invoke(
			startPollers,
			startMailboxes,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
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
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideReservationStore(pool *pgxpool.Pool) reservation.Store {
	return reservation.NewPGStore(pool)
}

func provideConversationStore(pool *pgxpool.Pool) conversation.Store {
	return conversation.NewPGStore(pool)
}

func provideSeenStore(lc fx.Lifecycle, cfg config.Config) dedup.SeenStore {
	if cfg.Redis.Disabled {
		return dedup.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return client.Close() }})
	return dedup.NewRedisStore(client)
}

func provideChain(log *slog.Logger) *ingest.Chain {
	return ingest.NewChain(log, parsers.Default(nil))
}

func provideRouter(log *slog.Logger, cfg config.Config, reservations reservation.Store, store conversation.Store) *conversation.Router {
	return conversation.NewRouter(log, reservations, store, cfg.Ingest.HistoryWindow)
}

func provideDispatcher(log *slog.Logger, chain *ingest.Chain, reconciler *reservation.Reconciler, router *conversation.Router, seen dedup.SeenStore) *ingest.Dispatcher {
	onEligible := func(ctx context.Context, convCtx *conversation.Context, msg conversation.GuestMessage) error {
		// Reply generation lives downstream; the assembled context is
		// the hand-off point.
		log.Info("auto-reply context assembled",
			slog.String("host_id", convCtx.HostID.String()),
			slog.String("client_id", convCtx.ClientID.String()),
			slog.String("property", convCtx.PropertyName),
			slog.Int("history_turns", len(convCtx.History)))
		return nil
	}
	return ingest.NewDispatcher(log, chain, reconciler, router, seen, onEligible)
}

func provideMailboxRegistry(log *slog.Logger) *mailbox.Registry {
	registry := mailbox.NewRegistry()
	registry.Register(imapadapter.New(log))
	registry.Register(mailgunadapter.New(log))
	return registry
}

func provideMailboxManager(log *slog.Logger, registry *mailbox.Registry, dispatcher *ingest.Dispatcher) *mailbox.Manager {
	handler := func(ctx context.Context, ch hosts.Channel, raw []byte) error {
		return dispatcher.HandleEmail(ctx, ch.HostID, raw)
	}
	return mailbox.NewManager(log, registry, handler)
}

func provideAuthHandler(log *slog.Logger, cfg config.Config) (*handlers.AuthHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse jwt_expires_in: %w", err)
	}
	return handlers.NewAuthHandler(log, cfg.Auth.JWTSecret, cfg.Auth.OperatorKey, expiresIn), nil
}

func provideWebhookHandler(log *slog.Logger, hostsSvc *hosts.Service, adapter *smoobu.Adapter, dispatcher *ingest.Dispatcher, registry *mailbox.Registry) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, hostsSvc, adapter, dispatcher, registry)
}

func provideServer(cfg config.Config, pingHandler *handlers.PingHandler, authHandler *handlers.AuthHandler, webhookHandler *handlers.WebhookHandler, adminHandler *handlers.AdminHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, cfg.Auth.JWTSecret, pingHandler, authHandler, webhookHandler, adminHandler)
}

func startPollers(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, hostsSvc *hosts.Service, dispatcher *ingest.Dispatcher, manager *poller.Manager) {
	interval := time.Duration(cfg.Polling.IntervalSeconds) * time.Second
	retryCap := time.Duration(cfg.Polling.RetryCapSeconds) * time.Second
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			channels, err := hostsSvc.ListActiveChannels(ctx, hosts.ChannelKrossbooking)
			if err != nil {
				return fmt.Errorf("list krossbooking channels: %w", err)
			}
			for _, ch := range channels {
				creds, err := hosts.Credentials[krossbooking.Credentials](ch)
				if err != nil {
					log.Error("krossbooking channel skipped",
						slog.String("channel_id", ch.ID.String()),
						slog.Any("error", err))
					continue
				}
				cycle := poller.KrossbookingCycle(log, krossbooking.NewClient(creds), dispatcher, ch.HostID)
				manager.Start(ctx, poller.NewWorker(log, ch.ID, interval, retryCap, cycle))
			}
			log.Info("polling workers started", slog.Int("count", manager.Running()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			manager.StopAll()
			return nil
		},
	})
}

func startMailboxes(lc fx.Lifecycle, log *slog.Logger, hostsSvc *hosts.Service, manager *mailbox.Manager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, channelType := range []string{hosts.ChannelIMAP, hosts.ChannelMailgun} {
				channels, err := hostsSvc.ListActiveChannels(ctx, channelType)
				if err != nil {
					return fmt.Errorf("list %s channels: %w", channelType, err)
				}
				for _, ch := range channels {
					if err := manager.Start(ctx, ch); err != nil {
						log.Error("mailbox channel failed to start",
							slog.String("channel_id", ch.ID.String()),
							slog.Any("error", err))
					}
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			manager.StopAll(ctx)
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
