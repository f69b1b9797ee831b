package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"keygate/internal/auth"
	"keygate/internal/config"
	"keygate/internal/observability/metrics"
	"keygate/internal/repository"
	"keygate/internal/service"
	"keygate/internal/store"
	transportGRPC "keygate/internal/transport/grpc"
	transportHTTP "keygate/internal/transport/http"
	transportNATS "keygate/internal/transport/nats"
	"keygate/internal/worker"
)

// Bootstrap initialises all dependencies from cfg and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	var cleanupFns []func()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanupFns = append(cleanupFns, func() { _ = st.Close() })

	metrics.MustRegister(prometheus.DefaultRegisterer)

	repo := repository.NewLedgerRepo(st, repository.Options{
		Timeout: cfg.StorageTimeout,
		Retries: uint64(cfg.CommitRetries),
	})

	// ── Bus ────────────────────────────────────────────────────────────────────
	var bus repository.MessageBus = repository.NopBus{}
	var nc *nats.Conn
	if cfg.BusProvider == "nats" {
		nc, err = connectNats(cfg.NatsAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), fmt.Errorf("connect nats: %w", err)
		}
		cleanupFns = append(cleanupFns, nc.Close)
		bus = transportNATS.NewBus(nc)
	}

	svc := service.New(repo, bus,
		auth.NewBcryptPasswordHasher(cfg.BcryptCost),
		auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL),
	)

	var servers []Server
	var usage service.UsageRecorder = service.DirectUsage{Svc: svc}
	if nc != nil {
		usage = service.BusUsage{Bus: bus}
		servers = append(servers,
			worker.NewUsageWorker(svc, nc),
			transportNATS.NewHandler(svc, usage, nc),
		)
	}

	// ── State ──────────────────────────────────────────────────────────────────
	if err := svc.SeedAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return nil, runCleanup(cleanupFns), fmt.Errorf("seed admin: %w", err)
	}
	n, err := svc.RebuildIndex(ctx)
	if err != nil {
		return nil, runCleanup(cleanupFns), fmt.Errorf("build key index: %w", err)
	}
	slog.Info("key index loaded", "keys", n)

	sched, err := worker.NewScheduler(svc, cfg.UsageRetention, cfg.ReindexInterval)
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	servers = append(servers, sched)

	// ── Transports ─────────────────────────────────────────────────────────────
	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, svc, usage, cfg.TrustedProxies))
		slog.Info("HTTP API enabled", "addr", addr)
	} else {
		slog.Info(apiErr.Error())
	}
	if addr, grpcErr := cfg.GRPCAddr(); grpcErr == nil {
		servers = append(servers, transportGRPC.NewServer(addr, svc, usage))
		slog.Info("gRPC verification server enabled", "addr", addr)
	} else {
		slog.Info(grpcErr.Error())
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreProvider {
	case "memory":
		slog.Warn("using in-memory store, state is lost on restart")
		return store.NewMemory(), nil
	case "redis":
		rdb, err := connectRedis(ctx, cfg.RedisAddr())
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return store.NewRedis(rdb, cfg.RedisNamespace), nil
	case "postgres":
		if err := store.RunMigrations(ctx, cfg.DSN(), "up"); err != nil {
			return nil, err
		}
		db, err := connectPostgres(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store.NewPostgres(db), nil
	default:
		return nil, fmt.Errorf("unknown store provider %q", cfg.StoreProvider)
	}
}

// OpenService builds a service over the configured store without any bus or
// server, for one-shot administrative commands.
func OpenService(ctx context.Context, cfg *config.Config) (*service.Service, func(), error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewLedgerRepo(st, repository.Options{
		Timeout: cfg.StorageTimeout,
		Retries: uint64(cfg.CommitRetries),
	})
	svc := service.New(repo, nil,
		auth.NewBcryptPasswordHasher(cfg.BcryptCost),
		auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL),
	)
	cleanup := func() { _ = st.Close() }
	if _, err := svc.RebuildIndex(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
