package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/library-system/auth-service/internal/api/http"
	"github.com/library-system/auth-service/internal/api/http/handlers"
	"github.com/library-system/auth-service/internal/auth"
	"github.com/library-system/auth-service/internal/config"
	"github.com/library-system/auth-service/internal/events"
	"github.com/library-system/auth-service/internal/observability"
	"github.com/library-system/auth-service/internal/persistence"
	"github.com/library-system/auth-service/internal/repository"
	"github.com/library-system/auth-service/internal/service"
	"github.com/library-system/auth-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics("library_auth")
	readiness := map[string]handlers.Pinger{}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.Enabled() {
		readiness["postgres"] = pg
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, persistence.DefaultMigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
	}

	var members repository.MemberRepository
	if pg.Enabled() {
		members = repository.NewMemberRepository(pg.Pool)
	} else {
		members = repository.NewMemoryMemberRepository()
	}

	var store repository.RefreshStore
	switch cfg.Auth.RefreshStore {
	case config.RefreshStoreRedis:
		rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		readiness["redis"] = rdb
		store = repository.NewRedisRefreshStore(rdb.Client, cfg.Redis.KeyPrefix)
	case config.RefreshStorePostgres:
		store = repository.NewPostgresRefreshStore(pg.Pool)
	default:
		logger.Warn("using in-memory refresh store; sessions do not survive restarts")
		store = repository.NewMemoryRefreshStore(nil)
	}

	signer, err := auth.NewSigner(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		logger.Fatal("failed to init signer", zap.Error(err))
	}
	issuer, err := auth.NewIssuer(signer, auth.IssuerConfig{
		Issuer:          cfg.Auth.Issuer,
		AccessDuration:  cfg.Auth.AccessDuration(),
		RefreshDuration: cfg.Auth.RefreshDuration(),
	}, nil)
	if err != nil {
		logger.Fatal("failed to init token issuer", zap.Error(err))
	}
	verifier := auth.NewVerifier(signer, members)
	hasher, err := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Fatal("failed to init password hasher", zap.Error(err))
	}

	memberService := service.NewMemberService(members, hasher, logger)
	if err := memberService.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminUsername, cfg.Auth.BootstrapAdminPassword); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	sessionService, err := service.NewSessionService(service.SessionDependencies{
		Members:  members,
		Hasher:   hasher,
		Issuer:   issuer,
		Verifier: verifier,
		Store:    store,
		Events:   dispatcher,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to init session service", zap.Error(err))
	}
	authMiddleware := auth.NewMiddleware(verifier, sessionService, logger, metrics)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		ProtectedPrefix: cfg.Auth.ProtectedPrefix,
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Auth:            handlers.NewAuthHandler(sessionService),
		Me:              handlers.NewMeHandler(),
		Admin:           handlers.NewAdminHandler(sessionService),
		AuthMiddleware:  authMiddleware,
		Metrics:         metrics.Handler(),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("refresh_store", cfg.Auth.RefreshStore))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
