package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/tradebot/internal/api/http"
	"github.com/spec-kit/tradebot/internal/api/http/handlers"
	"github.com/spec-kit/tradebot/internal/auth"
	"github.com/spec-kit/tradebot/internal/config"
	"github.com/spec-kit/tradebot/internal/events"
	"github.com/spec-kit/tradebot/internal/gateway"
	"github.com/spec-kit/tradebot/internal/observability"
	"github.com/spec-kit/tradebot/internal/persistence"
	"github.com/spec-kit/tradebot/internal/repository"
	"github.com/spec-kit/tradebot/internal/scheduler"
	"github.com/spec-kit/tradebot/internal/service"
	"github.com/spec-kit/tradebot/internal/worker"
)

func main() {
	envFile := pflag.String("env-file", "", "additional env file loaded before .env")
	sweepNow := pflag.Bool("sweep-now", false, "run one listing expiry sweep and exit")
	hashPassword := pflag.String("hash-password", "", "print a bcrypt hash for AUTH_ADMIN_PASSWORD_HASH and exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword, cfg.Auth.BcryptCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()
	guard := persistence.SelectGuard(redis)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	if _, err := worker.StartNotificationWorker(dispatcher, logger, metrics); err != nil {
		logger.Fatal("failed to start notification worker", zap.Error(err))
	}

	relay := gateway.NewRelay(cfg.Gateway, logger)

	reputationService := service.NewReputationService(service.ReputationDependencies{
		Repo:       st.reputation,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	listingService := service.NewListingService(service.ListingDependencies{
		Repo:       st.listings,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	registry := service.NewSessionRegistry(service.SessionDependencies{
		Gateway:    relay,
		Reputation: reputationService,
		Listings:   listingService,
		Guard:      guard,
		Dispatcher: dispatcher,
		Logger:     logger,
		Settings:   service.SettingsFromConfig(cfg),
	})
	scanner := service.NewExpiryScanner(service.ExpiryDependencies{
		Listings:   listingService,
		Gateway:    relay,
		Guard:      guard,
		Dispatcher: dispatcher,
		Logger:     logger,
		Retention:  cfg.Expiry.Retention(),
		LockTTL:    cfg.Expiry.RunLockTTL(),
	})

	if *sweepNow {
		report, err := scanner.RunOnce(ctx)
		if err != nil {
			logger.Fatal("expiry sweep failed", zap.Error(err))
		}
		logger.Info("expiry sweep complete",
			zap.Int("scanned", report.Scanned),
			zap.Int("deactivated", report.Deactivated),
			zap.Int("failed", report.Failed),
			zap.Bool("skipped", report.Skipped))
		return
	}

	sched := scheduler.New(logger)
	if err := worker.RegisterExpiryWorker(sched, scanner, cfg.Expiry.Schedule, logger); err != nil {
		logger.Fatal("failed to schedule expiry sweep", zap.Error(err))
	}
	go func() {
		_ = sched.Start(ctx)
	}()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(cfg.Auth, tokens)

	var redisPinger handlers.Pinger
	if redis.Client != nil {
		redisPinger = redis
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:     handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, st.name, st.pinger, redisPinger),
		Gateway:    handlers.NewGatewayHandler(registry, listingService),
		Reputation: handlers.NewReputationHandler(reputationService),
		Listings:   handlers.NewListingsHandler(listingService),
		Admin: handlers.NewAdminHandler(handlers.AdminDependencies{
			Reputation: reputationService,
			Sessions:   registry,
			Scanner:    scanner,
			Metrics:    metrics,
		}),
		Auth:           handlers.NewAuthHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		GatewayToken:   cfg.Auth.GatewayToken,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

type store struct {
	name       string
	pinger     handlers.Pinger
	reputation repository.ReputationRepository
	listings   repository.ListingRepository
	close      func()
}

// openStore prefers postgres when a DSN is configured and falls back to the embedded sqlite file.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		pool := pg.PoolHandle()
		return &store{
			name:       "postgres",
			pinger:     pg,
			reputation: repository.NewReputationRepository(pool),
			listings:   repository.NewListingRepository(pool),
			close:      pg.Close,
		}, nil
	}

	lite, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &store{
		name:       "sqlite",
		pinger:     lite,
		reputation: repository.NewSQLiteReputationRepository(lite.DB()),
		listings:   repository.NewSQLiteListingRepository(lite.DB()),
		close:      lite.Close,
	}, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
