package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtoyanMikhail/authgate/internal/auth"
	"github.com/AtoyanMikhail/authgate/internal/cache"
	"github.com/AtoyanMikhail/authgate/internal/cleanup"
	"github.com/AtoyanMikhail/authgate/internal/config"
	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/metrics"
	"github.com/AtoyanMikhail/authgate/internal/repository"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
	"github.com/AtoyanMikhail/authgate/internal/server"
	"github.com/AtoyanMikhail/authgate/internal/token"
	"github.com/prometheus/client_golang/prometheus"
)

const rotationLockTTL = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err.Error())
	}

	logger.Initialize(logger.ParseLevel(cfg.Log.Level))
	l := logger.Global()
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, users, err := openStorage(ctx, cfg, l)
	if err != nil {
		l.Fatal("Failed to open storage", logger.Error(err))
	}
	defer records.Close()

	blacklistCache, err := openBlacklistCache(cfg, l)
	if err != nil {
		l.Fatal("Failed to open blacklist cache", logger.Error(err))
	}
	defer blacklistCache.Close()

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  []byte(cfg.JWT.AccessSecret),
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTokenTTL.Std(),
		RefreshTTL:    cfg.JWT.RefreshTokenTTL.Std(),
	})
	if err != nil {
		l.Fatal("Invalid token configuration", logger.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	issuer := auth.NewIssuer(tokens, records, time.Now, l)
	blacklist := auth.NewBlacklist(cache.NewTokenBlacklist(blacklistCache, l, time.Now), tokens, l)
	locks := cache.NewLocker(blacklistCache, rotationLockTTL, l)
	rotator := auth.NewRotator(records, users, issuer, locks, m, l)
	gate := auth.NewGate(auth.GateConfig{EnforceFingerprint: cfg.JWT.EnforceFingerprint}, tokens, blacklist, records, rotator, m, l)

	srv, err := server.New(cfg, server.Deps{
		Service:  auth.NewService(users, auth.NewArgon2Hasher(), issuer, rotator, tokens, l),
		Revoker:  auth.NewRevoker(tokens, records, blacklist, l),
		Verifier: gate,
		Pingers: map[string]server.Pinger{
			"storage": records,
			"cache":   blacklistCache,
		},
		Gatherer: prometheus.DefaultGatherer,
	}, l)
	if err != nil {
		l.Fatal("Failed to build server", logger.Error(err))
	}

	runner := cleanup.New(records, cfg.Cleanup, m, time.Now, l)
	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error("Cleanup runner stopped", logger.Error(err))
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		l.Info("Starting server", logger.String("addr", cfg.Server.Addr()))
		serverErr <- srv.Run()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			l.Fatal("Server failed", logger.Error(err))
		}
		return
	case <-ctx.Done():
	}

	l.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("Graceful shutdown failed", logger.Error(err))
	}
}

func openStorage(ctx context.Context, cfg *config.Config, l logger.Logger) (models.RefreshTokenRepository, models.UserRepository, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		l.Warn("Using in-memory storage, sessions do not survive a restart")
		store := repository.NewMemoryStore(time.Now)
		return store.RefreshTokens(), store.Users(), nil
	}

	db, err := repository.OpenPostgres(ctx, cfg.Database, l)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repository.NewRefreshTokenRepository(db, l), repository.NewUserRepository(db, l), nil
}

func openBlacklistCache(cfg *config.Config, l logger.Logger) (cache.Cache, error) {
	if cfg.Blacklist.Backend == config.BlacklistBackendMemory {
		l.Warn("Using in-memory token blacklist, revocations do not survive a restart")
		return cache.NewMemoryCache(time.Now), nil
	}
	return cache.NewRedisCache(cfg.Redis, l)
}
