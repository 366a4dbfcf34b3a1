package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"finlogs/backend/internal/cache"
	"finlogs/backend/internal/config"
	"finlogs/backend/internal/httpapi"
	"finlogs/backend/internal/service"
	"finlogs/backend/internal/store"
	"finlogs/backend/internal/store/memory"
	"finlogs/backend/internal/store/postgres"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg := config.Load()

	repo, closers := selectStore(cfg, logger)
	reportCache := selectCache(cfg, logger, &closers)

	svc := service.New(repo, reportCache, cfg.ReportCacheTTL, logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL)
	api := httpapi.NewServer(svc, auth, logger, cfg.AllowedOrigin, cfg.DefaultTenant)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close failed")
		}
	}
}

// selectStore prefers postgres when DATABASE_URL is set and falls back to the
// seeded in-memory store for local development.
func selectStore(cfg config.Config, logger *logrus.Logger) (store.Repository, []func() error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return memory.NewSeeded(), nil
	}

	pg, err := postgres.Open(cfg.DatabaseURL, cfg.QueryTimeout)
	if err != nil {
		logger.WithError(err).Fatal("postgres connection failed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pg.Bootstrap(ctx); err != nil {
		logger.WithError(err).Fatal("schema bootstrap failed")
	}
	logger.Info("using postgres store")
	return pg, []func() error{pg.Close}
}

// selectCache uses redis when it is reachable; otherwise reports are cached
// in process.
func selectCache(cfg config.Config, logger *logrus.Logger, closers *[]func() error) cache.ReportCache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable, using in-memory report cache")
		_ = client.Close()
		return cache.NewMemory()
	}
	*closers = append(*closers, client.Close)
	logger.Info("using redis report cache")
	return cache.NewRedis(client)
}
