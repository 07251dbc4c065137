package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/fleethub/internal/auth"
	"github.com/geocoder89/fleethub/internal/config"
	"github.com/geocoder89/fleethub/internal/db"
	httpx "github.com/geocoder89/fleethub/internal/http"
	"github.com/geocoder89/fleethub/internal/http/handlers"
	"github.com/geocoder89/fleethub/internal/loginguard"
	"github.com/geocoder89/fleethub/internal/observability"
	"github.com/geocoder89/fleethub/internal/repo/memory"
	"github.com/geocoder89/fleethub/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx := context.Background()

	if cfg.OTELEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, cfg.OTELServiceName, cfg.OTELEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			tctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdownTracer(tctx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	checks := map[string]handlers.PingFunc{}

	// user store
	var users httpx.UserStore

	switch cfg.StorageDriver {
	case "memory":
		log.Warn("using in-memory user store; accounts are lost on restart")
		users = memory.NewUsersRepo()
	default:
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, cfg.DatabaseURL()); err != nil {
				return err
			}
			log.Info("migrations applied")
		}

		pool, err := db.NewPool(cfg.DatabaseURL(), cfg.DBMaxConns)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		checks["db"] = pool.Ping
		users = postgres.NewUsersRepo(pool, prom)
	}

	seedCtx, cancel := config.WithTimeout(10 * time.Second)
	err = db.EnsureAdminUser(seedCtx, users, db.AdminSeed{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Name:     cfg.AdminName,
	}, log)
	cancel()
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// login guard
	guardOpts := loginguard.Options{MaxFailures: cfg.LoginMaxFailures, Window: cfg.LoginLockWindow}
	var guard loginguard.Guard

	if cfg.RedisAddr != "" {
		rdb := loginguard.Dial(loginguard.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		guard = loginguard.NewProtected(loginguard.NewRedis(rdb, guardOpts), loginguard.BreakerConfig{})
	} else {
		guard = loginguard.NewMemory(guardOpts)
	}

	tokens, err := auth.NewManager(cfg.JWTSecret)
	if err != nil {
		return err
	}

	router := httpx.NewRouter(httpx.Deps{
		Config:   cfg,
		Log:      log,
		Users:    users,
		Tokens:   tokens,
		Guard:    guard,
		Prom:     prom,
		Gatherer: reg,
		Checks:   checks,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "storage", cfg.StorageDriver)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}

	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return err
	}

	log.Info("shutdown complete")
	return nil
}
