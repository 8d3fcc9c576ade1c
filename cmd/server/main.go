package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/lifecycle"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/notify"
	"github.com/oggyb/matchmaker/internal/repository"
	"github.com/oggyb/matchmaker/internal/server"
	"github.com/oggyb/matchmaker/internal/service/suggestion"
	"github.com/oggyb/matchmaker/internal/sweeper"
	"github.com/oggyb/matchmaker/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		return err
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return err
	}

	notifier, closeNotifier, err := notify.New(cfg, redisCache)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			log.Warn("failed to close notifier", "err", err)
		}
	}()

	store := repository.NewSuggestionRepository(database)
	engine := lifecycle.NewEngine(store, repository.NewPartyRepository(database), notifier,
		lifecycle.WithLogger(logger.Named("lifecycle")),
		lifecycle.WithSecondPartyWindow(cfg.Lifecycle.SecondPartyWindow),
	)

	if cfg.IsDevelopment() {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	appCtx := app.New(cfg, database, redisCache, log, engine)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.StartGRPCServer(gctx, cfg, log, suggestion.NewRegistrar(appCtx))
	})

	g.Go(func() error {
		return serveMetrics(gctx, cfg.Metrics.Addr)
	})

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(store, engine, sweeper.Config{
			Interval:  cfg.Sweeper.Interval,
			BatchSize: cfg.Sweeper.BatchSize,
			LockTTL:   cfg.Sweeper.LockTTL,
		}, sweeper.WithLocker(redisCache))
		if err := sw.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return stopWithTimeout(sw.Stop)
		})
	}

	if cfg.Worker.AutoAdvance {
		if _, ok := notifier.(*notify.StreamNotifier); !ok {
			log.Warn("auto-advance needs the redis notifier; worker not started", "backend", cfg.Notify.Backend)
		} else {
			w := worker.New(redisCache, engine, worker.Config{
				Stream:   cfg.Notify.Stream,
				Group:    cfg.Worker.Group,
				Consumer: cfg.Worker.Consumer,
			}, logger.Named("auto-advance"))
			if err := w.Start(gctx); err != nil {
				return err
			}
			g.Go(func() error {
				<-gctx.Done()
				return stopWithTimeout(w.Stop)
			})
		}
	}

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("serving metrics", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func stopWithTimeout(stop func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return stop(ctx)
}
