package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fx-rate-cache/internal/adapter/consumer"
	httpRouter "fx-rate-cache/internal/adapter/http"
	"fx-rate-cache/internal/adapter/notify"
	"fx-rate-cache/internal/domain/ports"
	"fx-rate-cache/internal/service"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, invalidation subscriber and rate event consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath, os.Stdout, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, log := a.cfg, a.log
	log.Info("Starting fx rate cache")

	var (
		publisher ports.InvalidationPublisher
		notifier  *notify.RedisNotifier
	)
	if cfg.Redis.Addr != "" {
		notifier, err = notify.NewRedisNotifier(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel, log.With("component", "redis"))
		if err != nil {
			return err
		}
		defer notifier.Close()
		publisher = notifier
	}

	rateService := service.NewRateService(a.engine, publisher, log, a.metrics)

	handler := httpRouter.NewHandler(rateService, log)
	router := httpRouter.NewRouter(handler, log, a.metrics, prometheus.DefaultGatherer, a.source)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if cfg.Cache.WarmOnStart {
		g.Go(func() error {
			// Requests arriving meanwhile wait on the same population.
			if err := rateService.Warm(gctx); err != nil {
				log.Error("Failed to warm cache, it will load on first request", "error", err)
			}
			return nil
		})
	}

	if notifier != nil {
		g.Go(func() error {
			return notifier.Subscribe(gctx, rateService.ApplyRemoteInvalidation)
		})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		events := consumer.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, rateService, log.With("component", "kafka"))
		g.Go(func() error {
			return events.Run(gctx)
		})
	}

	err = g.Wait()
	log.Info("Server exited")
	return err
}
