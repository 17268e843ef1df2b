package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/davidkaranja/fundilink-backend/internal/bookingevents"
	"github.com/davidkaranja/fundilink-backend/internal/withdrawals"
	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/db"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/pubsub"
	"github.com/davidkaranja/fundilink-backend/pkg/redis"
)

// ServiceParams wires the worker process dependencies.
type ServiceParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              *db.Client
	Redis           *redis.Client
	PubSub          *pubsub.Client
	BookingConsumer *bookingevents.Consumer
	Settler         *withdrawals.Settler
	MetricsRegistry *prometheus.Registry
}

// Service runs the background side of the payment engine: the booking events
// consumer that resolves escrow holds and the settler that drains approved
// withdrawals, plus a metrics endpoint for both.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *db.Client
	redis    *redis.Client
	pubsub   *pubsub.Client
	consumer *bookingevents.Consumer
	settler  *withdrawals.Settler
	registry *prometheus.Registry
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.BookingConsumer == nil {
		return nil, errors.New("booking events consumer is required")
	}
	if params.Settler == nil {
		return nil, errors.New("withdrawal settler is required")
	}

	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		pubsub:   params.PubSub,
		consumer: params.BookingConsumer,
		settler:  params.Settler,
		registry: params.MetricsRegistry,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until the context is canceled or one of the loops fails. Both
// loops are torn down before it returns.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsServer := s.startMetricsServer(runCtx)

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.consumer.Run(runCtx, s.pubsub.BookingEventsSubscription())
	}()
	go func() {
		errCh <- s.settler.Run(runCtx)
	}()

	var runErr error
	select {
	case <-runCtx.Done():
		runErr = runCtx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(runCtx, "worker loop stopped unexpectedly", err)
			runErr = err
		}
	}

	cancel()
	// Drain the second loop so its goroutine finishes before shutdown.
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		runErr = multierr.Append(runErr, err)
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			runErr = multierr.Append(runErr, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	return runErr
}

func (s *Service) startMetricsServer(ctx context.Context) *http.Server {
	if s.registry == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    ":" + s.cfg.Metrics.Port,
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()
	return server
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
