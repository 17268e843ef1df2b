package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/davidkaranja/fundilink-backend/internal/bookingevents"
	"github.com/davidkaranja/fundilink-backend/internal/commission"
	"github.com/davidkaranja/fundilink-backend/internal/escrow"
	"github.com/davidkaranja/fundilink-backend/internal/gateway"
	"github.com/davidkaranja/fundilink-backend/internal/wallet"
	"github.com/davidkaranja/fundilink-backend/internal/withdrawals"
	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/db"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	"github.com/davidkaranja/fundilink-backend/pkg/instance"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/metrics"
	"github.com/davidkaranja/fundilink-backend/pkg/pubsub"
	"github.com/davidkaranja/fundilink-backend/pkg/redis"
	"github.com/davidkaranja/fundilink-backend/pkg/square"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	gateways, err := buildGateways(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to build payment gateways", err)
		os.Exit(1)
	}

	currency, err := enums.ParseCurrency(cfg.Wallet.DefaultCurrency)
	if err != nil {
		logg.Error(ctx, "invalid default wallet currency", err)
		os.Exit(1)
	}

	walletSvc, err := wallet.NewService(wallet.ServiceParams{
		Repo:            wallet.NewRepository(dbClient.DB()),
		Tx:              dbClient,
		Logger:          logg,
		DefaultCurrency: currency,
	})
	if err != nil {
		logg.Error(ctx, "failed to create wallet service", err)
		os.Exit(1)
	}

	commissionSvc, err := commission.NewService(commission.ServiceParams{
		Repo:   commission.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create commission service", err)
		os.Exit(1)
	}

	escrowSvc, err := escrow.NewService(escrow.ServiceParams{
		Repo:       escrow.NewRepository(dbClient.DB()),
		Wallets:    walletSvc,
		Commission: commissionSvc,
		Gateways:   gateways,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create escrow service", err)
		os.Exit(1)
	}

	consumer, err := bookingevents.NewConsumer(bookingevents.ConsumerParams{
		Escrow:   escrowSvc,
		Claimer:  redisClient,
		ClaimTTL: cfg.Eventing.ConsumerIdempotencyTTL,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create booking events consumer", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	settler, err := withdrawals.NewSettler(withdrawals.SettlerParams{
		Repo:     withdrawals.NewRepository(dbClient.DB()),
		Wallets:  walletSvc,
		Gateways: gateways,
		Config:   cfg.Withdrawals,
		Gateway:  cfg.Gateway,
		Metrics:  metrics.NewCronJobMetrics(registry),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create withdrawal settler", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:          cfg,
		Logger:          logg,
		DB:              dbClient,
		Redis:           redisClient,
		PubSub:          pubsubClient,
		BookingConsumer: consumer,
		Settler:         settler,
		MetricsRegistry: registry,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !isShutdown(err) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "worker shut down gracefully")
}

// buildGateways assembles the external rails the escrow flow and the payout
// settler call into.
func buildGateways(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*gateway.Registry, error) {
	squareClient, err := square.NewClient(ctx, cfg.Gateway.Square, logg)
	if err != nil {
		return nil, err
	}
	cardGw, err := gateway.NewCardGateway(squareClient, cfg.Gateway.CallTimeout, logg)
	if err != nil {
		return nil, err
	}
	momoGw, err := gateway.NewMobileMoneyGateway(cfg.Gateway.MobileMoney, cfg.Gateway.CallTimeout, logg)
	if err != nil {
		return nil, err
	}
	bankGw, err := gateway.NewBankTransferGateway(cfg.Gateway.BankTransfer, cfg.Gateway.CallTimeout, logg)
	if err != nil {
		return nil, err
	}

	registry := gateway.NewRegistry().
		RegisterPayment(enums.PaymentMethodCard, cardGw).
		RegisterPayment(enums.PaymentMethodMobileMoney, momoGw).
		RegisterPayment(enums.PaymentMethodBankTransfer, bankGw).
		RegisterPayout(enums.WithdrawalMethodMobileMoney, momoGw).
		RegisterPayout(enums.WithdrawalMethodBankTransfer, bankGw)
	return registry, nil
}
