package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/davidkaranja/fundilink-backend/api/routes"
	"github.com/davidkaranja/fundilink-backend/internal/commission"
	"github.com/davidkaranja/fundilink-backend/internal/earnings"
	"github.com/davidkaranja/fundilink-backend/internal/escrow"
	"github.com/davidkaranja/fundilink-backend/internal/gateway"
	"github.com/davidkaranja/fundilink-backend/internal/wallet"
	"github.com/davidkaranja/fundilink-backend/internal/withdrawals"
	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/db"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/migrate"
	"github.com/davidkaranja/fundilink-backend/pkg/redis"
	"github.com/davidkaranja/fundilink-backend/pkg/square"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateways, err := buildGateways(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build payment gateways", err)
		os.Exit(1)
	}

	currency, err := enums.ParseCurrency(cfg.Wallet.DefaultCurrency)
	if err != nil {
		logg.Error(context.Background(), "invalid default wallet currency", err)
		os.Exit(1)
	}

	walletRepo := wallet.NewRepository(dbClient.DB())
	walletSvc, err := wallet.NewService(wallet.ServiceParams{
		Repo:            walletRepo,
		Tx:              dbClient,
		Logger:          logg,
		DefaultCurrency: currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	commissionSvc, err := commission.NewService(commission.ServiceParams{
		Repo:   commission.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create commission service", err)
		os.Exit(1)
	}

	earningsSvc, err := earnings.NewService(earnings.ServiceParams{
		Ledger:     walletRepo,
		Commission: commissionSvc,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create earnings service", err)
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
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	withdrawalsSvc, err := withdrawals.NewService(withdrawals.ServiceParams{
		Repo:    withdrawals.NewRepository(dbClient.DB()),
		Wallets: walletSvc,
		Config:  cfg.Withdrawals,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create withdrawals service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Wallets:     walletSvc,
			Earnings:    earningsSvc,
			Escrow:      escrowSvc,
			Withdrawals: withdrawalsSvc,
			Commission:  commissionSvc,
		}),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}
}

// buildGateways assembles the external rails. The wallet method never hits a
// gateway, so it stays out of the registry.
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
