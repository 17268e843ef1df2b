package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/internal/commission"
	"github.com/davidkaranja/fundilink-backend/internal/earnings"
	"github.com/davidkaranja/fundilink-backend/internal/escrow"
	"github.com/davidkaranja/fundilink-backend/internal/wallet"
	"github.com/davidkaranja/fundilink-backend/internal/withdrawals"
	pkgAuth "github.com/davidkaranja/fundilink-backend/pkg/auth"
	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubWalletService struct {
	wallet.Service
}

func (stubWalletService) GetOrCreateWallet(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return &models.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: enums.CurrencyKES,
		Status:   enums.WalletStatusActive,
	}, nil
}

type stubEarningsService struct {
	earnings.Service
}

type stubEscrowService struct {
	escrow.Service
}

type stubWithdrawalsService struct {
	withdrawals.Service
}

type stubCommissionService struct {
	commission.Service
}

func (stubCommissionService) Current(context.Context) (*commission.Schedule, error) {
	return &commission.Schedule{Version: 1, DefaultRate: decimal.RequireFromString("0.1")}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(Deps{
		Config:      cfg,
		Logger:      logg,
		DB:          stubPinger{},
		Wallets:     stubWalletService{},
		Earnings:    stubEarningsService{},
		Escrow:      stubEscrowService{},
		Withdrawals: stubWithdrawalsService{},
		Commission:  stubCommissionService{},
	})
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPrivateGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestPrivateGroupSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleProvider))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for wallet fetch got %d", resp.Code)
	}
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	nonAdmin := httptest.NewRequest(http.MethodGet, "/api/v1/admin/commission", nil)
	nonAdmin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleProvider))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, nonAdmin)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, "/api/v1/admin/commission", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.RoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
