package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/square"
	"github.com/davidkaranja/fundilink-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "gateway-test", Output: io.Discard})
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func momoGateway(t *testing.T, handler http.Handler) *MobileMoneyGateway {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw, err := NewMobileMoneyGateway(config.MobileMoneyConfig{
		Provider: "mpesa",
		BaseURL:  srv.URL,
		APIKey:   "test-key",
	}, 2*time.Second, testLogger())
	require.NoError(t, err)
	return gw
}

func bankGateway(t *testing.T, handler http.Handler) *BankTransferGateway {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw, err := NewBankTransferGateway(config.BankTransferConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, 2*time.Second, testLogger())
	require.NoError(t, err)
	return gw
}

func TestRegistryResolution(t *testing.T) {
	momo := momoGateway(t, http.NotFoundHandler())
	reg := NewRegistry().
		RegisterPayment(enums.PaymentMethodMobileMoney, momo).
		RegisterPayout(enums.WithdrawalMethodMobileMoney, momo)

	gw, err := reg.ForPayment(enums.PaymentMethodMobileMoney)
	require.NoError(t, err)
	assert.Same(t, Gateway(momo), gw)

	_, err = reg.ForPayment(enums.PaymentMethodCard)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = reg.ForPayout(enums.WithdrawalMethodBankTransfer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMobileMoneyInitialize(t *testing.T) {
	var got momoChargeRequest
	gw := momoGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(momoChargeResponse{
			ChargeID: "ch_123",
			Status:   "pending",
		})
	}))

	result, err := gw.Initialize(context.Background(), InitializeRequest{
		Reference:   "bkg-42-charge",
		Amount:      d("850"),
		Currency:    enums.CurrencyKES,
		PhoneNumber: "+254700000001",
		Description: "booking 42",
	})
	require.NoError(t, err)

	assert.Equal(t, "ch_123", result.GatewayReference)
	assert.Equal(t, enums.GatewayStatusPending, result.Status)
	assert.Equal(t, "bkg-42-charge", got.Reference)
	assert.Equal(t, "850.00", got.Amount)
	assert.Equal(t, "mpesa", got.Provider)
	assert.Equal(t, "+254700000001", got.PhoneNumber)
}

func TestMobileMoneyInitializeValidation(t *testing.T) {
	gw := momoGateway(t, http.NotFoundHandler())

	_, err := gw.Initialize(context.Background(), InitializeRequest{
		Reference: "r", Amount: d("10"), Currency: enums.CurrencyKES,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = gw.Initialize(context.Background(), InitializeRequest{
		Reference: "r", Amount: decimal.Zero, PhoneNumber: "+254700000001",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount))
}

func TestMobileMoneyDeclineAndErrors(t *testing.T) {
	t.Run("decline", func(t *testing.T) {
		gw := momoGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(`{"message":"insufficient mpesa balance"}`))
		}))
		_, err := gw.Initialize(context.Background(), InitializeRequest{
			Reference: "r", Amount: d("10"), Currency: enums.CurrencyKES, PhoneNumber: "+254700000001",
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayDeclined))
		assert.False(t, pkgerrors.Retryable(err))
	})

	t.Run("server error is retryable", func(t *testing.T) {
		gw := momoGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		_, err := gw.Initialize(context.Background(), InitializeRequest{
			Reference: "r", Amount: d("10"), Currency: enums.CurrencyKES, PhoneNumber: "+254700000001",
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayError))
		assert.True(t, pkgerrors.Retryable(err))
	})

	t.Run("malformed body", func(t *testing.T) {
		gw := momoGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"status": `))
		}))
		_, err := gw.Initialize(context.Background(), InitializeRequest{
			Reference: "r", Amount: d("10"), Currency: enums.CurrencyKES, PhoneNumber: "+254700000001",
		})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayError))
	})

	t.Run("unknown status vocabulary", func(t *testing.T) {
		gw := momoGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(momoChargeResponse{ChargeID: "ch", Status: "meh"})
		}))
		_, err := gw.Initialize(context.Background(), InitializeRequest{
			Reference: "r", Amount: d("10"), Currency: enums.CurrencyKES, PhoneNumber: "+254700000001",
		})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayError))
	})
}

func TestMobileMoneyVerify(t *testing.T) {
	gw := momoGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges/ch_123", r.URL.Path)
		json.NewEncoder(w).Encode(momoChargeResponse{
			ChargeID:      "ch_123",
			Status:        "success",
			Amount:        "850.00",
			Currency:      "KES",
			TransactionID: "MPESA9XK1",
		})
	}))

	result, err := gw.Verify(context.Background(), "ch_123")
	require.NoError(t, err)
	assert.Equal(t, enums.GatewayStatusSuccess, result.Status)
	assert.True(t, result.Amount.Equal(d("850")))
	assert.Equal(t, enums.CurrencyKES, result.Currency)
	assert.Equal(t, "MPESA9XK1", result.TransactionID)
}

func TestMobileMoneyPayout(t *testing.T) {
	var got momoPayoutRequest
	gw := momoGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payouts", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(momoPayoutResponse{TransactionID: "PO77", Status: "success"})
	}))

	result, err := gw.Payout(context.Background(), PayoutRequest{
		Reference: "wd-9",
		Amount:    d("490"),
		Currency:  enums.CurrencyKES,
		Method:    enums.WithdrawalMethodMobileMoney,
		Details:   types.WithdrawalDetails{PhoneNumber: "+254700000002"},
	})
	require.NoError(t, err)
	assert.Equal(t, "PO77", result.TransactionID)
	assert.Equal(t, enums.GatewayStatusSuccess, result.Status)
	assert.Equal(t, "490.00", got.Amount)

	_, err = gw.Payout(context.Background(), PayoutRequest{
		Reference: "wd-10", Amount: d("10"), Method: enums.WithdrawalMethodMobileMoney,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestBankTransferFlow(t *testing.T) {
	gw := bankGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/transfers/inbound":
			json.NewEncoder(w).Encode(bankTransferResponse{
				TransferID:   "tr_1",
				Status:       "pending",
				Instructions: "https://bank.example/pay/tr_1",
			})
		case "/v1/transfers/inbound/tr_1":
			json.NewEncoder(w).Encode(bankTransferResponse{
				TransferID:    "tr_1",
				Status:        "success",
				Amount:        "1200.00",
				Currency:      "KES",
				TransactionID: "BNK55",
			})
		case "/v1/transfers/outbound":
			json.NewEncoder(w).Encode(bankPayoutResponse{TransactionID: "BNK90", Status: "pending"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	init, err := gw.Initialize(context.Background(), InitializeRequest{
		Reference: "bkg-7-charge", Amount: d("1200"), Currency: enums.CurrencyKES,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.GatewayStatusPending, init.Status)
	assert.Equal(t, "https://bank.example/pay/tr_1", init.RedirectURL)

	verified, err := gw.Verify(context.Background(), "tr_1")
	require.NoError(t, err)
	assert.Equal(t, enums.GatewayStatusSuccess, verified.Status)
	assert.True(t, verified.Amount.Equal(d("1200")))

	payout, err := gw.Payout(context.Background(), PayoutRequest{
		Reference: "wd-3",
		Amount:    d("980"),
		Currency:  enums.CurrencyKES,
		Method:    enums.WithdrawalMethodBankTransfer,
		Details: types.WithdrawalDetails{
			BankName:      "Equity",
			AccountNumber: "0123456789",
			AccountName:   "Jane Wanjiku",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "BNK90", payout.TransactionID)
	assert.Equal(t, enums.GatewayStatusPending, payout.Status)
}

type stubSquare struct {
	payment *sq.Payment
	err     error

	gotParams square.PaymentCreateParams
}

func (s *stubSquare) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	s.gotParams = params
	if s.err != nil {
		return nil, s.err
	}
	return s.payment, nil
}

func (s *stubSquare) GetPayment(_ context.Context, _ string) (*sq.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.payment, nil
}

func strPtr(s string) *string { return &s }

func cardGateway(stub *stubSquare) *CardGateway {
	return &CardGateway{client: stub, timeout: 2 * time.Second, logg: testLogger()}
}

func TestCardGatewayInitialize(t *testing.T) {
	stub := &stubSquare{payment: &sq.Payment{
		ID:     strPtr("pay_1"),
		Status: strPtr("COMPLETED"),
	}}
	gw := cardGateway(stub)

	result, err := gw.Initialize(context.Background(), InitializeRequest{
		Reference:   "bkg-5-charge",
		Amount:      d("850.50"),
		Currency:    enums.CurrencyKES,
		SourceToken: "cnon:abc",
	})
	require.NoError(t, err)

	assert.Equal(t, "pay_1", result.GatewayReference)
	assert.Equal(t, enums.GatewayStatusSuccess, result.Status)
	assert.Equal(t, int64(85050), stub.gotParams.AmountCents)
	assert.Equal(t, "bkg-5-charge", stub.gotParams.IdempotencyKey)

	_, err = gw.Initialize(context.Background(), InitializeRequest{
		Reference: "r", Amount: d("10"), Currency: enums.CurrencyKES,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCardGatewayDeclinePassesThrough(t *testing.T) {
	stub := &stubSquare{err: pkgerrors.New(pkgerrors.CodeGatewayDeclined, "card declined")}
	gw := cardGateway(stub)

	_, err := gw.Initialize(context.Background(), InitializeRequest{
		Reference: "r", Amount: d("10"), Currency: enums.CurrencyKES, SourceToken: "cnon:abc",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayDeclined))
}

func TestCardGatewayVerifyAndPayout(t *testing.T) {
	amount := int64(85050)
	currency := sq.Currency("KES")
	stub := &stubSquare{payment: &sq.Payment{
		ID:          strPtr("pay_1"),
		Status:      strPtr("PENDING"),
		AmountMoney: &sq.Money{Amount: &amount, Currency: &currency},
	}}
	gw := cardGateway(stub)

	result, err := gw.Verify(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, enums.GatewayStatusPending, result.Status)
	assert.True(t, result.Amount.Equal(d("850.50")))
	assert.Equal(t, enums.CurrencyKES, result.Currency)

	_, err = gw.Payout(context.Background(), PayoutRequest{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
