package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidkaranja/fundilink-backend/pkg/enums"
)

func TestMetadataEncodeDecodeRoundTrip(t *testing.T) {
	bookingID := uuid.New()
	meta := TransactionMetadata{
		Purpose: enums.PurposeJobPayment,
		JobPayment: &JobPaymentMetadata{
			BookingID:      bookingID,
			GrossAmount:    decimal.RequireFromString("1000"),
			CommissionRate: decimal.RequireFromString("0.15"),
			Commission:     decimal.RequireFromString("150.00"),
			ConfigVersion:  3,
		},
	}

	raw, err := meta.Encode()
	require.NoError(t, err)

	decoded, err := DecodeTransactionMetadata(raw)
	require.NoError(t, err)
	require.NotNil(t, decoded.JobPayment)
	assert.Equal(t, bookingID, decoded.JobPayment.BookingID)
	assert.True(t, decoded.JobPayment.Commission.Equal(decimal.RequireFromString("150.00")))
}

func TestMetadataValidateRejectsMissingVariant(t *testing.T) {
	meta := TransactionMetadata{Purpose: enums.PurposeWithdrawal}
	require.Error(t, meta.Validate())
}

func TestMetadataValidateRejectsMismatchedVariant(t *testing.T) {
	meta := TransactionMetadata{
		Purpose: enums.PurposeDeposit,
		Withdrawal: &WithdrawalMetadata{
			WithdrawalID: uuid.New(),
			Method:       enums.WithdrawalMethodMobileMoney,
			PlatformFee:  decimal.RequireFromString("10"),
		},
	}
	require.Error(t, meta.Validate())
}

func TestMetadataDepositNeedsNoVariant(t *testing.T) {
	meta := TransactionMetadata{Purpose: enums.PurposeDeposit}
	require.NoError(t, meta.Validate())
}

func TestWithdrawalDetailsValidateFor(t *testing.T) {
	bank := WithdrawalDetails{BankName: "Equity", AccountNumber: "0102030405", AccountName: "J. Wanjiku"}
	assert.NoError(t, bank.ValidateFor(enums.WithdrawalMethodBankTransfer))
	assert.Error(t, bank.ValidateFor(enums.WithdrawalMethodMobileMoney))

	momo := WithdrawalDetails{PhoneNumber: "+254700111222"}
	assert.NoError(t, momo.ValidateFor(enums.WithdrawalMethodMobileMoney))
	assert.Error(t, momo.ValidateFor(enums.WithdrawalMethodBankTransfer))
}
