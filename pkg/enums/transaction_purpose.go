package enums

import "fmt"

// TransactionPurpose keys the typed metadata union on a ledger entry.
type TransactionPurpose string

const (
	PurposeJobPayment         TransactionPurpose = "job_payment"
	PurposeExternalPayment    TransactionPurpose = "external_payment"
	PurposeBookingHold        TransactionPurpose = "booking_hold"
	PurposeBookingRefund      TransactionPurpose = "booking_refund"
	PurposeWithdrawal         TransactionPurpose = "withdrawal"
	PurposeWithdrawalReversal TransactionPurpose = "withdrawal_reversal"
	PurposeDeposit            TransactionPurpose = "deposit"
	PurposeAdjustment         TransactionPurpose = "adjustment"
)

var validTransactionPurposes = []TransactionPurpose{
	PurposeJobPayment,
	PurposeExternalPayment,
	PurposeBookingHold,
	PurposeBookingRefund,
	PurposeWithdrawal,
	PurposeWithdrawalReversal,
	PurposeDeposit,
	PurposeAdjustment,
}

// IsValid reports whether the value matches the canonical purpose enum.
func (p TransactionPurpose) IsValid() bool {
	for _, candidate := range validTransactionPurposes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseTransactionPurpose converts raw input into TransactionPurpose.
func ParseTransactionPurpose(value string) (TransactionPurpose, error) {
	for _, candidate := range validTransactionPurposes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction purpose %q", value)
}
