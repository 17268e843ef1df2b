package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/pkg/enums"
)

// TransactionMetadata is the typed union stored on a ledger entry, keyed by
// the entry's purpose. Exactly the variant matching the purpose must be set.
type TransactionMetadata struct {
	Purpose enums.TransactionPurpose `json:"purpose"`

	JobPayment         *JobPaymentMetadata         `json:"job_payment,omitempty"`
	ExternalPayment    *ExternalPaymentMetadata    `json:"external_payment,omitempty"`
	BookingHold        *BookingHoldMetadata        `json:"booking_hold,omitempty"`
	BookingRefund      *BookingRefundMetadata      `json:"booking_refund,omitempty"`
	Withdrawal         *WithdrawalMetadata         `json:"withdrawal,omitempty"`
	WithdrawalReversal *WithdrawalReversalMetadata `json:"withdrawal_reversal,omitempty"`
	Adjustment         *AdjustmentMetadata         `json:"adjustment,omitempty"`
}

// JobPaymentMetadata records the commission math applied when escrow releases
// a booking payment to the provider.
type JobPaymentMetadata struct {
	BookingID      uuid.UUID       `json:"booking_id"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	Commission     decimal.Decimal `json:"commission"`
	ConfigVersion  int             `json:"config_version"`
}

// ExternalPaymentMetadata links a wallet top-up to its gateway transaction.
type ExternalPaymentMetadata struct {
	BookingID     *uuid.UUID          `json:"booking_id,omitempty"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	GatewayTxnID  string              `json:"gateway_txn_id"`
}

// BookingHoldMetadata ties the payer debit to the escrowed booking.
type BookingHoldMetadata struct {
	BookingID      uuid.UUID `json:"booking_id"`
	ProviderUserID uuid.UUID `json:"provider_user_id"`
}

// BookingRefundMetadata records the disposition of a refunded hold.
type BookingRefundMetadata struct {
	BookingID  uuid.UUID       `json:"booking_id"`
	HeldAmount decimal.Decimal `json:"held_amount"`
	Partial    bool            `json:"partial"`
}

// WithdrawalMetadata links the funds-hold debit to its withdrawal request.
type WithdrawalMetadata struct {
	WithdrawalID uuid.UUID              `json:"withdrawal_id"`
	Method       enums.WithdrawalMethod `json:"method"`
	PlatformFee  decimal.Decimal        `json:"platform_fee"`
}

// WithdrawalReversalMetadata records why held funds were returned.
type WithdrawalReversalMetadata struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	Reason       string    `json:"reason"`
}

// AdjustmentMetadata records a manual operator correction.
type AdjustmentMetadata struct {
	ActorUserID uuid.UUID `json:"actor_user_id"`
	Note        string    `json:"note"`
}

// Validate checks the purpose is known and exactly the matching variant is set.
func (m TransactionMetadata) Validate() error {
	if !m.Purpose.IsValid() {
		return fmt.Errorf("invalid transaction purpose %q", m.Purpose)
	}

	variants := map[enums.TransactionPurpose]bool{
		enums.PurposeJobPayment:         m.JobPayment != nil,
		enums.PurposeExternalPayment:    m.ExternalPayment != nil,
		enums.PurposeBookingHold:        m.BookingHold != nil,
		enums.PurposeBookingRefund:      m.BookingRefund != nil,
		enums.PurposeWithdrawal:         m.Withdrawal != nil,
		enums.PurposeWithdrawalReversal: m.WithdrawalReversal != nil,
		enums.PurposeAdjustment:         m.Adjustment != nil,
	}

	for purpose, present := range variants {
		if purpose == m.Purpose {
			// Deposits carry no extra fields, every other purpose requires its variant.
			if !present && m.Purpose != enums.PurposeDeposit {
				return fmt.Errorf("metadata variant missing for purpose %q", m.Purpose)
			}
			continue
		}
		if present {
			return fmt.Errorf("metadata variant %q set for purpose %q", purpose, m.Purpose)
		}
	}
	return nil
}

// Encode validates and marshals the metadata for the jsonb column.
func (m TransactionMetadata) Encode() (json.RawMessage, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding transaction metadata: %w", err)
	}
	return raw, nil
}

// DecodeTransactionMetadata unmarshals and validates a stored metadata blob.
func DecodeTransactionMetadata(raw json.RawMessage) (*TransactionMetadata, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("transaction metadata is empty")
	}
	var m TransactionMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding transaction metadata: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
