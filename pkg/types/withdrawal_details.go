package types

import (
	"fmt"
	"strings"

	"github.com/davidkaranja/fundilink-backend/pkg/enums"
)

// WithdrawalDetails describes the payout destination for a withdrawal request.
// Bank transfers require account fields, mobile money requires a phone number.
type WithdrawalDetails struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
}

// ValidateFor checks the fields required by the chosen payout method.
func (d WithdrawalDetails) ValidateFor(method enums.WithdrawalMethod) error {
	switch method {
	case enums.WithdrawalMethodBankTransfer:
		if strings.TrimSpace(d.BankName) == "" || strings.TrimSpace(d.AccountNumber) == "" || strings.TrimSpace(d.AccountName) == "" {
			return fmt.Errorf("bank transfer requires bank name, account number and account name")
		}
	case enums.WithdrawalMethodMobileMoney:
		if strings.TrimSpace(d.PhoneNumber) == "" {
			return fmt.Errorf("mobile money requires a phone number")
		}
	default:
		return fmt.Errorf("invalid withdrawal method %q", method)
	}
	return nil
}
