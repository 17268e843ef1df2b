package enums

import "fmt"

// WithdrawalMethod names the payout rail for a withdrawal request.
type WithdrawalMethod string

const (
	WithdrawalMethodBankTransfer WithdrawalMethod = "bank_transfer"
	WithdrawalMethodMobileMoney  WithdrawalMethod = "mobile_money"
)

var validWithdrawalMethods = []WithdrawalMethod{
	WithdrawalMethodBankTransfer,
	WithdrawalMethodMobileMoney,
}

// String implements fmt.Stringer.
func (m WithdrawalMethod) String() string {
	return string(m)
}

// IsValid reports whether the value matches the canonical withdrawal method enum.
func (m WithdrawalMethod) IsValid() bool {
	for _, candidate := range validWithdrawalMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseWithdrawalMethod converts raw input into WithdrawalMethod.
func ParseWithdrawalMethod(value string) (WithdrawalMethod, error) {
	for _, candidate := range validWithdrawalMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid withdrawal method %q", value)
}
