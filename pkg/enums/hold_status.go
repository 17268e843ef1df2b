package enums

import "fmt"

// HoldStatus tracks escrowed booking funds. Released and refunded are terminal.
type HoldStatus string

const (
	HoldStatusHeld     HoldStatus = "held"
	HoldStatusReleased HoldStatus = "released"
	HoldStatusRefunded HoldStatus = "refunded"
)

var validHoldStatuses = []HoldStatus{
	HoldStatusHeld,
	HoldStatusReleased,
	HoldStatusRefunded,
}

// IsValid reports whether the value matches the canonical hold status enum.
func (s HoldStatus) IsValid() bool {
	for _, candidate := range validHoldStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsResolved reports whether the hold has reached a terminal state.
func (s HoldStatus) IsResolved() bool {
	return s == HoldStatusReleased || s == HoldStatusRefunded
}

// ParseHoldStatus converts raw input into HoldStatus.
func ParseHoldStatus(value string) (HoldStatus, error) {
	for _, candidate := range validHoldStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid hold status %q", value)
}
