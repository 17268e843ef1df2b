package enums

// GatewayStatus is the normalized outcome of a gateway verify or payout call.
type GatewayStatus string

const (
	GatewayStatusSuccess GatewayStatus = "success"
	GatewayStatusPending GatewayStatus = "pending"
	GatewayStatusFailed  GatewayStatus = "failed"
)

// IsValid reports whether the value matches the normalized gateway vocabulary.
func (s GatewayStatus) IsValid() bool {
	switch s {
	case GatewayStatusSuccess, GatewayStatusPending, GatewayStatusFailed:
		return true
	}
	return false
}
