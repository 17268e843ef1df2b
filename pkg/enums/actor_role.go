package enums

import "fmt"

// ActorRole names the caller type the API trusts from verified claims.
type ActorRole string

const (
	RoleCustomer ActorRole = "customer"
	RoleProvider ActorRole = "provider"
	RoleAdmin    ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	RoleCustomer,
	RoleProvider,
	RoleAdmin,
}

// IsValid reports whether the role is recognized.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
