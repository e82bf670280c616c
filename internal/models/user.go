package models

import "strings"

// Role represents user roles in the system
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleServiceAdvisor Role = "serviceAdvisor"
	RoleCustomer       Role = "customer"
)

// Actions a desk user may be permitted to perform
const (
	PermViewServices    = "view_services"
	PermGenerateInvoice = "generate_invoice"
	PermProcessPayment  = "process_payment"
	PermProcessDelivery = "process_delivery"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the backend's answer to a successful login
type LoginResponse struct {
	Token     string `json:"token"`
	Role      Role   `json:"role"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Claims represents JWT claims
type Claims struct {
	Subject      string `json:"sub"`
	Role         Role   `json:"role"`
	Exp          int64  `json:"exp"`
	BackendToken string `json:"bt,omitempty"`
}

// ForwardToken returns the token to present to the backend: the wrapped
// backend token of a desk session, or raw itself.
func (c *Claims) ForwardToken(raw string) string {
	if c != nil && c.BackendToken != "" {
		return c.BackendToken
	}
	return raw
}

// ParseRole maps the role spellings used by the backend ("ADMIN",
// "serviceadvisor", "SERVICE_ADVISOR") onto a Role.
func ParseRole(s string) Role {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	norm = strings.TrimPrefix(norm, "role")
	switch norm {
	case "admin":
		return RoleAdmin
	case "serviceadvisor", "advisor":
		return RoleServiceAdvisor
	case "customer":
		return RoleCustomer
	default:
		return Role(s)
	}
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleServiceAdvisor, RoleCustomer:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role may perform an action. Customers have no
// access to the desk.
func (r Role) HasPermission(action string) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleServiceAdvisor:
		return action == PermViewServices || action == PermGenerateInvoice
	default:
		return false
	}
}
