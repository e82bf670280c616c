package models

// Membership is the customer tier used for billing.
type Membership string

const (
	MembershipPremium  Membership = "Premium"
	MembershipStandard Membership = "Standard"
)

// MembershipSignals are the places a backend payload may carry the
// customer's tier. Any of them can indicate premium.
type MembershipSignals struct {
	Status          string `json:"membershipStatus,omitempty"`
	CustomerStatus  string `json:"customerMembershipStatus,omitempty"`
	ProfileStatus   string `json:"profileMembershipStatus,omitempty"`
	IsPremium       bool   `json:"isPremium,omitempty"`
	Premium         bool   `json:"premium,omitempty"`
	IsPremiumMember bool   `json:"isPremiumMember,omitempty"`
}

// WorkflowFlags track the post-completion stages of a service.
type WorkflowFlags struct {
	HasInvoice  bool `json:"hasInvoice"`
	IsPaid      bool `json:"isPaid"`
	IsDelivered bool `json:"isDelivered"`
}

// ServiceRecord is the canonical shape of a completed service request.
type ServiceRecord struct {
	RequestID          string            `json:"requestId"`
	CustomerID         string            `json:"customerId,omitempty"`
	CustomerName       string            `json:"customerName"`
	CustomerEmail      string            `json:"customerEmail,omitempty"`
	CustomerAddress    string            `json:"customerAddress,omitempty"`
	VehicleName        string            `json:"vehicleName"`
	RegistrationNumber string            `json:"registrationNumber"`
	ServiceType        string            `json:"serviceType,omitempty"`
	CompletionDate     string            `json:"completionDate"`
	Signals            MembershipSignals `json:"membershipSignals"`
	Membership         Membership        `json:"membershipStatus"`
	InvoiceID          string            `json:"invoiceId,omitempty"`
	WorkflowFlags
}

// Placeholders used when a field cannot be resolved from the payload.
const (
	UnknownCustomer     = "Unknown Customer"
	UnknownVehicle      = "Unknown Vehicle"
	UnknownRegistration = "Unknown"
)
