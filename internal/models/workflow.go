package models

// WorkflowState is the next post-completion step a service needs.
type WorkflowState int

const (
	NeedsInvoice WorkflowState = iota
	NeedsPayment
	NeedsDelivery
	Complete
)

func (s WorkflowState) String() string {
	switch s {
	case NeedsInvoice:
		return "needs_invoice"
	case NeedsPayment:
		return "needs_payment"
	case NeedsDelivery:
		return "needs_delivery"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Action names the operation that moves a service out of the state.
// Complete has no action.
func (s WorkflowState) Action() string {
	switch s {
	case NeedsInvoice:
		return "generate_invoice"
	case NeedsPayment:
		return "process_payment"
	case NeedsDelivery:
		return "process_delivery"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s WorkflowState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Delivery methods offered once a service is paid.
const (
	DeliveryPickup = "pickup"
	DeliveryHome   = "delivery"
)
