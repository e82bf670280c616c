package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ukydev/service-desk/internal/models"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError reports a missing or malformed input field. It is returned
// before any backend call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateInvoice checks an invoice request before submission.
func ValidateInvoice(req models.InvoiceRequest) error {
	if blank(req.EmailAddress) {
		return invalid("emailAddress", "Please enter an email address")
	}
	if !emailPattern.MatchString(strings.TrimSpace(req.EmailAddress)) {
		return invalid("emailAddress", "Please enter a valid email address")
	}
	return nil
}

// ValidatePayment checks a payment request before submission.
func ValidatePayment(req models.PaymentRequest) error {
	if blank(req.PaymentMethod) {
		return invalid("paymentMethod", "Please select a payment method")
	}
	if req.Amount <= 0 {
		return invalid("amount", "Please enter a valid amount")
	}
	return nil
}

// ValidateDelivery checks the fields required by the chosen delivery method.
func ValidateDelivery(req models.DeliveryRequest) error {
	switch req.DeliveryType {
	case models.DeliveryPickup:
		if blank(req.PickupPerson) {
			return invalid("pickupPerson", "Please enter pickup person name")
		}
		if blank(req.PickupTime) {
			return invalid("pickupTime", "Please select pickup time")
		}
	case models.DeliveryHome:
		if blank(req.DeliveryAddress) {
			return invalid("deliveryAddress", "Please enter delivery address")
		}
		if blank(req.DeliveryDate) {
			return invalid("deliveryDate", "Please select delivery date")
		}
		if blank(req.ContactNumber) {
			return invalid("contactNumber", "Please enter contact number")
		}
	default:
		return invalid("deliveryType", fmt.Sprintf("must be %q or %q", models.DeliveryPickup, models.DeliveryHome))
	}
	return nil
}
