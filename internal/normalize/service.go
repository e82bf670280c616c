// Package normalize turns the loosely shaped JSON of the shop backend into
// canonical records. Every field has an ordered list of extraction rules;
// business logic only ever sees the canonical shape.
package normalize

import (
	"strings"
	"time"

	"github.com/ukydev/service-desk/internal/billing"
	"github.com/ukydev/service-desk/internal/models"
)

var (
	idRules = []rule{field("requestId"), field("serviceId"), field("id")}

	customerNameRules = []rule{
		fullName("enhancedCustomerData.firstName", "enhancedCustomerData.lastName"),
		except(field("customerName"), models.UnknownCustomer),
		fullName("customer.firstName", "customer.lastName"),
		fullName("customer.user.firstName", "customer.user.lastName"),
		field("customer.name"),
		fullName("firstName", "lastName"),
		fullName("user.firstName", "user.lastName"),
	}

	customerEmailRules = []rule{
		field("enhancedCustomerData.email"),
		field("customerEmail"),
		field("customer.email"),
		field("customer.user.email"),
		field("email"),
		field("user.email"),
	}

	customerIDRules = []rule{
		field("customerId"),
		field("customer.customerId"),
		field("customer.id"),
		scalar("customer"),
		field("vehicle.customer.customerId"),
		field("userId"),
	}

	customerAddressRules = []rule{
		address("enhancedCustomerData"),
		address("customer"),
	}

	vehicleNameRules = []rule{
		field("vehicleName"),
		fullName("vehicleBrand", "vehicleModel"),
		fullName("vehicle.brand", "vehicle.model"),
	}

	registrationRules = []rule{
		field("registrationNumber"),
		field("vehicleRegistration"),
		field("vehicle.registrationNumber"),
	}

	serviceTypeRules = []rule{field("serviceType"), field("category")}

	invoiceIDRules = []rule{field("invoiceId"), field("invoice.invoiceId")}

	completionDateFields = []string{
		"completionDate", "completedDate", "updatedAt",
		"formattedCompletedDate", "formattedCompletionDate",
	}
)

// DisplayDateLayout is the layout completion dates are rendered with.
const DisplayDateLayout = "Jan 2, 2006"

// Service normalizes a completed-service payload. Customer details fetched
// separately are expected under enhancedCustomerData and take precedence.
func Service(raw map[string]any) models.ServiceRecord {
	p := Payload(raw)
	rec := models.ServiceRecord{
		RequestID:          first(p, "", idRules...),
		CustomerID:         first(p, "", customerIDRules...),
		CustomerName:       first(p, models.UnknownCustomer, customerNameRules...),
		CustomerEmail:      first(p, "", customerEmailRules...),
		CustomerAddress:    first(p, "", customerAddressRules...),
		VehicleName:        first(p, models.UnknownVehicle, vehicleNameRules...),
		RegistrationNumber: first(p, models.UnknownRegistration, registrationRules...),
		ServiceType:        first(p, "", serviceTypeRules...),
		CompletionDate:     completionDate(p),
		Signals:            signals(p),
		InvoiceID:          first(p, "", invoiceIDRules...),
		WorkflowFlags:      flags(p),
	}
	rec.Membership = billing.MembershipOf(rec)
	return rec
}

// Services normalizes a list payload, skipping entries that are not objects.
func Services(raw []any) []models.ServiceRecord {
	out := make([]models.ServiceRecord, 0, len(raw))
	for _, item := range raw {
		obj, ok := asObject(item)
		if !ok {
			continue
		}
		out = append(out, Service(obj))
	}
	return out
}

func signals(p Payload) models.MembershipSignals {
	return models.MembershipSignals{
		Status:          p.String("membershipStatus"),
		CustomerStatus:  p.String("customer.membershipStatus"),
		ProfileStatus:   p.String("enhancedCustomerData.membershipStatus"),
		IsPremium:       p.Truthy("isPremium"),
		Premium:         p.Truthy("premium"),
		IsPremiumMember: p.Truthy("isPremiumMember"),
	}
}

// flags derives the workflow flags. An invoice id implies an invoice and a
// completed payment object implies the service is paid.
func flags(p Payload) models.WorkflowFlags {
	return models.WorkflowFlags{
		HasInvoice: p.Truthy("hasInvoice") || p.Truthy("invoiceId") || p.Truthy("invoice.invoiceId"),
		IsPaid: p.Truthy("isPaid") || p.Truthy("paid") ||
			strings.EqualFold(p.String("payment.status"), "Completed"),
		IsDelivered: p.Truthy("isDelivered") || p.Truthy("delivered"),
	}
}

func completionDate(p Payload) string {
	for _, f := range completionDateFields {
		v, ok := p.Get(f)
		if !ok || v == nil {
			continue
		}
		if s := FormatDate(v); s != "" {
			return s
		}
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatDate renders a backend date for display. Strings that already look
// formatted (they contain a comma) are returned as is, as are strings that
// do not parse. Java LocalDateTime arrays ([y, m, d, h, min, ...]) are
// accepted too.
func FormatDate(v any) string {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.Contains(s, ",") {
			return s
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.Format(DisplayDateLayout)
			}
		}
		return s
	case []any:
		parts := make([]int, 0, 6)
		for _, x := range t {
			n := models.NumberOf(x)
			if !n.Valid {
				return ""
			}
			parts = append(parts, int(n.Value))
		}
		if len(parts) < 3 {
			return ""
		}
		for len(parts) < 6 {
			parts = append(parts, 0)
		}
		ts := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC)
		return ts.Format(DisplayDateLayout)
	case float64:
		return time.UnixMilli(int64(t)).UTC().Format(DisplayDateLayout)
	default:
		return ""
	}
}
