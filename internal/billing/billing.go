// Package billing derives invoice amounts for a completed service.
//
// All monetary values are rounded to two decimals at every derivation step,
// so the totals shown in the console, posted with the invoice and recorded
// with the payment are the same numbers.
package billing

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/ukydev/service-desk/internal/models"
)

var (
	// PremiumLaborDiscount is the share of labor waived for premium members.
	PremiumLaborDiscount = decimal.RequireFromString("0.30")
	// GSTRate is applied to the discounted subtotal.
	GSTRate = decimal.RequireFromString("0.18")
)

const defaultLaborDescription = "Service Labor"

// Round2 rounds v half away from zero to two decimals.
func Round2(v float64) float64 {
	return round(decimal.NewFromFloat(v))
}

func round(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// ResolveMaterialsTotal sums the material line totals. A line without a total
// is priced as quantity x unitPrice, quantity defaulting to 1 and unit price
// to 0. Nil lines are skipped.
func ResolveMaterialsTotal(materials []*models.LineItem) float64 {
	sum := decimal.Zero
	for _, m := range materials {
		if m == nil {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(LineTotal(m)))
	}
	return round(sum)
}

// LineTotal returns the total of a single material line.
func LineTotal(m *models.LineItem) float64 {
	if m.Total.Valid {
		return m.Total.Value
	}
	qty := decimal.NewFromFloat(m.Quantity.Or(1))
	price := decimal.NewFromFloat(m.UnitPrice.Or(0))
	return qty.Mul(price).InexactFloat64()
}

// ResolveLaborCharges returns the labor charges to bill. Tracking data, when
// present, wins over any charge list and becomes a single charge.
func ResolveLaborCharges(details models.InvoiceDetails) []*models.LaborCharge {
	if details.Tracking != nil {
		return []*models.LaborCharge{ChargeFromTracking(*details.Tracking)}
	}
	return details.LaborCharges
}

// ChargeFromTracking converts a minutes/cost pair into a labor charge. The
// cost is authoritative: total is the cost itself, not hours x derived rate.
func ChargeFromTracking(t models.LaborTracking) *models.LaborCharge {
	minutes := decimal.NewFromFloat(t.Minutes.Or(0))
	cost := t.Cost.Or(0)
	hours := minutes.Div(decimal.NewFromInt(60))

	rate := 0.0
	if hours.IsPositive() {
		rate = round(decimal.NewFromFloat(cost).Div(hours))
	}

	desc := strings.TrimSpace(t.Description)
	if desc == "" {
		desc = defaultLaborDescription
	}
	return &models.LaborCharge{
		Description: desc,
		Hours:       models.NewNumber(hours.InexactFloat64()),
		Rate:        models.NewNumber(rate),
		Total:       models.NewNumber(cost),
	}
}

// ResolveLaborTotal sums the labor charges, pricing a charge without a total
// as hours x rate. Hours and rate default to 0; nil charges are skipped.
func ResolveLaborTotal(charges []*models.LaborCharge) float64 {
	sum := decimal.Zero
	for _, c := range charges {
		if c == nil {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(ChargeTotal(c)))
	}
	return round(sum)
}

// ChargeTotal returns the total of a single labor charge.
func ChargeTotal(c *models.LaborCharge) float64 {
	if c.Total.Valid {
		return c.Total.Value
	}
	hours := decimal.NewFromFloat(c.Hours.Or(0))
	rate := decimal.NewFromFloat(c.EffectiveRate().Or(0))
	return hours.Mul(rate).InexactFloat64()
}

// ComputeTotals applies the premium discount and GST to the material and
// labor totals. It has no side effects.
func ComputeTotals(materialsTotal, laborTotal float64, membership models.Membership) models.InvoiceTotals {
	materials := decimal.NewFromFloat(materialsTotal).Round(2)
	labor := decimal.NewFromFloat(laborTotal).Round(2)

	discount := decimal.Zero
	if membership == models.MembershipPremium {
		discount = labor.Mul(PremiumLaborDiscount).Round(2)
	}
	subtotal := materials.Add(labor).Sub(discount).Round(2)
	tax := subtotal.Mul(GSTRate).Round(2)
	grand := subtotal.Add(tax).Round(2)

	return models.InvoiceTotals{
		MaterialsTotal: materials.InexactFloat64(),
		LaborTotal:     labor.InexactFloat64(),
		Discount:       discount.InexactFloat64(),
		Subtotal:       subtotal.InexactFloat64(),
		Tax:            tax.InexactFloat64(),
		GrandTotal:     grand.InexactFloat64(),
	}
}

// IsMembershipPremium reports whether any membership signal on the record
// says premium. Status strings match case-insensitively by substring, so
// "Premium Plus" counts. Conflicting signals resolve to premium.
func IsMembershipPremium(rec models.ServiceRecord) bool {
	s := rec.Signals
	if containsPremium(s.Status) {
		return true
	}
	if containsPremium(s.CustomerStatus) || containsPremium(s.ProfileStatus) {
		return true
	}
	return s.IsPremium || s.Premium || s.IsPremiumMember
}

func containsPremium(status string) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(status)), "premium")
}

// MembershipOf normalizes the record's membership to Premium or Standard.
func MembershipOf(rec models.ServiceRecord) models.Membership {
	if IsMembershipPremium(rec) {
		return models.MembershipPremium
	}
	return models.MembershipStandard
}

// Calculate computes the invoice totals of a service from its line items.
func Calculate(rec models.ServiceRecord, details models.InvoiceDetails) models.InvoiceTotals {
	materials := ResolveMaterialsTotal(details.Materials)
	labor := ResolveLaborTotal(ResolveLaborCharges(details))
	return ComputeTotals(materials, labor, MembershipOf(rec))
}
