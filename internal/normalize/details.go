package normalize

import (
	"sort"

	"github.com/ukydev/service-desk/internal/models"
)

const (
	keyLaborMinutes = "labor_minutes"
	keyLaborCost    = "labor_cost"
	keyWorkDesc     = "work_description"
)

// InvoiceDetails normalizes an invoice-details payload. The tracking
// subsystem's labor_minutes/labor_cost pair is looked up at the top level,
// under serviceTracking, in the first serviceTrackings entry, in an
// object-shaped laborCharges and finally in any direct child object.
func InvoiceDetails(raw map[string]any) models.InvoiceDetails {
	p := Payload(raw)
	details := models.InvoiceDetails{
		ServiceType: first(p, "", serviceTypeRules...),
	}

	if items, ok := p.Get("materials"); ok {
		if list, ok := items.([]any); ok {
			details.Materials = lineItems(list)
		}
	}
	if charges, ok := p.Get("laborCharges"); ok {
		if list, ok := charges.([]any); ok {
			details.LaborCharges = laborCharges(list)
		}
	}

	if t, ok := findTracking(p); ok {
		if t.Description == "" {
			t.Description = details.ServiceType
		}
		details.Tracking = &t
	}
	return details
}

func lineItems(list []any) []*models.LineItem {
	out := make([]*models.LineItem, 0, len(list))
	for _, item := range list {
		obj, ok := asObject(item)
		if !ok {
			out = append(out, nil)
			continue
		}
		out = append(out, &models.LineItem{
			ItemID:    obj.Number("itemId"),
			Name:      first(obj, "Unknown Item", field("name"), field("itemName")),
			Quantity:  obj.Number("quantity"),
			UnitPrice: obj.Number("unitPrice"),
			Total:     obj.Number("total"),
		})
	}
	return out
}

func laborCharges(list []any) []*models.LaborCharge {
	out := make([]*models.LaborCharge, 0, len(list))
	for _, item := range list {
		obj, ok := asObject(item)
		if !ok {
			out = append(out, nil)
			continue
		}
		out = append(out, &models.LaborCharge{
			Description: first(obj, "Service Labor", field("description")),
			Hours:       obj.Number("hours"),
			Rate:        obj.Number("rate"),
			RatePerHour: obj.Number("ratePerHour"),
			Total:       obj.Number("total"),
		})
	}
	return out
}

func trackingIn(p Payload) (models.LaborTracking, bool) {
	if !p.Has(keyLaborMinutes) || !p.Has(keyLaborCost) {
		return models.LaborTracking{}, false
	}
	return models.LaborTracking{
		Minutes:     p.Number(keyLaborMinutes),
		Cost:        p.Number(keyLaborCost),
		Description: p.String(keyWorkDesc),
	}, true
}

func findTracking(p Payload) (models.LaborTracking, bool) {
	if t, ok := trackingIn(p); ok {
		return t, true
	}
	if obj, ok := p.Object("serviceTracking"); ok {
		if t, ok := trackingIn(obj); ok {
			return t, true
		}
	}
	if v, ok := p.Get("serviceTrackings"); ok {
		if list, ok := v.([]any); ok && len(list) > 0 {
			if obj, ok := asObject(list[0]); ok {
				if t, ok := trackingIn(obj); ok {
					return t, true
				}
			}
		}
	}
	if obj, ok := p.Object("laborCharges"); ok {
		if t, ok := trackingIn(obj); ok {
			return t, true
		}
	}

	// Map iteration order is random; scan children in key order so the
	// result does not change between calls.
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if obj, ok := asObject(p[k]); ok {
			if t, ok := trackingIn(obj); ok {
				return t, true
			}
		}
	}
	return models.LaborTracking{}, false
}
