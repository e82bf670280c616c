package models

// LineItem is a material used during a service.
type LineItem struct {
	ItemID    Number `json:"itemId"`
	Name      string `json:"name"`
	Quantity  Number `json:"quantity"`
	UnitPrice Number `json:"unitPrice"`
	Total     Number `json:"total"`
}

// LaborCharge is billed technician time. Older endpoints send the hourly
// rate as ratePerHour, newer ones as rate.
type LaborCharge struct {
	Description string `json:"description"`
	Hours       Number `json:"hours"`
	Rate        Number `json:"rate"`
	RatePerHour Number `json:"ratePerHour"`
	Total       Number `json:"total"`
}

// EffectiveRate returns rate when it is set and non-zero, ratePerHour otherwise.
func (c *LaborCharge) EffectiveRate() Number {
	if c.Rate.Valid && c.Rate.Value != 0 {
		return c.Rate
	}
	if c.RatePerHour.Valid {
		return c.RatePerHour
	}
	return c.Rate
}

// LaborTracking is the raw minutes/cost pair written by the service tracking
// subsystem.
type LaborTracking struct {
	Minutes     Number `json:"labor_minutes"`
	Cost        Number `json:"labor_cost"`
	Description string `json:"work_description,omitempty"`
}

// InvoiceDetails holds the line items of a completed service.
type InvoiceDetails struct {
	Materials    []*LineItem    `json:"materials"`
	LaborCharges []*LaborCharge `json:"laborCharges"`
	Tracking     *LaborTracking `json:"tracking,omitempty"`
	ServiceType  string         `json:"serviceType,omitempty"`
}

// InvoiceTotals are the derived amounts of an invoice. All values are
// rounded to two decimals.
type InvoiceTotals struct {
	MaterialsTotal float64 `json:"materialsTotal"`
	LaborTotal     float64 `json:"laborTotal"`
	Discount       float64 `json:"discount"`
	Subtotal       float64 `json:"subtotal"`
	Tax            float64 `json:"tax"`
	GrandTotal     float64 `json:"grandTotal"`
}
