package models

// InvoiceRequest is the body posted to the invoice generation endpoint.
type InvoiceRequest struct {
	ServiceID        string     `json:"serviceId"`
	EmailAddress     string     `json:"emailAddress"`
	SendEmail        bool       `json:"sendEmail"`
	Notes            string     `json:"notes,omitempty"`
	MaterialsTotal   float64    `json:"materialsTotal"`
	LaborTotal       float64    `json:"laborTotal"`
	Discount         float64    `json:"discount"`
	Subtotal         float64    `json:"subtotal"`
	Tax              float64    `json:"tax"`
	Total            float64    `json:"total"`
	MembershipStatus Membership `json:"membershipStatus"`
}

// InvoiceResponse is returned by a successful invoice generation.
type InvoiceResponse struct {
	InvoiceID Number `json:"invoiceId"`
}

// PaymentRequest records a payment against a service.
type PaymentRequest struct {
	ServiceID     string  `json:"serviceId"`
	PaymentMethod string  `json:"paymentMethod"`
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount"`
	Notes         string  `json:"notes,omitempty"`
}

// DeliveryRequest schedules a pickup or a home delivery.
type DeliveryRequest struct {
	ServiceID       string `json:"serviceId"`
	DeliveryType    string `json:"deliveryType"`
	PickupPerson    string `json:"pickupPerson,omitempty"`
	PickupTime      string `json:"pickupTime,omitempty"`
	DeliveryAddress string `json:"deliveryAddress,omitempty"`
	DeliveryDate    string `json:"deliveryDate,omitempty"`
	ContactNumber   string `json:"contactNumber,omitempty"`
	Notes           string `json:"notes,omitempty"`
}
