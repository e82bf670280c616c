// Package workflow drives a completed service through its post-completion
// stages: invoice, payment and delivery. Stages are strictly linear and each
// transition returns a new record rather than mutating the one passed in.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/service-desk/internal/models"
)

var (
	ErrInvalidTransition    = errors.New("invalid workflow transition")
	ErrSubmissionInProgress = errors.New("a submission for this service is already in progress")
	ErrMissingServiceID     = errors.New("service id is required")
)

// Backend performs the remote side of each transition.
type Backend interface {
	GenerateInvoice(ctx context.Context, serviceID string, req models.InvoiceRequest) (models.InvoiceResponse, error)
	ProcessPayment(ctx context.Context, serviceID string, req models.PaymentRequest) error
	ProcessDelivery(ctx context.Context, serviceID string, req models.DeliveryRequest) error
}

// Derive returns the next step a service needs. hasInvoice gates everything,
// then isPaid, then isDelivered.
func Derive(f models.WorkflowFlags) models.WorkflowState {
	switch {
	case !f.HasInvoice:
		return models.NeedsInvoice
	case !f.IsPaid:
		return models.NeedsPayment
	case !f.IsDelivered:
		return models.NeedsDelivery
	default:
		return models.Complete
	}
}

// Workflow runs transitions against a Backend. It is safe for concurrent use;
// at most one submission per service id is outstanding at a time.
type Workflow struct {
	backend Backend

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a Workflow.
func New(backend Backend) *Workflow {
	return &Workflow{
		backend:  backend,
		inFlight: make(map[string]struct{}),
	}
}

func (w *Workflow) acquire(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[id]; busy {
		return ErrSubmissionInProgress
	}
	w.inFlight[id] = struct{}{}
	return nil
}

type heldKey struct{}

// Acquire reserves id until the returned release func is called. Transitions
// run with the returned context reuse the reservation, so a caller can hold
// it across reading the service and submitting the transition.
func (w *Workflow) Acquire(ctx context.Context, id string) (context.Context, func(), error) {
	if id == "" {
		return ctx, func() {}, ErrMissingServiceID
	}
	if err := w.acquire(id); err != nil {
		return ctx, func() {}, err
	}
	var once sync.Once
	release := func() { once.Do(func() { w.release(id) }) }
	return context.WithValue(ctx, heldKey{}, id), release, nil
}

// enter takes the reservation for id unless ctx already holds it.
func (w *Workflow) enter(ctx context.Context, id string) (func(), error) {
	if held, _ := ctx.Value(heldKey{}).(string); held == id {
		return func() {}, nil
	}
	if err := w.acquire(id); err != nil {
		return nil, err
	}
	return func() { w.release(id) }, nil
}

func (w *Workflow) release(id string) {
	w.mu.Lock()
	delete(w.inFlight, id)
	w.mu.Unlock()
}

// InFlight reports whether a submission for id is outstanding.
func (w *Workflow) InFlight(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, busy := w.inFlight[id]
	return busy
}

func expect(rec models.ServiceRecord, want models.WorkflowState) error {
	if rec.RequestID == "" {
		return ErrMissingServiceID
	}
	if got := Derive(rec.WorkflowFlags); got != want {
		return fmt.Errorf("%w: service %s is at %s, not %s", ErrInvalidTransition, rec.RequestID, got, want)
	}
	return nil
}

// GenerateInvoice moves a service from NeedsInvoice to NeedsPayment.
func (w *Workflow) GenerateInvoice(ctx context.Context, rec models.ServiceRecord, req models.InvoiceRequest) (models.ServiceRecord, error) {
	if err := expect(rec, models.NeedsInvoice); err != nil {
		return rec, err
	}
	if err := ValidateInvoice(req); err != nil {
		return rec, err
	}
	release, err := w.enter(ctx, rec.RequestID)
	if err != nil {
		return rec, err
	}
	defer release()

	req.ServiceID = rec.RequestID
	resp, err := w.backend.GenerateInvoice(ctx, rec.RequestID, req)
	if err != nil {
		return rec, fmt.Errorf("generate invoice for service %s: %w", rec.RequestID, err)
	}

	next := rec
	next.HasInvoice = true
	if resp.InvoiceID.Valid {
		next.InvoiceID = strconv.FormatFloat(resp.InvoiceID.Value, 'f', -1, 64)
	}
	log.WithFields(log.Fields{
		"service_id": rec.RequestID,
		"invoice_id": next.InvoiceID,
		"total":      req.Total,
	}).Info("Invoice generated")
	return next, nil
}

// ProcessPayment moves a service from NeedsPayment to NeedsDelivery.
func (w *Workflow) ProcessPayment(ctx context.Context, rec models.ServiceRecord, req models.PaymentRequest) (models.ServiceRecord, error) {
	if err := expect(rec, models.NeedsPayment); err != nil {
		return rec, err
	}
	if err := ValidatePayment(req); err != nil {
		return rec, err
	}
	release, err := w.enter(ctx, rec.RequestID)
	if err != nil {
		return rec, err
	}
	defer release()

	req.ServiceID = rec.RequestID
	if err := w.backend.ProcessPayment(ctx, rec.RequestID, req); err != nil {
		return rec, fmt.Errorf("process payment for service %s: %w", rec.RequestID, err)
	}

	next := rec
	next.IsPaid = true
	log.WithFields(log.Fields{
		"service_id": rec.RequestID,
		"method":     req.PaymentMethod,
		"amount":     req.Amount,
	}).Info("Payment processed")
	return next, nil
}

// ProcessDelivery moves a service from NeedsDelivery to Complete.
func (w *Workflow) ProcessDelivery(ctx context.Context, rec models.ServiceRecord, req models.DeliveryRequest) (models.ServiceRecord, error) {
	if err := expect(rec, models.NeedsDelivery); err != nil {
		return rec, err
	}
	if err := ValidateDelivery(req); err != nil {
		return rec, err
	}
	release, err := w.enter(ctx, rec.RequestID)
	if err != nil {
		return rec, err
	}
	defer release()

	req.ServiceID = rec.RequestID
	if err := w.backend.ProcessDelivery(ctx, rec.RequestID, req); err != nil {
		return rec, fmt.Errorf("process delivery for service %s: %w", rec.RequestID, err)
	}

	next := rec
	next.IsDelivered = true
	log.WithFields(log.Fields{
		"service_id": rec.RequestID,
		"type":       req.DeliveryType,
	}).Info("Delivery processed")
	return next, nil
}

// NewInvoiceRequest builds the invoice body from computed totals. An empty
// email falls back to the customer's address on record.
func NewInvoiceRequest(rec models.ServiceRecord, totals models.InvoiceTotals, email string, sendEmail bool) models.InvoiceRequest {
	if strings.TrimSpace(email) == "" {
		email = rec.CustomerEmail
	}
	return models.InvoiceRequest{
		ServiceID:        rec.RequestID,
		EmailAddress:     strings.TrimSpace(email),
		SendEmail:        sendEmail,
		MaterialsTotal:   totals.MaterialsTotal,
		LaborTotal:       totals.LaborTotal,
		Discount:         totals.Discount,
		Subtotal:         totals.Subtotal,
		Tax:              totals.Tax,
		Total:            totals.GrandTotal,
		MembershipStatus: rec.Membership,
	}
}

// PaymentCash is the payment method that gets a generated transaction id.
const PaymentCash = "Cash"

const (
	defaultPaymentNotes  = "Payment processed by admin"
	defaultDeliveryNotes = "Processed by admin"
)

// CashTransactionID generates the receipt id recorded for cash payments.
func CashTransactionID(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return "CASH-" + ms
}

// FillPaymentDefaults completes a payment request: cash payments without a
// transaction id get a generated one and empty notes get the desk default.
func FillPaymentDefaults(req models.PaymentRequest, now time.Time) models.PaymentRequest {
	if strings.EqualFold(req.PaymentMethod, PaymentCash) && blank(req.TransactionID) {
		req.TransactionID = CashTransactionID(now)
	}
	if blank(req.Notes) {
		req.Notes = defaultPaymentNotes
	}
	return req
}

// FillDeliveryDefaults sets the desk default notes and drops the fields that
// do not belong to the chosen delivery method.
func FillDeliveryDefaults(req models.DeliveryRequest) models.DeliveryRequest {
	if blank(req.Notes) {
		req.Notes = defaultDeliveryNotes
	}
	switch req.DeliveryType {
	case models.DeliveryPickup:
		req.DeliveryAddress, req.DeliveryDate, req.ContactNumber = "", "", ""
	case models.DeliveryHome:
		req.PickupPerson, req.PickupTime = "", ""
	}
	return req
}
