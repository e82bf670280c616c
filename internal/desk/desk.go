// Package desk ties the backend client, billing and the workflow together
// into the operations the service desk exposes: load a completed service,
// list services and advance a service through invoice, payment and delivery.
package desk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/service-desk/internal/billing"
	"github.com/ukydev/service-desk/internal/client"
	"github.com/ukydev/service-desk/internal/db"
	"github.com/ukydev/service-desk/internal/metrics"
	"github.com/ukydev/service-desk/internal/models"
	"github.com/ukydev/service-desk/internal/normalize"
	"github.com/ukydev/service-desk/internal/notify"
	"github.com/ukydev/service-desk/internal/workflow"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrServiceUnavailable is returned by a transition when the service
	// itself could not be loaded, so its stage is unknown.
	ErrServiceUnavailable = errors.New("service details unavailable")
	ErrJournalDisabled    = errors.New("action journal is not configured")
)

// Backend is the part of the REST client the desk uses.
type Backend interface {
	workflow.Backend
	ListCompletedServices(ctx context.Context) ([]any, error)
	FetchService(ctx context.Context, id string) (map[string]any, error)
	FetchInvoiceDetails(ctx context.Context, id string) (map[string]any, error)
	FetchCustomer(ctx context.Context, customerID string) (map[string]any, error)
}

// View is everything the console shows for one completed service.
type View struct {
	Record     models.ServiceRecord  `json:"service"`
	Details    models.InvoiceDetails `json:"invoiceDetails"`
	Charges    []*models.LaborCharge `json:"laborCharges"`
	Totals     models.InvoiceTotals  `json:"totals"`
	State      models.WorkflowState  `json:"state"`
	NextAction string                `json:"nextAction,omitempty"`
	Notices    []notify.Notice       `json:"notices,omitempty"`
}

// InvoiceInput is what the operator supplies when generating an invoice.
// An empty email falls back to the customer's address.
type InvoiceInput struct {
	EmailAddress string `json:"emailAddress"`
	SendEmail    bool   `json:"sendEmail"`
	Notes        string `json:"notes,omitempty"`
}

// Desk is safe for concurrent use.
type Desk struct {
	backend  Backend
	flow     *workflow.Workflow
	journal  db.JournalCollection
	notifier notify.Notifier
	metrics  *metrics.Registry
	now      func() time.Time
}

// Option configures a Desk.
type Option func(*Desk)

// WithJournal records every attempted action in j.
func WithJournal(j db.JournalCollection) Option {
	return func(d *Desk) { d.journal = j }
}

// WithNotifier replaces the default log notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Desk) { d.notifier = n }
}

// WithMetrics records transition and fallback counters in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(d *Desk) { d.metrics = r }
}

// New creates a Desk on top of backend.
func New(backend Backend, opts ...Option) *Desk {
	d := &Desk{
		backend:  backend,
		flow:     workflow.New(backend),
		notifier: notify.LogNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type actorKey struct{}

// WithActor returns a context whose actions are journaled as done by actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	a, _ := ctx.Value(actorKey{}).(string)
	return a
}

// List returns the normalized completed services.
func (d *Desk) List(ctx context.Context) ([]models.ServiceRecord, error) {
	raw, err := d.backend.ListCompletedServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list completed services: %w", err)
	}
	return normalize.Services(raw), nil
}

// Load fetches a service and its invoice details concurrently and computes
// its totals. Read failures never fail the load: the missing part falls back
// to placeholders or zero totals and a warning notice is attached.
func (d *Desk) Load(ctx context.Context, id string) (View, error) {
	l, err := d.load(ctx, id)
	return l.View, err
}

// loaded is a view plus the error that kept the service record from loading,
// which transitions treat as fatal.
type loaded struct {
	View
	serviceErr error
}

func (d *Desk) load(ctx context.Context, id string) (loaded, error) {
	if id == "" {
		return loaded{}, workflow.ErrMissingServiceID
	}

	var (
		raw                     map[string]any
		details                 models.InvoiceDetails
		serviceErr, customerErr error
		detailsErr              error
	)

	var g errgroup.Group
	g.Go(func() error {
		raw, serviceErr = d.backend.FetchService(ctx, id)
		if serviceErr == nil {
			customerErr = d.enrich(ctx, raw)
		}
		return nil
	})
	g.Go(func() error {
		data, err := d.backend.FetchInvoiceDetails(ctx, id)
		if err != nil {
			detailsErr = err
			return nil
		}
		details = normalize.InvoiceDetails(data)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return loaded{}, err
	}

	l := loaded{View: View{Details: details}, serviceErr: serviceErr}
	if serviceErr != nil {
		raw = map[string]any{"requestId": id}
		l.Notices = append(l.Notices, d.fallback(ctx, id, "service", "Error loading service details", serviceErr))
	}
	if customerErr != nil {
		l.Notices = append(l.Notices, d.fallback(ctx, id, "customer", "Error loading customer details", customerErr))
	}
	if detailsErr != nil {
		l.Notices = append(l.Notices, d.fallback(ctx, id, "details", "Error loading bill information", detailsErr))
	}

	l.Record = normalize.Service(raw)
	if l.Record.RequestID == "" {
		l.Record.RequestID = id
	}
	d.refresh(&l.View)
	return l, nil
}

// enrich merges the customer profile into a service payload as
// enhancedCustomerData when the payload names a customer but does not embed
// the profile.
func (d *Desk) enrich(ctx context.Context, raw map[string]any) error {
	if raw == nil {
		return nil
	}
	if _, embedded := raw["enhancedCustomerData"]; embedded {
		return nil
	}
	cid := normalize.Service(raw).CustomerID
	if cid == "" {
		return nil
	}
	profile, err := d.backend.FetchCustomer(ctx, cid)
	if err != nil {
		return err
	}
	if profile != nil {
		raw["enhancedCustomerData"] = profile
	}
	return nil
}

// refresh recomputes the derived parts of a view from its record and details.
func (d *Desk) refresh(v *View) {
	v.Charges = billing.ResolveLaborCharges(v.Details)
	v.Totals = billing.Calculate(v.Record, v.Details)
	v.Record.Membership = billing.MembershipOf(v.Record)
	v.State = workflow.Derive(v.Record.WorkflowFlags)
	v.NextAction = v.State.Action()
}

func (d *Desk) fallback(ctx context.Context, id, source, prefix string, err error) notify.Notice {
	if d.metrics != nil {
		d.metrics.ReadFallbacks.WithLabelValues(source).Inc()
	}
	n := notify.Notice{
		Level:     notify.LevelWarning,
		ServiceID: id,
		Action:    "load_" + source,
		Message:   prefix + ": " + message(err),
		Time:      d.now().UTC(),
	}
	d.publish(ctx, n)
	return n
}

func (d *Desk) publish(ctx context.Context, n notify.Notice) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		log.WithError(err).WithField("service_id", n.ServiceID).Warn("Failed to publish notice")
	}
}

// message is the text shown to the operator for err: the backend's own
// message when it sent one.
func message(err error) string {
	if msg := client.Message(err); msg != "" {
		return msg
	}
	var ve *workflow.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}

// GenerateInvoice invoices a service for its computed totals.
func (d *Desk) GenerateInvoice(ctx context.Context, id string, in InvoiceInput) (View, error) {
	ctx, release, err := d.reserve(withRequestID(ctx), id, models.NeedsInvoice.Action())
	if err != nil {
		return View{}, err
	}
	defer release()

	v, err := d.prepare(ctx, id)
	if err != nil {
		return v, err
	}

	req := workflow.NewInvoiceRequest(v.Record, v.Totals, in.EmailAddress, in.SendEmail)
	req.Notes = in.Notes
	next, err := d.flow.GenerateInvoice(ctx, v.Record, req)
	d.finish(ctx, &v, next, models.NeedsInvoice.Action(), req.Total, err,
		"Invoice generated successfully", "Error generating invoice")
	if err == nil && d.metrics != nil {
		d.metrics.InvoiceTotal.Observe(req.Total)
	}
	return v, err
}

// RecordPayment records a payment. A zero amount means the invoice's grand
// total.
func (d *Desk) RecordPayment(ctx context.Context, id string, req models.PaymentRequest) (View, error) {
	ctx, release, err := d.reserve(withRequestID(ctx), id, models.NeedsPayment.Action())
	if err != nil {
		return View{}, err
	}
	defer release()

	v, err := d.prepare(ctx, id)
	if err != nil {
		return v, err
	}

	if req.Amount == 0 {
		req.Amount = v.Totals.GrandTotal
	}
	req = workflow.FillPaymentDefaults(req, d.now())
	next, err := d.flow.ProcessPayment(ctx, v.Record, req)
	d.finish(ctx, &v, next, models.NeedsPayment.Action(), req.Amount, err,
		"Payment processed successfully", "Error processing payment")
	return v, err
}

// ScheduleDelivery hands a paid service back to its customer by pickup or
// home delivery.
func (d *Desk) ScheduleDelivery(ctx context.Context, id string, req models.DeliveryRequest) (View, error) {
	ctx, release, err := d.reserve(withRequestID(ctx), id, models.NeedsDelivery.Action())
	if err != nil {
		return View{}, err
	}
	defer release()

	v, err := d.prepare(ctx, id)
	if err != nil {
		return v, err
	}

	req = workflow.FillDeliveryDefaults(req)
	next, err := d.flow.ProcessDelivery(ctx, v.Record, req)
	d.finish(ctx, &v, next, models.NeedsDelivery.Action(), 0, err,
		"Delivery processed successfully", "Error processing delivery")
	return v, err
}

func withRequestID(ctx context.Context) context.Context {
	if client.RequestID(ctx) != "" {
		return ctx
	}
	return client.WithRequestID(ctx, uuid.NewString())
}

// reserve holds the submission guard for id from the reload until the
// transition has been recorded.
func (d *Desk) reserve(ctx context.Context, id, action string) (context.Context, func(), error) {
	ctx, release, err := d.flow.Acquire(ctx, id)
	if errors.Is(err, workflow.ErrSubmissionInProgress) && d.metrics != nil {
		d.metrics.Transitions.WithLabelValues(action, Outcome(err)).Inc()
	}
	return ctx, release, err
}

// prepare loads the current view of a service for a transition.
func (d *Desk) prepare(ctx context.Context, id string) (View, error) {
	l, err := d.load(ctx, id)
	if err != nil {
		return l.View, err
	}
	if l.serviceErr != nil {
		return l.View, fmt.Errorf("%w: %w", ErrServiceUnavailable, l.serviceErr)
	}
	return l.View, nil
}

// finish applies the outcome of a transition to v and records it.
func (d *Desk) finish(ctx context.Context, v *View, next models.ServiceRecord, action string, amount float64, err error, okMsg, errPrefix string) {
	from := v.State
	if err == nil {
		v.Record = next
		d.refresh(v)
	}

	if d.metrics != nil {
		d.metrics.Transitions.WithLabelValues(action, Outcome(err)).Inc()
	}

	n := notify.Notice{
		Level:     notify.LevelSuccess,
		ServiceID: v.Record.RequestID,
		Action:    action,
		Message:   okMsg,
		Time:      d.now().UTC(),
	}
	if err != nil {
		n.Level = notify.LevelError
		n.Message = errPrefix + ": " + message(err)
		var ve *workflow.ValidationError
		if errors.As(err, &ve) {
			n.Field = ve.Field
			n.Message = ve.Message
		}
	}
	d.publish(ctx, n)
	v.Notices = append(v.Notices, n)

	d.record(ctx, models.JournalEntry{
		ServiceID: v.Record.RequestID,
		Action:    action,
		From:      from.String(),
		To:        v.State.String(),
		Success:   err == nil,
		Error:     errorText(err),
		Actor:     actorFrom(ctx),
		RequestID: client.RequestID(ctx),
		Amount:    amount,
		CreatedAt: d.now().UTC(),
	})
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (d *Desk) record(ctx context.Context, e models.JournalEntry) {
	if d.journal == nil {
		return
	}
	if err := d.journal.InsertEntry(ctx, e); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"service_id": e.ServiceID,
			"action":     e.Action,
		}).Warn("Failed to write journal entry")
	}
}

// Outcome classifies a transition result for metrics and logs.
func Outcome(err error) string {
	var ve *workflow.ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, workflow.ErrSubmissionInProgress):
		return "in_flight"
	default:
		return "backend_error"
	}
}

// History returns the newest journal entries of a service.
func (d *Desk) History(ctx context.Context, id string, limit int64) ([]models.JournalEntry, error) {
	if d.journal == nil {
		return nil, ErrJournalDisabled
	}
	if id == "" {
		return nil, workflow.ErrMissingServiceID
	}
	return db.ServiceHistory(ctx, d.journal, id, limit)
}
