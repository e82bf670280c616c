package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/service-desk/internal/client"
	"github.com/ukydev/service-desk/internal/desk"
	"github.com/ukydev/service-desk/internal/middleware"
	"github.com/ukydev/service-desk/internal/models"
	"github.com/ukydev/service-desk/internal/notify"
	"github.com/ukydev/service-desk/internal/workflow"
)

const defaultHistoryLimit = 50

// DeskService is what the service handlers need from the desk.
type DeskService interface {
	List(ctx context.Context) ([]models.ServiceRecord, error)
	Load(ctx context.Context, id string) (desk.View, error)
	GenerateInvoice(ctx context.Context, id string, in desk.InvoiceInput) (desk.View, error)
	RecordPayment(ctx context.Context, id string, req models.PaymentRequest) (desk.View, error)
	ScheduleDelivery(ctx context.Context, id string, req models.DeliveryRequest) (desk.View, error)
	History(ctx context.Context, id string, limit int64) ([]models.JournalEntry, error)
}

// ServiceHandler serves the completed-service endpoints
type ServiceHandler struct {
	desk DeskService
}

// NewServiceHandler creates a new service handler
func NewServiceHandler(d DeskService) *ServiceHandler {
	return &ServiceHandler{desk: d}
}

// ErrorResponse is the body of a failed desk request.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Field   string          `json:"field,omitempty"`
	Notices []notify.Notice `json:"notices,omitempty"`
}

// List returns every completed service
func (h *ServiceHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	services, err := h.desk.List(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to list completed services")
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

// Get returns the view of one service
func (h *ServiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view, err := h.desk.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GenerateInvoice invoices a service. The body is optional; without an
// email address the customer's address on record is used.
func (h *ServiceHandler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in desk.InvoiceInput
	if !readJSON(w, r, &in, true) {
		return
	}

	view, err := h.desk.GenerateInvoice(actorContext(r), r.PathValue("id"), in)
	respond(w, view, err)
}

// Payment records a payment against a service
func (h *ServiceHandler) Payment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.PaymentRequest
	if !readJSON(w, r, &req, false) {
		return
	}

	view, err := h.desk.RecordPayment(actorContext(r), r.PathValue("id"), req)
	respond(w, view, err)
}

// Delivery schedules a pickup or a home delivery
func (h *ServiceHandler) Delivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.DeliveryRequest
	if !readJSON(w, r, &req, false) {
		return
	}

	view, err := h.desk.ScheduleDelivery(actorContext(r), r.PathValue("id"), req)
	respond(w, view, err)
}

// History returns the journaled actions of a service, newest first
func (h *ServiceHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := int64(defaultHistoryLimit)
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.desk.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func actorContext(r *http.Request) context.Context {
	ctx := r.Context()
	if claims, ok := middleware.GetUserFromContext(ctx); ok {
		ctx = desk.WithActor(ctx, claims.Subject)
	}
	return ctx
}

// readJSON decodes the request body into dst. An empty body is accepted
// only when optional is set.
func readJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	if len(body) == 0 {
		if optional {
			return true
		}
		http.Error(w, "Request body is required", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, view desk.View, err error) {
	if err != nil {
		writeError(w, err, view.Notices)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// StatusFor maps a desk error onto an HTTP status code.
func StatusFor(err error) int {
	var ve *workflow.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, workflow.ErrMissingServiceID):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrSubmissionInProgress):
		return http.StatusTooManyRequests
	case errors.Is(err, desk.ErrJournalDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error, notices []notify.Notice) {
	resp := ErrorResponse{Error: err.Error(), Notices: notices}
	var ve *workflow.ValidationError
	if errors.As(err, &ve) {
		resp.Error = ve.Message
		resp.Field = ve.Field
	} else if msg := client.Message(err); msg != "" {
		resp.Error = msg
	}
	writeJSON(w, StatusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}
