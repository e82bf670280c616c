// Package client talks to the shop's REST backend. Each operation has an
// ordered list of candidate endpoints; the first one to answer with a 2xx
// status wins.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/service-desk/internal/auth"
	"github.com/ukydev/service-desk/internal/models"
)

// Endpoints lists the candidate paths for each backend operation, in
// priority order. "{id}" is replaced by the (escaped) service or customer id.
type Endpoints struct {
	CompletedServices []string `yaml:"completed_services"`
	Service           []string `yaml:"service"`
	InvoiceDetails    []string `yaml:"invoice_details"`
	Customer          []string `yaml:"customer"`
	Invoice           []string `yaml:"invoice"`
	Payment           []string `yaml:"payment"`
	Delivery          []string `yaml:"delivery"`
	Login             []string `yaml:"login"`
}

// DefaultEndpoints returns the endpoint lists of the admin console.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		CompletedServices: []string{"/admin/api/completed-services"},
		Service: []string{
			"/admin/api/completed-services/{id}",
			"/admin/api/services/{id}/details",
			"/admin/api/service-details/{id}",
		},
		InvoiceDetails: []string{
			"/admin/api/completed-services/{id}/invoice-details",
			"/admin/api/vehicle-tracking/service-request/{id}",
		},
		Customer: []string{"/admin/customers/api/{id}"},
		Invoice:  []string{"/admin/api/invoices/service-request/{id}/generate"},
		Payment: []string{
			"/admin/api/vehicle-tracking/process-payment",
			"/admin/api/vehicle-tracking/service-request/{id}/payment",
			"/admin/api/completed-services/{id}/payment",
		},
		Delivery: []string{
			"/admin/api/vehicle-tracking/service-request/{id}/dispatch",
			"/admin/api/completed-services/{id}/dispatch",
			"/admin/api/delivery/service-request/{id}",
		},
		Login: []string{"/serviceAdvisor/api/login"},
	}
}

// Observer is told about every backend call. path is the endpoint template,
// status is 0 for transport failures.
type Observer func(method, path string, status int, elapsed time.Duration)

// Client is a backend REST client. It is safe for concurrent use.
type Client struct {
	baseURL   string
	endpoints Endpoints
	http      *http.Client
	observe   Observer
}

// Option configures a Client.
type Option func(*Client)

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, endpoints Endpoints, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: endpoints,
		http:      &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type requestIDKey struct{}

// WithRequestID returns a context whose backend calls carry id as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func expand(tpl, id string) string {
	return strings.ReplaceAll(tpl, "{id}", url.PathEscape(id))
}

// do sends one request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, tpl, id string, body, out any) error {
	target := c.baseURL + expand(tpl, id)

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := auth.TokenFromContext(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	reqID := RequestID(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(method, tpl, 0, start)
		log.WithFields(log.Fields{
			"method":     method,
			"url":        target,
			"request_id": reqID,
		}).WithError(err).Debug("Backend request failed")
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	c.record(method, tpl, resp.StatusCode, start)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithFields(log.Fields{
			"method":     method,
			"url":        target,
			"status":     resp.StatusCode,
			"request_id": reqID,
		}).Debug("Backend returned error status")
		return &StatusError{URL: target, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return nil
}

func (c *Client) record(method, tpl string, status int, start time.Time) {
	if c.observe != nil {
		c.observe(method, tpl, status, time.Since(start))
	}
}

// errorMessage pulls "error" or "message" out of a JSON error body.
func errorMessage(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	for _, k := range []string{"error", "message"} {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func getJSON[T any](ctx context.Context, c *Client, candidates []string, id string) (T, error) {
	return FirstSuccess(ctx, candidates, func(ctx context.Context, tpl string) (T, error) {
		var out T
		err := c.do(ctx, http.MethodGet, tpl, id, nil, &out)
		return out, err
	})
}

func postJSON[T any](ctx context.Context, c *Client, candidates []string, id string, body any) (T, error) {
	return FirstSuccess(ctx, candidates, func(ctx context.Context, tpl string) (T, error) {
		var out T
		err := c.do(ctx, http.MethodPost, tpl, id, body, &out)
		return out, err
	})
}

// post sends body to the candidates and ignores the response body, so any
// 2xx counts as done.
func post(ctx context.Context, c *Client, candidates []string, id string, body any) error {
	_, err := FirstSuccess(ctx, candidates, func(ctx context.Context, tpl string) (struct{}, error) {
		return struct{}{}, c.do(ctx, http.MethodPost, tpl, id, body, nil)
	})
	return err
}

// ListCompletedServices fetches the raw completed-service list.
func (c *Client) ListCompletedServices(ctx context.Context) ([]any, error) {
	return getJSON[[]any](ctx, c, c.endpoints.CompletedServices, "")
}

// FetchService fetches the raw service payload.
func (c *Client) FetchService(ctx context.Context, id string) (map[string]any, error) {
	return getJSON[map[string]any](ctx, c, c.endpoints.Service, id)
}

// FetchInvoiceDetails fetches the raw materials and labor payload.
func (c *Client) FetchInvoiceDetails(ctx context.Context, id string) (map[string]any, error) {
	return getJSON[map[string]any](ctx, c, c.endpoints.InvoiceDetails, id)
}

// FetchCustomer fetches the customer profile used to enrich a service.
func (c *Client) FetchCustomer(ctx context.Context, customerID string) (map[string]any, error) {
	return getJSON[map[string]any](ctx, c, c.endpoints.Customer, customerID)
}

// GenerateInvoice posts an invoice request.
func (c *Client) GenerateInvoice(ctx context.Context, serviceID string, req models.InvoiceRequest) (models.InvoiceResponse, error) {
	return postJSON[models.InvoiceResponse](ctx, c, c.endpoints.Invoice, serviceID, req)
}

// ProcessPayment posts a payment request.
func (c *Client) ProcessPayment(ctx context.Context, serviceID string, req models.PaymentRequest) error {
	return post(ctx, c, c.endpoints.Payment, serviceID, req)
}

// ProcessDelivery posts a pickup or delivery request.
func (c *Client) ProcessDelivery(ctx context.Context, serviceID string, req models.DeliveryRequest) error {
	return post(ctx, c, c.endpoints.Delivery, serviceID, req)
}

// Login exchanges credentials for a backend token.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (models.LoginResponse, error) {
	return postJSON[models.LoginResponse](ctx, c, c.endpoints.Login, "", req)
}
