package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/service-desk/internal/auth"
	"github.com/ukydev/service-desk/internal/models"
)

func TestFirstSuccess(t *testing.T) {
	t.Run("short-circuits on first success", func(t *testing.T) {
		var tried []string
		v, err := FirstSuccess(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, c string) (string, error) {
			tried = append(tried, c)
			if c == "a" {
				return "", errors.New("a failed")
			}
			return "ok:" + c, nil
		})

		require.NoError(t, err)
		assert.Equal(t, "ok:b", v)
		assert.Equal(t, []string{"a", "b"}, tried)
	})

	t.Run("aggregates every failure", func(t *testing.T) {
		errA := errors.New("a failed")
		errB := &StatusError{URL: "b", StatusCode: 404}

		_, err := FirstSuccess(context.Background(), []string{"a", "b"}, func(_ context.Context, c string) (int, error) {
			if c == "a" {
				return 0, errA
			}
			return 0, errB
		})

		var attempts *AttemptsError
		require.ErrorAs(t, err, &attempts)
		assert.Len(t, attempts.Errors, 2)
		assert.ErrorIs(t, err, errA)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 404, se.StatusCode)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := FirstSuccess(context.Background(), nil, func(context.Context, string) (int, error) {
			return 1, nil
		})
		assert.ErrorIs(t, err, ErrNoCandidates)
	})

	t.Run("cancelled context stops the chain", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0

		_, err := FirstSuccess(ctx, []string{"a", "b", "c"}, func(context.Context, string) (int, error) {
			calls++
			cancel()
			return 0, errors.New("down")
		})

		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMessage(t *testing.T) {
	err := &AttemptsError{Errors: []error{
		&StatusError{URL: "a", StatusCode: 500, Message: "Invoice already exists"},
		&StatusError{URL: "b", StatusCode: 404},
	}}
	assert.Equal(t, "Invoice already exists", Message(err))
	assert.Equal(t, "boom", Message(errors.New("boom")))
	assert.Equal(t, "", Message(nil))
}

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	ReqID  string
	Body   map[string]any
}

func newBackend(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
			ReqID:  r.Header.Get("X-Request-ID"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		mu.Lock()
		seen = append(seen, rec)
		mu.Unlock()

		handler, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		handler(w)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), seen...)
	}
}

func jsonReply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestClient_FetchServiceFallsBack(t *testing.T) {
	srv, seen := newBackend(t, map[string]func(http.ResponseWriter){
		"GET /admin/api/completed-services/42": jsonReply(http.StatusInternalServerError, `{"error":"boom"}`),
		"GET /admin/api/services/42/details":   jsonReply(http.StatusOK, `{"requestId":42,"customerName":"Asha Rao"}`),
	})
	c := New(srv.URL, DefaultEndpoints(), time.Second)

	ctx := auth.WithToken(context.Background(), "tok")
	raw, err := c.FetchService(ctx, "42")

	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", raw["customerName"])

	reqs := seen()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/admin/api/completed-services/42", reqs[0].Path)
	assert.Equal(t, "/admin/api/services/42/details", reqs[1].Path)
	assert.Equal(t, "Bearer tok", reqs[1].Auth)
	assert.NotEmpty(t, reqs[1].ReqID)
}

func TestClient_FetchServiceAllFail(t *testing.T) {
	srv, seen := newBackend(t, nil)
	c := New(srv.URL, DefaultEndpoints(), time.Second)

	_, err := c.FetchService(context.Background(), "7")

	var attempts *AttemptsError
	require.ErrorAs(t, err, &attempts)
	assert.Len(t, attempts.Errors, 3)
	assert.Len(t, seen(), 3)
}

func TestClient_MalformedJSON(t *testing.T) {
	srv, _ := newBackend(t, map[string]func(http.ResponseWriter){
		"GET /admin/api/completed-services": jsonReply(http.StatusOK, `{not json`),
	})
	c := New(srv.URL, DefaultEndpoints(), time.Second)

	_, err := c.ListCompletedServices(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestClient_GenerateInvoice(t *testing.T) {
	srv, seen := newBackend(t, map[string]func(http.ResponseWriter){
		"POST /admin/api/invoices/service-request/42/generate": jsonReply(http.StatusOK, `{"invoiceId":301}`),
	})
	c := New(srv.URL, DefaultEndpoints(), time.Second)

	resp, err := c.GenerateInvoice(context.Background(), "42", models.InvoiceRequest{
		ServiceID:        "42",
		EmailAddress:     "asha@example.com",
		Total:            1593,
		MembershipStatus: models.MembershipPremium,
	})

	require.NoError(t, err)
	assert.Equal(t, 301.0, resp.InvoiceID.Value)

	reqs := seen()
	require.Len(t, reqs, 1)
	assert.Equal(t, "asha@example.com", reqs[0].Body["emailAddress"])
	assert.Equal(t, 1593.0, reqs[0].Body["total"])
	assert.Equal(t, "Premium", reqs[0].Body["membershipStatus"])
}

func TestClient_GenerateInvoiceErrorMessage(t *testing.T) {
	srv, _ := newBackend(t, map[string]func(http.ResponseWriter){
		"POST /admin/api/invoices/service-request/42/generate": jsonReply(http.StatusBadRequest, `{"error":"Invoice already exists"}`),
	})
	c := New(srv.URL, DefaultEndpoints(), time.Second)

	_, err := c.GenerateInvoice(context.Background(), "42", models.InvoiceRequest{})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "Invoice already exists", Message(err))
}

func TestClient_ProcessPaymentSecondEndpoint(t *testing.T) {
	srv, seen := newBackend(t, map[string]func(http.ResponseWriter){
		"POST /admin/api/vehicle-tracking/service-request/42/payment": jsonReply(http.StatusOK, ``),
	})
	var observed []int
	c := New(srv.URL, DefaultEndpoints(), time.Second, WithObserver(func(_, _ string, status int, _ time.Duration) {
		observed = append(observed, status)
	}))

	err := c.ProcessPayment(context.Background(), "42", models.PaymentRequest{ServiceID: "42", PaymentMethod: "Card", Amount: 10})

	require.NoError(t, err)
	assert.Len(t, seen(), 2)
	assert.Equal(t, []int{http.StatusNotFound, http.StatusOK}, observed)
}

func TestClient_ProcessDeliveryNeverTriesAfterSuccess(t *testing.T) {
	srv, seen := newBackend(t, map[string]func(http.ResponseWriter){
		"POST /admin/api/vehicle-tracking/service-request/42/dispatch": jsonReply(http.StatusOK, `{"status":"ok"}`),
		"POST /admin/api/completed-services/42/dispatch":               jsonReply(http.StatusOK, `{"status":"ok"}`),
	})
	c := New(srv.URL, DefaultEndpoints(), time.Second)

	err := c.ProcessDelivery(context.Background(), "42", models.DeliveryRequest{DeliveryType: models.DeliveryPickup})

	require.NoError(t, err)
	assert.Len(t, seen(), 1)
}

func TestClient_PlainTextSuccessIsNotRetried(t *testing.T) {
	plain := func(body string) func(w http.ResponseWriter) {
		return func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(body))
		}
	}
	srv, seen := newBackend(t, map[string]func(http.ResponseWriter){
		"POST /admin/api/vehicle-tracking/process-payment":             plain("Payment processed"),
		"POST /admin/api/vehicle-tracking/service-request/42/payment":  plain("Payment processed"),
		"POST /admin/api/vehicle-tracking/service-request/42/dispatch": plain("Dispatched"),
		"POST /admin/api/completed-services/42/dispatch":               plain("Dispatched"),
	})
	c := New(srv.URL, DefaultEndpoints(), time.Second)

	require.NoError(t, c.ProcessPayment(context.Background(), "42", models.PaymentRequest{PaymentMethod: "Card", Amount: 10}))
	require.Len(t, seen(), 1)
	assert.Equal(t, "/admin/api/vehicle-tracking/process-payment", seen()[0].Path)

	require.NoError(t, c.ProcessDelivery(context.Background(), "42", models.DeliveryRequest{DeliveryType: models.DeliveryPickup}))
	require.Len(t, seen(), 2)
	assert.Equal(t, "/admin/api/vehicle-tracking/service-request/42/dispatch", seen()[1].Path)
}

func TestClient_RequestIDFromContext(t *testing.T) {
	srv, seen := newBackend(t, map[string]func(http.ResponseWriter){
		"GET /admin/api/completed-services": jsonReply(http.StatusOK, `[{"requestId":1}]`),
	})
	c := New(srv.URL, DefaultEndpoints(), time.Second)

	list, err := c.ListCompletedServices(WithRequestID(context.Background(), "req-1"))

	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, "req-1", seen()[0].ReqID)
}

func TestClient_Login(t *testing.T) {
	srv, seen := newBackend(t, map[string]func(http.ResponseWriter){
		"POST /serviceAdvisor/api/login": jsonReply(http.StatusOK, `{"token":"abc","role":"serviceAdvisor","firstName":"Ravi"}`),
	})
	c := New(srv.URL, DefaultEndpoints(), time.Second)

	resp, err := c.Login(context.Background(), models.LoginRequest{Email: "ravi@example.com", Password: "pw"})

	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Token)
	assert.Equal(t, models.RoleServiceAdvisor, resp.Role)
	assert.Equal(t, "ravi@example.com", seen()[0].Body["email"])
}

func TestExpand(t *testing.T) {
	assert.Equal(t, "/x/a%2Fb/y", expand("/x/{id}/y", "a/b"))
	assert.Equal(t, "/x", expand("/x", "42"))
}
