package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/service-desk/internal/auth"
	"github.com/ukydev/service-desk/internal/client"
	"github.com/ukydev/service-desk/internal/middleware"
	"github.com/ukydev/service-desk/internal/models"
)

// MockLoginBackend is a mock implementation of LoginBackend
type MockLoginBackend struct {
	mock.Mock
}

func (m *MockLoginBackend) Login(ctx context.Context, req models.LoginRequest) (models.LoginResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.LoginResponse), args.Error(1)
}

func loginBody(t *testing.T, email, password string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(models.LoginRequest{Email: email, Password: password})
	if err != nil {
		t.Fatalf("Failed to marshal login request: %v", err)
	}
	return bytes.NewBuffer(body)
}

func TestAuthHandler_Login(t *testing.T) {
	creds := models.LoginRequest{Email: "admin@example.com", Password: "password123"}

	t.Run("wraps backend token in a desk session", func(t *testing.T) {
		authService := auth.NewService("test-secret", time.Hour)
		backend := new(MockLoginBackend)
		handler := NewAuthHandler(authService, backend)

		backend.On("Login", mock.Anything, creds).Return(models.LoginResponse{
			Token: "backend-jwt",
			Role:  "ADMIN",
		}, nil)

		req := httptest.NewRequest("POST", "/api/auth/login", loginBody(t, creds.Email, creds.Password))
		w := httptest.NewRecorder()

		handler.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEqual(t, "backend-jwt", response.Token)
		assert.Equal(t, models.RoleAdmin, response.Role)
		assert.Equal(t, creds.Email, response.Email)

		claims, err := authService.ValidateToken(response.Token)
		require.NoError(t, err)
		assert.Equal(t, "backend-jwt", claims.BackendToken)
		assert.Equal(t, creds.Email, claims.Subject)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.TokenCookieName, cookies[0].Name)
		assert.Equal(t, response.Token, cookies[0].Value)

		backend.AssertExpectations(t)
	})

	t.Run("passes backend token through without a secret", func(t *testing.T) {
		backend := new(MockLoginBackend)
		handler := NewAuthHandler(auth.NewService("", 0), backend)

		backend.On("Login", mock.Anything, creds).Return(models.LoginResponse{Token: "backend-jwt", Role: "serviceAdvisor"}, nil)

		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest("POST", "/api/auth/login", loginBody(t, creds.Email, creds.Password)))

		assert.Equal(t, http.StatusOK, w.Code)
		var response models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "backend-jwt", response.Token)
		assert.Equal(t, models.RoleServiceAdvisor, response.Role)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		backend := new(MockLoginBackend)
		handler := NewAuthHandler(auth.NewService("test-secret", time.Hour), backend)

		backend.On("Login", mock.Anything, mock.Anything).Return(models.LoginResponse{}, &client.AttemptsError{Errors: []error{
			&client.StatusError{URL: "/serviceAdvisor/api/login", StatusCode: http.StatusUnauthorized, Message: "Bad credentials"},
		}})

		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest("POST", "/api/auth/login", loginBody(t, creds.Email, "wrongpassword")))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Bad credentials")
		backend.AssertExpectations(t)
	})

	t.Run("backend unreachable", func(t *testing.T) {
		backend := new(MockLoginBackend)
		handler := NewAuthHandler(auth.NewService("test-secret", time.Hour), backend)

		backend.On("Login", mock.Anything, mock.Anything).Return(models.LoginResponse{}, assert.AnError)

		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest("POST", "/api/auth/login", loginBody(t, creds.Email, creds.Password)))

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("unknown role", func(t *testing.T) {
		backend := new(MockLoginBackend)
		handler := NewAuthHandler(auth.NewService("test-secret", time.Hour), backend)

		backend.On("Login", mock.Anything, creds).Return(models.LoginResponse{Token: "backend-jwt", Role: "MECHANIC"}, nil)

		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest("POST", "/api/auth/login", loginBody(t, creds.Email, creds.Password)))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("missing fields", func(t *testing.T) {
		backend := new(MockLoginBackend)
		handler := NewAuthHandler(auth.NewService("test-secret", time.Hour), backend)

		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest("POST", "/api/auth/login", loginBody(t, " ", "x")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		backend.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		handler := NewAuthHandler(auth.NewService("test-secret", time.Hour), new(MockLoginBackend))

		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest("POST", "/api/auth/login", bytes.NewBufferString("{")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		handler := NewAuthHandler(auth.NewService("test-secret", time.Hour), new(MockLoginBackend))

		w := httptest.NewRecorder()
		handler.Login(w, httptest.NewRequest("GET", "/api/auth/login", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestAuthHandler_GetProfile(t *testing.T) {
	handler := NewAuthHandler(auth.NewService("test-secret", time.Hour), new(MockLoginBackend))

	t.Run("advisor permissions", func(t *testing.T) {
		claims := &models.Claims{Subject: "sa@example.com", Role: models.RoleServiceAdvisor, Exp: 1767225600}
		req := httptest.NewRequest("GET", "/api/auth/profile", nil)
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, claims))
		w := httptest.NewRecorder()

		handler.GetProfile(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var profile ProfileResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
		assert.Equal(t, "sa@example.com", profile.Subject)
		assert.Equal(t, []string{models.PermViewServices, models.PermGenerateInvoice}, profile.Permissions)
		assert.Equal(t, time.Unix(1767225600, 0).UTC(), profile.ExpiresAt)
	})

	t.Run("no user in context", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetProfile(w, httptest.NewRequest("GET", "/api/auth/profile", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	handler := NewAuthHandler(auth.NewService("test-secret", time.Hour), new(MockLoginBackend))

	w := httptest.NewRecorder()
	handler.Logout(w, httptest.NewRequest("POST", "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.TokenCookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
