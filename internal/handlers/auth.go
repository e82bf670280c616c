package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/service-desk/internal/auth"
	"github.com/ukydev/service-desk/internal/client"
	"github.com/ukydev/service-desk/internal/middleware"
	"github.com/ukydev/service-desk/internal/models"
)

// LoginBackend exchanges credentials for a backend token.
type LoginBackend interface {
	Login(ctx context.Context, req models.LoginRequest) (models.LoginResponse, error)
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService *auth.Service
	backend     LoginBackend
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, backend LoginBackend) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		backend:     backend,
	}
}

// ProfileResponse describes the signed-in desk user.
type ProfileResponse struct {
	Subject     string      `json:"subject"`
	Role        models.Role `json:"role"`
	Permissions []string    `json:"permissions"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

// Login forwards the credentials to the backend. When the desk has a signing
// secret the backend token is wrapped in a desk session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var loginReq models.LoginRequest
	if err := json.Unmarshal(body, &loginReq); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	// Validate input
	loginReq.Email = strings.TrimSpace(loginReq.Email)
	if loginReq.Email == "" || loginReq.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	resp, err := h.backend.Login(r.Context(), loginReq)
	if err != nil {
		var se *client.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
			msg := se.Message
			if msg == "" {
				msg = "Invalid credentials"
			}
			http.Error(w, msg, http.StatusUnauthorized)
			return
		}
		log.WithError(err).Error("Backend login failed")
		http.Error(w, "Login service unavailable", http.StatusBadGateway)
		return
	}
	if resp.Token == "" {
		http.Error(w, "Login response did not include a token", http.StatusBadGateway)
		return
	}

	resp.Role = models.ParseRole(string(resp.Role))
	if !models.IsValidRole(resp.Role) {
		log.WithField("role", resp.Role).Warn("Login rejected: unknown role")
		http.Error(w, "Unsupported account role", http.StatusForbidden)
		return
	}
	if resp.Email == "" {
		resp.Email = loginReq.Email
	}

	if h.authService.Verifies() {
		token, err := h.authService.GenerateToken(resp.Email, resp.Role, resp.Token)
		if err != nil {
			http.Error(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}
		resp.Token = token
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    resp.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	log.WithFields(log.Fields{
		"email": resp.Email,
		"role":  resp.Role,
	}).Info("User logged in")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// GetProfile returns the current user's role and permissions
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	profile := ProfileResponse{
		Subject:     claims.Subject,
		Role:        claims.Role,
		Permissions: []string{},
	}
	if claims.Exp > 0 {
		profile.ExpiresAt = time.Unix(claims.Exp, 0).UTC()
	}
	for _, p := range []string{
		models.PermViewServices,
		models.PermGenerateInvoice,
		models.PermProcessPayment,
		models.PermProcessDelivery,
	} {
		if claims.Role.HasPermission(p) {
			profile.Permissions = append(profile.Permissions, p)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}

// Logout clears the session cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}
