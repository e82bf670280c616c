package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ukydev/service-desk/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingToken = errors.New("missing token")
	ErrNoSecret     = errors.New("no signing secret configured")
)

// Names the token is accepted under.
const (
	TokenQueryParam = "token"
	TokenCookieName = "jwt-token"
)

// Service handles authentication operations
type Service struct {
	jwtSecret []byte
	tokenExp  time.Duration
}

// NewService creates a new authentication service. With an empty secret the
// desk issues no tokens of its own and only the expiry of backend tokens is
// enforced.
func NewService(secret string, exp time.Duration) *Service {
	if exp <= 0 {
		exp = 24 * time.Hour
	}
	return &Service{
		jwtSecret: []byte(secret),
		tokenExp:  exp,
	}
}

// Verifies reports whether token signatures are checked.
func (s *Service) Verifies() bool {
	return len(s.jwtSecret) > 0
}

// GenerateToken generates a desk session token. backendToken, when set, is
// carried in the "bt" claim and forwarded to the backend on each call.
func (s *Service) GenerateToken(subject string, role models.Role, backendToken string) (string, error) {
	if !s.Verifies() {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": string(role),
		"exp":  now.Add(s.tokenExp).Unix(),
		"iat":  now.Unix(),
	}
	if backendToken != "" {
		claims["bt"] = backendToken
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT token and returns the claims
//
// Without a secret the token is taken to be a backend token: it is decoded
// for its claims but its signature is left to the backend.
func (s *Service) ValidateToken(tokenString string) (*models.Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	if s.Verifies() {
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrExpiredToken
			}
			return nil, ErrInvalidToken
		}
		if !token.Valid {
			return nil, ErrInvalidToken
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, ErrInvalidToken
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(time.Now()) {
			return nil, ErrExpiredToken
		}
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return nil, ErrInvalidToken
	}
	roleStr, _ := claims["role"].(string)
	backendToken, _ := claims["bt"].(string)

	out := &models.Claims{
		Subject:      subject,
		Role:         models.ParseRole(roleStr),
		BackendToken: backendToken,
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.Exp = int64(exp)
	}
	return out, nil
}

// ExtractTokenFromHeader extracts token from Authorization header
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrInvalidToken
	}

	return parts[1], nil
}

// TokenFromRequest finds the caller's token: the ?token= query parameter
// first, then the Authorization header, then the jwt-token cookie.
func TokenFromRequest(r *http.Request) (string, error) {
	if tok := strings.TrimSpace(r.URL.Query().Get(TokenQueryParam)); tok != "" {
		return tok, nil
	}
	if h := r.Header.Get("Authorization"); h != "" {
		return ExtractTokenFromHeader(h)
	}
	if c, err := r.Cookie(TokenCookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), nil
	}
	return "", ErrMissingToken
}

// ResolveToken picks the CLI token: the explicit value, then the named
// environment variable, then the contents of file.
func ResolveToken(explicit, envVar, file string) (string, error) {
	if tok := strings.TrimSpace(explicit); tok != "" {
		return tok, nil
	}
	if envVar != "" {
		if tok := strings.TrimSpace(os.Getenv(envVar)); tok != "" {
			return tok, nil
		}
	}
	if file == "" {
		return "", ErrMissingToken
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrMissingToken
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	if tok := strings.TrimSpace(string(data)); tok != "" {
		return tok, nil
	}
	return "", ErrMissingToken
}

type tokenKey struct{}

// WithToken returns a context carrying the raw bearer token to forward.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the token stored by WithToken.
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}
