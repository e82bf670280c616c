package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/service-desk/internal/models"
)

func TestNewService(t *testing.T) {
	service := NewService("secret", 0)
	assert.NotNil(t, service)
	assert.True(t, service.Verifies())
	assert.Equal(t, 24*time.Hour, service.tokenExp)

	assert.False(t, NewService("", time.Hour).Verifies())
}

func TestService_GenerateToken(t *testing.T) {
	service := NewService("secret", time.Hour)

	token, err := service.GenerateToken("advisor@example.com", models.RoleServiceAdvisor, "")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = NewService("", time.Hour).GenerateToken("x", models.RoleAdmin, "")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestService_ValidateToken(t *testing.T) {
	service := NewService("secret", time.Hour)

	token, err := service.GenerateToken("admin@example.com", models.RoleAdmin, "backend-token")
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		claims, err := service.ValidateToken(token)
		assert.NoError(t, err)
		assert.Equal(t, "admin@example.com", claims.Subject)
		assert.Equal(t, models.RoleAdmin, claims.Role)
		assert.Greater(t, claims.Exp, time.Now().Unix())
		assert.Equal(t, "backend-token", claims.ForwardToken(token))
	})

	t.Run("bearer prefix", func(t *testing.T) {
		claims, err := service.ValidateToken("Bearer " + token)
		assert.NoError(t, err)
		assert.Equal(t, "admin@example.com", claims.Subject)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewService("other", time.Hour).ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := service.ValidateToken("invalid.token.here")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := service.ValidateToken("")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewService("secret", time.Hour)
		expired.tokenExp = -time.Hour
		tok, err := expired.GenerateToken("admin@example.com", models.RoleAdmin, "")
		require.NoError(t, err)

		_, err = service.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestService_ValidateTokenUnverified(t *testing.T) {
	backendToken := func(exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  "advisor@example.com",
			"role": "ROLE_SERVICE_ADVISOR",
			"exp":  exp.Unix(),
		})
		s, err := tok.SignedString([]byte("backend-only-secret"))
		require.NoError(t, err)
		return s
	}
	service := NewService("", time.Hour)

	claims, err := service.ValidateToken(backendToken(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "advisor@example.com", claims.Subject)
	assert.Equal(t, models.RoleServiceAdvisor, claims.Role)
	assert.Equal(t, "raw", claims.ForwardToken("raw"))

	_, err = service.ValidateToken(backendToken(time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestExtractTokenFromHeader(t *testing.T) {
	tok, err := ExtractTokenFromHeader("Bearer abc")
	assert.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = ExtractTokenFromHeader("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = ExtractTokenFromHeader("Basic abc")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenFromRequest(t *testing.T) {
	t.Run("query wins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/completed-services?token=from-query", nil)
		req.Header.Set("Authorization", "Bearer from-header")
		req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "from-cookie"})

		tok, err := TokenFromRequest(req)
		assert.NoError(t, err)
		assert.Equal(t, "from-query", tok)
	})

	t.Run("header before cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer from-header")
		req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "from-cookie"})

		tok, err := TokenFromRequest(req)
		assert.NoError(t, err)
		assert.Equal(t, "from-header", tok)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "from-cookie"})

		tok, err := TokenFromRequest(req)
		assert.NoError(t, err)
		assert.Equal(t, "from-cookie", tok)
	})

	t.Run("none", func(t *testing.T) {
		_, err := TokenFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestResolveToken(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(file, []byte("from-file\n"), 0o600))

	t.Setenv("DESK_TOKEN_TEST", "from-env")

	tok, err := ResolveToken("from-flag", "DESK_TOKEN_TEST", file)
	assert.NoError(t, err)
	assert.Equal(t, "from-flag", tok)

	tok, err = ResolveToken("", "DESK_TOKEN_TEST", file)
	assert.NoError(t, err)
	assert.Equal(t, "from-env", tok)

	t.Setenv("DESK_TOKEN_TEST", "")
	tok, err = ResolveToken("", "DESK_TOKEN_TEST", file)
	assert.NoError(t, err)
	assert.Equal(t, "from-file", tok)

	_, err = ResolveToken("", "DESK_TOKEN_TEST", filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestTokenContext(t *testing.T) {
	assert.Empty(t, TokenFromContext(context.Background()))
	ctx := WithToken(context.Background(), "abc")
	assert.Equal(t, "abc", TokenFromContext(ctx))
}
