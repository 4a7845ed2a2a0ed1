package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealdrop/mealdrop/internal/api/middleware"
	"github.com/mealdrop/mealdrop/internal/auth"
	"github.com/mealdrop/mealdrop/internal/user"
)

func newJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-signing-key-for-middleware",
		Issuer:     "https://api.mealdrop.app",
		Audience:   "mealdrop-api",
	})
}

func authedRequest(t *testing.T, svc *auth.JWTService, userID, role string) *http.Request {
	t.Helper()
	token, _, err := svc.GenerateAccessToken(userID, role)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAuth_ValidToken(t *testing.T) {
	svc := newJWTService()

	var gotUserID string
	var gotRole user.Role
	handler := middleware.Auth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = middleware.GetUserID(r.Context())
		gotRole = middleware.GetUserRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, svc, "usr_1", "agent"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "usr_1", gotUserID)
	assert.Equal(t, user.RoleAgent, gotRole)
}

func TestAuth_MissingHeader(t *testing.T) {
	handler := middleware.Auth(newJWTService())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orders", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestAuth_MalformedHeader(t *testing.T) {
	handler := middleware.Auth(newJWTService())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, header := range []string{"Bearer", "Bearer ", "Basic abc", "garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
		req.Header.Set("Authorization", header)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestAuth_TokenFromDifferentKey(t *testing.T) {
	other := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "a-different-key-entirely",
		Issuer:     "https://api.mealdrop.app",
		Audience:   "mealdrop-api",
	})

	handler := middleware.Auth(newJWTService())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, other, "usr_1", "customer"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	svc := newJWTService()

	handler := middleware.Auth(svc)(
		middleware.RequireRole(user.RoleAdmin, user.RoleAgent)(
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

	tests := []struct {
		role       string
		wantStatus int
	}{
		{"admin", http.StatusOK},
		{"agent", http.StatusOK},
		{"customer", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, authedRequest(t, svc, "usr_x", tt.role))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	handler := middleware.RequireRole(user.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orders", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
