package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgo/canvas/internal/model"
	"github.com/forgo/canvas/internal/service"
	"github.com/forgo/canvas/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessions struct {
	claims *jwt.Claims
	err    error
	seen   string
}

func (s *stubSessions) ValidateSession(token string) (*jwt.Claims, error) {
	s.seen = token
	return s.claims, s.err
}

// captureHandler records the request it was called with
type captureHandler struct {
	req *http.Request
}

func (c *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.req = r
	w.WriteHeader(http.StatusOK)
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) model.ProblemDetails {
	t.Helper()
	var pd model.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	return pd
}

func TestAuth_ValidSession(t *testing.T) {
	t.Parallel()

	sessions := &stubSessions{claims: &jwt.Claims{UserID: "user-1", WalletAddress: "0.0.48123", Role: "buyer"}}
	next := &captureHandler{}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "bearer tok-123")
	rec := httptest.NewRecorder()
	Auth(sessions)(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-123", sessions.seen)
	require.NotNil(t, next.req)
	assert.Equal(t, "user-1", GetUserID(next.req.Context()))
	assert.Equal(t, "0.0.48123", GetWallet(next.req.Context()))
	assert.Equal(t, "buyer", GetClaims(next.req.Context()).Role)
}

func TestAuth_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		err    error
		code   model.ErrorCode
	}{
		{"missing header", "", nil, model.ErrCodeUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", nil, model.ErrCodeUnauthorized},
		{"empty token", "Bearer ", nil, model.ErrCodeUnauthorized},
		{"expired", "Bearer tok", service.ErrSessionExpired, model.ErrCodeTokenExpired},
		{"invalid", "Bearer tok", service.ErrSessionInvalid, model.ErrCodeTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			next := &captureHandler{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			Auth(&stubSessions{err: tt.err})(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, next.req)
			assert.Equal(t, tt.code, decodeProblem(t, rec).Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	sessions := &stubSessions{claims: &jwt.Claims{UserID: "u", Role: "buyer"}}

	serve := func(roles ...model.UserRole) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok")
		rec := httptest.NewRecorder()
		Chain(&captureHandler{}, Auth(sessions), RequireRole(roles...)).ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve(model.UserRoleBuyer, model.UserRoleArtist))
	assert.Equal(t, http.StatusForbidden, serve(model.UserRoleAdmin))

	rec := httptest.NewRecorder()
	RequireRole(model.UserRoleBuyer)(&captureHandler{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
