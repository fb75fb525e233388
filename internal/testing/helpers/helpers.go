// Package helpers provides HTTP test utilities: session tokens for test
// users, a request builder and problem-details assertions.
package helpers

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgo/canvas/internal/model"
	"github.com/forgo/canvas/pkg/jwt"
)

// TestIssuer is the issuer used by test session services
const TestIssuer = "canvas-test"

// JWTHelper issues session tokens for test users
type JWTHelper struct {
	Service *jwt.Service
}

// NewJWTHelper creates a helper backed by an in-memory RSA key
func NewJWTHelper(t *testing.T) *JWTHelper {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("helpers: failed to generate RSA key: %v", err)
	}
	return &JWTHelper{
		Service: jwt.NewTestService(key, TestIssuer, time.Hour),
	}
}

// GenerateToken creates a valid session token for the user
func (h *JWTHelper) GenerateToken(t *testing.T, user *model.User) string {
	t.Helper()

	token, err := h.Service.Sign(claimsFor(user))
	if err != nil {
		t.Fatalf("helpers: failed to sign token: %v", err)
	}
	return token
}

// GenerateExpiredToken creates a session token that expired an hour ago
func (h *JWTHelper) GenerateExpiredToken(t *testing.T, user *model.User) string {
	t.Helper()

	past := h.Service.WithClock(func() time.Time { return time.Now().Add(-3 * time.Hour) })
	token, err := past.Sign(claimsFor(user))
	if err != nil {
		t.Fatalf("helpers: failed to sign token: %v", err)
	}
	return token
}

func claimsFor(user *model.User) jwt.Claims {
	return jwt.Claims{
		Subject:       user.ID,
		UserID:        user.ID,
		WalletAddress: user.WalletAddress,
		Role:          string(user.Role),
	}
}

// RequestBuilder helps construct HTTP requests for testing
type RequestBuilder struct {
	t       *testing.T
	method  string
	path    string
	body    interface{}
	headers map[string]string
}

// NewRequest creates a new request builder
func NewRequest(t *testing.T, method, path string) *RequestBuilder {
	t.Helper()
	return &RequestBuilder{t: t, method: method, path: path, headers: make(map[string]string)}
}

// WithBody sets the request body (JSON encoded)
func (rb *RequestBuilder) WithBody(body interface{}) *RequestBuilder {
	rb.body = body
	return rb
}

// WithBearer sets the Authorization header
func (rb *RequestBuilder) WithBearer(token string) *RequestBuilder {
	rb.headers["Authorization"] = "Bearer " + token
	return rb
}

// Build creates the HTTP request
func (rb *RequestBuilder) Build() *http.Request {
	rb.t.Helper()

	var bodyReader io.Reader
	if rb.body != nil {
		bodyBytes, err := json.Marshal(rb.body)
		if err != nil {
			rb.t.Fatalf("helpers: failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(rb.method, rb.path, bodyReader)
	if rb.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range rb.headers {
		req.Header.Set(k, v)
	}
	return req
}

// AssertProblemDetails validates an RFC 9457 response and returns it
func AssertProblemDetails(t *testing.T, resp *httptest.ResponseRecorder, expectedStatus int, expectedCode model.ErrorCode) *model.ProblemDetails {
	t.Helper()

	if resp.Code != expectedStatus {
		t.Errorf("expected status %d, got %d. Body: %s", expectedStatus, resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected application/problem+json, got %q", ct)
	}

	var pd model.ProblemDetails
	if err := json.Unmarshal(resp.Body.Bytes(), &pd); err != nil {
		t.Fatalf("helpers: failed to decode problem details: %v", err)
	}
	if expectedCode != 0 && pd.Code != expectedCode {
		t.Errorf("expected code %d, got %d", expectedCode, pd.Code)
	}
	return &pd
}

// DecodeData decodes the {"data": ...} envelope of a success response
func DecodeData(t *testing.T, resp *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("helpers: failed to decode response: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("helpers: failed to decode data: %v", err)
	}
}
