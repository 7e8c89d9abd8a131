package apiapp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	authsvc "github.com/storycraft/billing/internal/services/auth"
)

func okHandler(t *testing.T, wantUser string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authsvc.IdentityFromContext(r.Context())
		if wantUser != "" && (!ok || identity.UserID != wantUser) {
			t.Fatalf("unexpected identity: %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Code
}

func TestAuthMiddlewareResolvesIdentity(t *testing.T) {
	manager := authsvc.NewJWTManager("test-secret", time.Hour)
	token, _, err := manager.GenerateAccessToken("user-42")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/subscription", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	AuthMiddleware(authsvc.NewResolver(manager), zap.NewNop())(okHandler(t, "user-42")).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNoContent)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	manager := authsvc.NewJWTManager("test-secret", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/v1/subscription", nil)
	rr := httptest.NewRecorder()
	AuthMiddleware(authsvc.NewResolver(manager), zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called without token")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "AUTH_REQUIRED" {
		t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
	}
}

func TestAuthMiddlewareDistinguishesExpiredToken(t *testing.T) {
	manager := authsvc.NewJWTManager("test-secret", time.Hour)
	past := time.Now().Add(-2 * time.Hour)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "storycraft",
		Subject:   "user-42",
		IssuedAt:  jwt.NewNumericDate(past),
		ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/subscription", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rr := httptest.NewRecorder()
	AuthMiddleware(authsvc.NewResolver(manager), zap.NewNop())(okHandler(t, "")).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "AUTH_EXPIRED" {
		t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
	}
}

func TestAuthMiddlewareRejectsForeignSignature(t *testing.T) {
	other := authsvc.NewJWTManager("other-secret", time.Hour)
	token, _, err := other.GenerateAccessToken("user-42")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/subscription", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	AuthMiddleware(authsvc.NewResolver(authsvc.NewJWTManager("test-secret", time.Hour)), nil)(okHandler(t, "")).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "AUTH_REQUIRED" {
		t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
	}
}

func TestCallbackSecretMiddleware(t *testing.T) {
	mw := CallbackSecretMiddleware("cb-secret", zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", strings.NewReader(`{}`))
	req.Header.Set("X-Callback-Secret", "wrong")
	rr := httptest.NewRecorder()
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called with a bad secret")
	})).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/payments/callback", strings.NewReader(`{}`))
	req.Header.Set("X-Callback-Secret", "cb-secret")
	rr = httptest.NewRecorder()
	mw(okHandler(t, "")).ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status with valid secret: %d", rr.Code)
	}
}

func TestIPRateLimiterPerClient(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	handler := limiter.Middleware()(okHandler(t, ""))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if call("10.0.0.1:1000") != http.StatusNoContent || call("10.0.0.1:1001") != http.StatusNoContent {
		t.Fatalf("burst should be allowed")
	}
	if code := call("10.0.0.1:1002"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := call("10.0.0.2:1000"); code != http.StatusNoContent {
		t.Fatalf("other clients must not be throttled, got %d", code)
	}

	now = now.Add(time.Second)
	if code := call("10.0.0.1:1003"); code != http.StatusNoContent {
		t.Fatalf("token should refill after a second, got %d", code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	if token, ok := extractBearerToken("bearer abc"); !ok || token != "abc" {
		t.Fatalf("unexpected token: %q %v", token, ok)
	}
	if _, ok := extractBearerToken("Basic abc"); ok {
		t.Fatalf("basic auth must be rejected")
	}
	if _, ok := extractBearerToken("Bearer   "); ok {
		t.Fatalf("empty token must be rejected")
	}
}
