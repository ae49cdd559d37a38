package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pawmarket/petcare/libs/auth"
	"github.com/pawmarket/petcare/libs/httpx"
)

const testSecret = "test-secret"

type seen struct {
	Path   string `json:"path"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func newGateway(t *testing.T) http.Handler {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, seen{
			Path:   r.URL.Path,
			UserID: r.Header.Get(httpx.UserIDHeader),
			Role:   r.Header.Get(httpx.RoleHeader),
		})
	}))
	t.Cleanup(upstream.Close)
	target, err := url.Parse(upstream.URL)
	if err != nil {
		t.Fatalf("parse upstream: %v", err)
	}

	verifier, err := auth.NewVerifier(context.Background(), auth.VerifierConfig{HS256Secret: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	mux := http.NewServeMux()
	registerRoutes(mux, upstreams{auth: target, booking: target}, verifier)
	return mux
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	raw, err := auth.SignHS256(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}, testSecret)
	if err != nil {
		t.Fatalf("SignHS256: %v", err)
	}
	return raw
}

func send(t *testing.T, h http.Handler, method, path, bearer string, headers map[string]string) (*httptest.ResponseRecorder, seen) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var s seen
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
			t.Fatalf("decode upstream echo: %v", err)
		}
	}
	return rec, s
}

func TestPublicSlotViewsStripSpoofedIdentity(t *testing.T) {
	h := newGateway(t)
	for _, path := range []string{
		"/api/v1/services/prov-1/availability?date=2024-06-01",
		"/api/v1/providers/prov-1/availability-summary",
	} {
		rec, s := send(t, h, http.MethodGet, path, "", map[string]string{httpx.UserIDHeader: "mallory"})
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		if s.UserID != "" {
			t.Fatalf("%s: spoofed identity forwarded: %q", path, s.UserID)
		}
	}
}

func TestReservationRoutesRequireToken(t *testing.T) {
	h := newGateway(t)

	rec, _ := send(t, h, http.MethodGet, "/api/v1/reservations", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec, _ = send(t, h, http.MethodGet, "/api/v1/reservations", "badtoken", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}

	rec, s := send(t, h, http.MethodPost, "/api/v1/services/availability/prov-1", token(t, "user-1", auth.RoleCustomer),
		map[string]string{httpx.UserIDHeader: "mallory"})
	if rec.Code != http.StatusOK {
		t.Fatalf("book: status %d", rec.Code)
	}
	if s.UserID != "user-1" || s.Role != auth.RoleCustomer {
		t.Fatalf("identity = %+v", s)
	}
}

func TestAvailabilityWritesRequireProviderRole(t *testing.T) {
	h := newGateway(t)

	rec, _ := send(t, h, http.MethodPost, "/api/v1/services/prov-1", token(t, "user-1", auth.RoleCustomer), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("customer append: expected 403, got %d", rec.Code)
	}
	rec, _ = send(t, h, http.MethodPut, "/api/v1/services/prov-1/availability", token(t, "user-1", auth.RoleCustomer), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("customer replace: expected 401, got %d", rec.Code)
	}
	rec, _ = send(t, h, http.MethodPut, "/api/v1/services/prov-1/availability", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous replace: expected 401, got %d", rec.Code)
	}
	rec, s := send(t, h, http.MethodPut, "/api/v1/services/prov-1/availability", token(t, "prov-1", auth.RoleProvider), nil)
	if rec.Code != http.StatusOK || s.UserID != "prov-1" {
		t.Fatalf("provider replace: %d %+v", rec.Code, s)
	}
}

func TestRequireRole(t *testing.T) {
	h := requireRole(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), http.StatusForbidden, auth.RoleProvider, auth.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(httpx.RoleHeader, auth.RoleCustomer)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}

	reqOK := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqOK.Header.Set(httpx.RoleHeader, auth.RoleAdmin)
	rwOK := httptest.NewRecorder()
	h.ServeHTTP(rwOK, reqOK)
	if rwOK.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rwOK.Code)
	}
}

func TestUpstreamDownIsBadGateway(t *testing.T) {
	target, _ := url.Parse("http://127.0.0.1:1")
	verifier, err := auth.NewVerifier(context.Background(), auth.VerifierConfig{HS256Secret: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	mux := http.NewServeMux()
	registerRoutes(mux, upstreams{auth: target, booking: target}, verifier)

	rec, _ := send(t, mux, http.MethodGet, "/api/v1/providers/p/availability-summary", "", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}
