package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/pawmarket/petcare/libs/auth"
	"github.com/pawmarket/petcare/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type upstreams struct {
	auth    *url.URL
	booking *url.URL
}

type tokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

func registerRoutes(mux *http.ServeMux, up upstreams, verifier tokenVerifier) {
	authProxy := newProxy(up.auth)
	bookingProxy := newProxy(up.booking)

	authed := func(h http.Handler) http.Handler { return requireAuth(h, verifier) }
	providers := func(status int, h http.Handler) http.Handler {
		return authed(requireRole(h, status, auth.RoleProvider, auth.RoleAdmin))
	}

	registerProxy(mux, "/api/v1/auth", stripIdentity(authProxy))
	mux.Handle("/.well-known/jwks.json", authProxy)

	// Slot views are readable without a token.
	mux.Handle("GET /api/v1/services/{providerId}/availability", stripIdentity(bookingProxy))
	mux.Handle("GET /api/v1/providers/{providerId}/availability-summary", stripIdentity(bookingProxy))

	// Same codes booking-service gives a non-owner on each route.
	mux.Handle("POST /api/v1/services/{providerId}", providers(http.StatusForbidden, bookingProxy))
	mux.Handle("PUT /api/v1/services/{providerId}/availability", providers(http.StatusUnauthorized, bookingProxy))
	registerProxy(mux, "/api/v1/services", authed(bookingProxy))
	registerProxy(mux, "/api/v1/reservations", authed(bookingProxy))
}

func newProxy(target *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	proxy.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, _ error) {
		httpx.WriteError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return proxy
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// stripIdentity drops client-supplied identity headers; only requireAuth may set them.
func stripIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(httpx.UserIDHeader)
		r.Header.Del(httpx.RoleHeader)
		next.ServeHTTP(w, r)
	})
}

func requireAuth(next http.Handler, verifier tokenVerifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		claims, err := verifier.Verify(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		r.Header.Del(httpx.UserIDHeader)
		r.Header.Del(httpx.RoleHeader)
		r.Header.Set(httpx.UserIDHeader, claims.Subject)
		if claims.Role != "" {
			r.Header.Set(httpx.RoleHeader, claims.Role)
		}
		next.ServeHTTP(w, r)
	})
}

// requireRole answers status when the caller's role is not in roles.
func requireRole(next http.Handler, status int, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := allowed[r.Header.Get(httpx.RoleHeader)]; !ok {
			httpx.WriteError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}
