package httpx

import (
	"net/http"
	"strings"
)

// Identity headers are set by the gateway after token verification. Services
// behind the gateway trust them; the gateway strips client-supplied copies.
const (
	UserIDHeader = "X-User-Id"
	RoleHeader   = "X-Role"
)

type Caller struct {
	UserID string
	Role   string
}

func CallerFromRequest(r *http.Request) (Caller, bool) {
	id := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if id == "" {
		return Caller{}, false
	}
	return Caller{UserID: id, Role: strings.TrimSpace(r.Header.Get(RoleHeader))}, true
}
