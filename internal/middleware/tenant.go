// Package middleware holds the HTTP middleware chain of the gateway API:
// tenant resolution first, then the idempotency gate.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/clearfab/gateway/internal/faults"
	"github.com/clearfab/gateway/internal/tenant"
)

// Tenant resolves the caller's tenant and injects it into the request
// context. Requests with a malformed or unknown tenant are rejected before
// any handler runs.
func Tenant(resolver *tenant.Resolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, err := resolver.Resolve(r)
		if err != nil {
			WriteFault(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(tenant.WithTenant(r.Context(), tc)))
	})
}

// WriteFault renders a fault as the client-facing JSON error body with the
// taxonomy's HTTP status. Non-fault errors map to 500 Internal.
func WriteFault(w http.ResponseWriter, err error) {
	kind := faults.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(faults.BodyOf(err))
}
