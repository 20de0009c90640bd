// Package guardrail enforces the Context Guardrail: every WRITE
// request must carry coordination headers identifying
// {own_company, platform, coordinated_company} (spec §4.15).
package guardrail

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cometlocal/cometlocal/internal/model"
)

const (
	headerOwnCompany         = "X-Coordination-Own-Company"
	headerPlatform           = "X-Coordination-Platform"
	headerCoordinatedCompany = "X-Coordination-Coordinated-Company"

	// headerLegacyTenant is the single-tenant header accepted only in
	// dev/test environments, for callers that predate the coordination
	// triplet (spec §4.15).
	headerLegacyTenant = "X-Tenant"
)

// writeMethods are the HTTP verbs the guardrail gates; READ requests
// are never blocked.
var writeMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// errorBody is the structured shape a guardrail rejection returns.
type errorBody struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// Middleware wraps next with the Context Guardrail. environment
// controls whether the legacy single-tenant header is accepted
// ("dev" and "test" accept it; anything else requires the full
// coordination triplet).
func Middleware(environment string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !writeMethods[r.Method] {
			next.ServeHTTP(w, r)
			return
		}

		ctx, ok := Extract(r, environment)
		if !ok {
			writeMissingContext(w)
			return
		}

		r = r.WithContext(withCoordinationContext(r.Context(), ctx))
		next.ServeHTTP(w, r)
	})
}

// Extract reads the coordination triplet from r's headers. In dev/test
// environments, a legacy single-tenant header alone is also accepted,
// treated as own_company with platform/coordinated_company left empty.
func Extract(r *http.Request, environment string) (model.CoordinationContext, bool) {
	own := r.Header.Get(headerOwnCompany)
	platform := r.Header.Get(headerPlatform)
	coordinated := r.Header.Get(headerCoordinatedCompany)

	if own != "" && platform != "" && coordinated != "" {
		return model.CoordinationContext{OwnCompany: own, Platform: platform, CoordinatedCompany: coordinated}, true
	}

	if environment == "dev" || environment == "test" {
		if legacy := r.Header.Get(headerLegacyTenant); legacy != "" {
			return model.CoordinationContext{OwnCompany: legacy}, true
		}
	}

	return model.CoordinationContext{}, false
}

func writeMissingContext(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(errorBody{
		Status:    "error",
		ErrorCode: "missing_coordination_context",
		Message:   "this request must carry X-Coordination-Own-Company, X-Coordination-Platform, and X-Coordination-Coordinated-Company headers",
	})
}

type contextKey struct{}

func withCoordinationContext(parent context.Context, ctx model.CoordinationContext) context.Context {
	return context.WithValue(parent, contextKey{}, ctx)
}

// FromContext retrieves the coordination triplet the guardrail
// attached to the request context, if any.
func FromContext(ctx context.Context) (model.CoordinationContext, bool) {
	v := ctx.Value(contextKey{})
	if v == nil {
		return model.CoordinationContext{}, false
	}
	cc, ok := v.(model.CoordinationContext)
	return cc, ok
}
