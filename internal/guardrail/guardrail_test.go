package guardrail

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newPassthroughHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ReadRequestsNeverBlocked(t *testing.T) {
	var called bool
	h := Middleware("prod", newPassthroughHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/runs/summary", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected GET request to pass through guardrail unblocked")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddleware_WriteRequestMissingHeadersRejected(t *testing.T) {
	var called bool
	h := Middleware("prod", newPassthroughHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/runs/auto_upload/execute", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Fatal("expected handler not to be called when coordination headers are missing")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMiddleware_WriteRequestWithFullTripletAllowed(t *testing.T) {
	var called bool
	h := Middleware("prod", newPassthroughHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/runs/auto_upload/execute", nil)
	req.Header.Set(headerOwnCompany, "own")
	req.Header.Set(headerPlatform, "portal-a")
	req.Header.Set(headerCoordinatedCompany, "coord")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected handler to be called when full triplet is present")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddleware_LegacyHeaderAcceptedInDevEnvironment(t *testing.T) {
	var called bool
	h := Middleware("dev", newPassthroughHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/runs/auto_upload/execute", nil)
	req.Header.Set(headerLegacyTenant, "legacy-co")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected dev environment to accept the legacy single-tenant header")
	}
}

func TestMiddleware_LegacyHeaderRejectedInProdEnvironment(t *testing.T) {
	var called bool
	h := Middleware("prod", newPassthroughHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/runs/auto_upload/execute", nil)
	req.Header.Set(headerLegacyTenant, "legacy-co")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Fatal("expected prod environment to reject the legacy header alone")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestExtract_ContextPropagatedToHandler(t *testing.T) {
	var gotCtx bool
	h := Middleware("prod", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cc, ok := FromContext(r.Context())
		gotCtx = ok && cc.OwnCompany == "own"
	}))

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(headerOwnCompany, "own")
	req.Header.Set(headerPlatform, "portal-a")
	req.Header.Set(headerCoordinatedCompany, "coord")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !gotCtx {
		t.Fatal("expected coordination context to be retrievable from request context")
	}
}
