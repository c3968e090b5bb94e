package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Ashokgmindia/review360/iam"
)

func testMiddleware(t *testing.T) (func(http.Handler) http.Handler, *iam.MemoryAssignmentStore) {
	t.Helper()
	store := iam.NewMemoryAssignmentStore()
	store.Put("t1", "college-a", iam.Assignments{
		Roles: []iam.Role{iam.RoleTeacher}, Active: true,
		AssignedClassIDs: []string{"class-7"},
	})
	eng := iam.NewEngine(store)
	t.Cleanup(eng.Close)

	opts := DefaultHTTPAuthOptions()
	opts.Engine = eng
	opts.Identity = func(r *http.Request) iam.Identity {
		return iam.Identity{UserID: r.Header.Get("X-User"), TenantID: r.Header.Get("X-Tenant")}
	}
	opts.Operation = func(r *http.Request) (iam.ResourceType, iam.Action, *iam.Target) {
		target := &iam.Target{
			ID:       r.URL.Query().Get("id"),
			TenantID: r.Header.Get("X-Target-Tenant"),
			ClassID:  r.URL.Query().Get("class"),
		}
		return iam.ResourceStudent, iam.ActionUpdate, target
	}
	return NewHTTPAuthMiddleware(opts), store
}

func TestMiddlewareAllowsAndAttachesContext(t *testing.T) {
	mw, _ := testMiddleware(t)

	var sawAuth bool
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := AuthFromContext(r.Context())
		dec, ok := DecisionFromContext(r.Context())
		sawAuth = c != nil && c.UserID == "t1" && ok && dec.Allowed
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPatch, "/students?id=stu-1&class=class-7", nil)
	req.Header.Set("X-User", "t1")
	req.Header.Set("X-Tenant", "college-a")
	req.Header.Set("X-Target-Tenant", "college-a")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d: %s", rec.Code, rec.Body.String())
	}
	if !sawAuth {
		t.Fatalf("handler did not see auth context and decision")
	}
}

func TestMiddlewareDeniesWithRedactedReason(t *testing.T) {
	mw, _ := testMiddleware(t)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run on denial")
	}))

	// Cross-tenant target: the response must not reveal tenant-mismatch.
	req := httptest.NewRequest(http.MethodPatch, "/students?id=stu-1&class=class-7", nil)
	req.Header.Set("X-User", "t1")
	req.Header.Set("X-Tenant", "college-a")
	req.Header.Set("X-Target-Tenant", "college-b")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != string(iam.ReasonNoMatchingPolicy) {
		t.Fatalf("denial body leaked reason: %q", got)
	}
}

func TestMiddlewareUnknownUserDenied(t *testing.T) {
	mw, _ := testMiddleware(t)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run for unresolved identity")
	}))

	req := httptest.NewRequest(http.MethodPatch, "/students?id=stu-1&class=class-7", nil)
	req.Header.Set("X-User", "ghost")
	req.Header.Set("X-Tenant", "college-a")
	req.Header.Set("X-Target-Tenant", "college-a")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("unresolved identity must deny, got %d", rec.Code)
	}
}

func TestMiddlewareMisconfiguredFailsClosed(t *testing.T) {
	handler := NewHTTPAuthMiddleware(&HTTPAuthOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run without extractors")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
