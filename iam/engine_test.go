package iam

import (
	"context"
	"testing"
	"time"
)

func seededEngine(t *testing.T, opts ...EngineOption) (*Engine, *MemoryAssignmentStore) {
	t.Helper()
	store := NewMemoryAssignmentStore()
	eng := NewEngine(store, opts...)
	t.Cleanup(eng.Close)
	return eng, store
}

func adminCtx(tenant string) *AuthContext {
	return &AuthContext{UserID: "admin-1", TenantID: tenant, Roles: []Role{RoleCollegeAdmin}}
}

func TestTenantIsolation(t *testing.T) {
	eng, _ := seededEngine(t)

	c := adminCtx("college-a")
	target := &Target{ID: "class-1", TenantID: "college-b"}

	dec := eng.Evaluate(context.Background(), c, ResourceClass, ActionUpdate, target)
	if dec.Allowed {
		t.Fatalf("expected deny across tenants")
	}
	if dec.Reason != ReasonTenantMismatch {
		t.Fatalf("expected tenant-mismatch, got %s", dec.Reason)
	}
	if dec.RedactedReason() != ReasonNoMatchingPolicy {
		t.Fatalf("redacted reason must not reveal cross-tenant existence, got %s", dec.RedactedReason())
	}
}

func TestNoTenantContextDenied(t *testing.T) {
	eng, _ := seededEngine(t)

	c := &AuthContext{UserID: "u1", Roles: []Role{RoleTeacher}}
	dec := eng.Evaluate(context.Background(), c, ResourceStudent, ActionList, nil)
	if dec.Allowed || dec.Reason != ReasonNoTenantContext {
		t.Fatalf("expected no-tenant-context deny, got allowed=%v reason=%s", dec.Allowed, dec.Reason)
	}
}

func TestSuperAdminTenantExempt(t *testing.T) {
	eng, _ := seededEngine(t)

	c := &AuthContext{UserID: "root", Roles: []Role{RoleSuperAdmin}}
	for _, tenant := range []string{"college-a", "college-b"} {
		dec := eng.Evaluate(context.Background(), c, ResourceDepartment, ActionDelete, &Target{ID: "d1", TenantID: tenant})
		if !dec.Allowed {
			t.Fatalf("superadmin denied in tenant %s: %s", tenant, dec.Reason)
		}
		if dec.MatchedRole != RoleSuperAdmin {
			t.Fatalf("expected superadmin match, got %s", dec.MatchedRole)
		}
	}
}

func TestClosedWorldDeny(t *testing.T) {
	eng, _ := seededEngine(t)

	c := &AuthContext{UserID: "s1", TenantID: "college-a", Roles: []Role{RoleStudent}}
	dec := eng.Evaluate(context.Background(), c, ResourceClass, ActionCreate, nil)
	if dec.Allowed || dec.Reason != ReasonNoMatchingPolicy {
		t.Fatalf("absent cell must deny with no-matching-policy, got allowed=%v reason=%s", dec.Allowed, dec.Reason)
	}
}

func TestTeacherAssignedClassGate(t *testing.T) {
	eng, _ := seededEngine(t)

	c := &AuthContext{
		UserID:           "t1",
		TenantID:         "college-a",
		Roles:            []Role{RoleTeacher},
		AssignedClassIDs: map[string]bool{"class-7": true},
	}

	in := &Target{ID: "stu-1", TenantID: "college-a", ClassID: "class-7"}
	if dec := eng.Evaluate(context.Background(), c, ResourceStudent, ActionUpdate, in); !dec.Allowed {
		t.Fatalf("expected allow for assigned class, got %s", dec.Reason)
	}

	out := &Target{ID: "stu-2", TenantID: "college-a", ClassID: "class-9"}
	dec := eng.Evaluate(context.Background(), c, ResourceStudent, ActionUpdate, out)
	if dec.Allowed {
		t.Fatalf("expected deny for unassigned class")
	}
	if dec.Reason != ReasonOwnershipFailed {
		t.Fatalf("expected ownership-predicate-failed, got %s", dec.Reason)
	}
}

func TestStudentOwnRecordGate(t *testing.T) {
	eng, _ := seededEngine(t)

	c := &AuthContext{
		UserID:      "s1",
		TenantID:    "college-a",
		Roles:       []Role{RoleStudent},
		OwnRecordID: "42",
	}

	own := &Target{ID: "42", TenantID: "college-a", OwnerRecordID: "42"}
	if dec := eng.Evaluate(context.Background(), c, ResourceStudent, ActionUpdate, own); !dec.Allowed {
		t.Fatalf("expected allow on own record, got %s", dec.Reason)
	}

	other := &Target{ID: "43", TenantID: "college-a", OwnerRecordID: "43"}
	dec := eng.Evaluate(context.Background(), c, ResourceStudent, ActionUpdate, other)
	if dec.Allowed || dec.Reason != ReasonOwnershipFailed {
		t.Fatalf("expected ownership deny on foreign record, got allowed=%v reason=%s", dec.Allowed, dec.Reason)
	}
}

func TestHODUpdatesOwnDepartmentOnly(t *testing.T) {
	eng, _ := seededEngine(t)

	c := &AuthContext{
		UserID:           "t1",
		TenantID:         "college-a",
		Roles:            []Role{RoleTeacher},
		HODDepartmentIDs: map[string]bool{"dep-cs": true},
	}

	own := &Target{ID: "dep-cs", TenantID: "college-a", DepartmentID: "dep-cs"}
	if dec := eng.Evaluate(context.Background(), c, ResourceDepartment, ActionUpdate, own); !dec.Allowed {
		t.Fatalf("expected HoD to update headed department, got %s", dec.Reason)
	}

	other := &Target{ID: "dep-math", TenantID: "college-a", DepartmentID: "dep-math"}
	dec := eng.Evaluate(context.Background(), c, ResourceDepartment, ActionUpdate, other)
	if dec.Allowed || dec.Reason != ReasonOwnershipFailed {
		t.Fatalf("expected ownership deny for other department, got allowed=%v reason=%s", dec.Allowed, dec.Reason)
	}
}

func TestMultiRoleMostPermissiveWins(t *testing.T) {
	eng, _ := seededEngine(t)

	narrow := &AuthContext{
		UserID: "u1", TenantID: "college-a",
		Roles: []Role{RoleStudent}, OwnRecordID: "42",
	}
	target := &Target{ID: "43", TenantID: "college-a", OwnerRecordID: "43"}
	if dec := eng.Evaluate(context.Background(), narrow, ResourceStudent, ActionUpdate, target); dec.Allowed {
		t.Fatalf("student alone must not touch a foreign record")
	}

	// Adding a role can only widen access.
	wide := &AuthContext{
		UserID: "u1", TenantID: "college-a",
		Roles: []Role{RoleStudent, RoleCollegeAdmin}, OwnRecordID: "42",
	}
	dec := eng.Evaluate(context.Background(), wide, ResourceStudent, ActionUpdate, target)
	if !dec.Allowed {
		t.Fatalf("expected allow via college_admin, got %s", dec.Reason)
	}
	if dec.MatchedRole != RoleCollegeAdmin {
		t.Fatalf("expected college_admin match, got %s", dec.MatchedRole)
	}
}

func TestExplainCarriesTrace(t *testing.T) {
	eng, _ := seededEngine(t)

	c := &AuthContext{
		UserID: "t1", TenantID: "college-a",
		Roles: []Role{RoleTeacher}, AssignedClassIDs: map[string]bool{"class-7": true},
	}
	target := &Target{ID: "stu-1", TenantID: "college-a", ClassID: "class-9"}

	plain := eng.Evaluate(context.Background(), c, ResourceStudent, ActionUpdate, target)
	traced := eng.Explain(context.Background(), c, ResourceStudent, ActionUpdate, target)

	if traced.Allowed != plain.Allowed || traced.Reason != plain.Reason {
		t.Fatalf("explain diverged from evaluate: %+v vs %+v", traced, plain)
	}
	if len(traced.Trace) == 0 {
		t.Fatalf("expected a non-empty trace")
	}
	if len(plain.Trace) != 0 {
		t.Fatalf("evaluate must not pay for tracing")
	}
}

func TestSwapMatrixTakesEffectImmediately(t *testing.T) {
	eng, _ := seededEngine(t, WithDecisionCacheTTL(time.Minute))

	c := &AuthContext{UserID: "s1", TenantID: "college-a", Roles: []Role{RoleStudent}}
	if dec := eng.Evaluate(context.Background(), c, ResourceClass, ActionCreate, nil); dec.Allowed {
		t.Fatalf("baseline should deny")
	}

	m := NewMatrixBuilder().Version(2).
		Grant(RoleStudent, ResourceClass).Actions(ActionCreate).Done().
		Build()
	if err := eng.SwapMatrix(m); err != nil {
		t.Fatalf("swap: %v", err)
	}

	// A long-TTL cached deny must not survive the swap.
	if dec := eng.Evaluate(context.Background(), c, ResourceClass, ActionCreate, nil); !dec.Allowed {
		t.Fatalf("expected allow after swap, got %s", dec.Reason)
	}
}

func TestSwapMatrixRejectsInvalid(t *testing.T) {
	eng, _ := seededEngine(t)

	bad := NewMatrixBuilder().Version(2).
		Grant(Role("principal"), ResourceClass).Actions(ActionRead).Done().
		Build()
	if err := eng.SwapMatrix(bad); err == nil {
		t.Fatalf("expected validation error for unknown role")
	}
	if _, ok := eng.Matrix().Rule(ResourceClass, Role("principal"), ActionRead); ok {
		t.Fatalf("invalid matrix must not be installed")
	}
}

func TestEnforceFieldsUpdate(t *testing.T) {
	eng, _ := seededEngine(t)

	c := &AuthContext{
		UserID: "t1", TenantID: "college-a",
		Roles: []Role{RoleTeacher}, AssignedClassIDs: map[string]bool{"class-7": true},
	}

	ok := eng.EnforceFields(c, ResourceStudent, []string{"phone_number"}, WriteUpdate)
	if !ok.Allowed {
		t.Fatalf("teacher must update contact fields, rejected %v", ok.Rejected)
	}

	bad := eng.EnforceFields(c, ResourceStudent, []string{"phone_number", "class_ref"}, WriteUpdate)
	if bad.Allowed {
		t.Fatalf("class_ref must be rejected for teacher update")
	}
	if len(bad.Rejected) != 1 || bad.Rejected[0] != "class_ref" {
		t.Fatalf("rejection must name exactly the offending field, got %v", bad.Rejected)
	}
}

func TestEnforceFieldsCreateUpdateAsymmetry(t *testing.T) {
	eng, _ := seededEngine(t)
	c := adminCtx("college-a")

	// class_ref is settable at creation but frozen afterwards.
	create := eng.EnforceFields(c, ResourceStudent, []string{"first_name", "class_ref", "student_number"}, WriteCreate)
	if !create.Allowed {
		t.Fatalf("admin create should accept structural refs, rejected %v", create.Rejected)
	}
	update := eng.EnforceFields(c, ResourceStudent, []string{"first_name", "class_ref"}, WriteUpdate)
	if update.Allowed {
		t.Fatalf("class_ref must not be updatable")
	}
}

func TestEnforceFieldsIdempotent(t *testing.T) {
	eng, _ := seededEngine(t)
	c := &AuthContext{UserID: "t1", TenantID: "college-a", Roles: []Role{RoleTeacher}}

	attempted := []string{"phone_number", "class_ref", "status"}
	first := eng.EnforceFields(c, ResourceStudent, attempted, WriteUpdate)
	second := eng.EnforceFields(c, ResourceStudent, attempted, WriteUpdate)
	if first.Allowed != second.Allowed || len(first.Rejected) != len(second.Rejected) {
		t.Fatalf("enforcement must be a pure function of its inputs: %+v vs %+v", first, second)
	}
	for i := range first.Rejected {
		if first.Rejected[i] != second.Rejected[i] {
			t.Fatalf("rejected sets diverged: %v vs %v", first.Rejected, second.Rejected)
		}
	}
}

func TestEnforceFieldsMultiRoleUnion(t *testing.T) {
	eng, _ := seededEngine(t)

	c := &AuthContext{
		UserID: "u1", TenantID: "college-a",
		Roles: []Role{RoleStudent, RoleCollegeAdmin},
	}
	// status comes from college_admin, phone_number from either.
	dec := eng.EnforceFields(c, ResourceStudent, []string{"phone_number", "status"}, WriteUpdate)
	if !dec.Allowed {
		t.Fatalf("union of role field sets should allow, rejected %v", dec.Rejected)
	}
}

func TestAuditTrailRecordsDecisions(t *testing.T) {
	audit := NewMemoryAuditStore()
	eng, _ := seededEngine(t,
		WithAuditStore(audit),
		WithTraceIDFunc(func() string { return "trace-1" }),
	)

	c := adminCtx("college-a")
	eng.Evaluate(context.Background(), c, ResourceClass, ActionCreate, nil)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(audit.Entries()) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entry never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
	entry := audit.Entries()[0]
	if entry.UserID != "admin-1" || entry.Resource != ResourceClass || entry.Action != ActionCreate {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
	if entry.TraceID != "trace-1" {
		t.Fatalf("expected trace id on audit entry, got %q", entry.TraceID)
	}
	if !entry.Decision.Allowed {
		t.Fatalf("expected the allowed decision to be recorded")
	}
}

func TestDecisionCacheServesWithinTTL(t *testing.T) {
	eng, _ := seededEngine(t, WithDecisionCacheTTL(time.Minute))

	c := adminCtx("college-a")
	first := eng.Evaluate(context.Background(), c, ResourceClass, ActionCreate, nil)
	second := eng.Evaluate(context.Background(), c, ResourceClass, ActionCreate, nil)
	if !second.Allowed {
		t.Fatalf("expected allow, got %s", second.Reason)
	}
	// Cached decisions are returned verbatim, timestamp included.
	if !second.Timestamp.Equal(first.Timestamp) {
		t.Fatalf("expected cached decision, got a fresh evaluation")
	}
}
