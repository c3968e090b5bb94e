package iam

import (
	"reflect"
	"testing"
)

func TestScopeSuperAdminUnnarrowed(t *testing.T) {
	eng := NewEngine(NewMemoryAssignmentStore())
	defer eng.Close()

	c := &AuthContext{UserID: "root", Roles: []Role{RoleSuperAdmin}}
	p := eng.ScopeFor(c, ResourceStudent)
	if !p.MatchAll {
		t.Fatalf("superadmin scope must match everything: %+v", p)
	}
	if !p.Matches(&Target{ID: "x", TenantID: "anywhere"}) {
		t.Fatalf("match-all predicate rejected a row")
	}
}

func TestScopeTeacherClassNarrowing(t *testing.T) {
	eng := NewEngine(NewMemoryAssignmentStore())
	defer eng.Close()

	c := &AuthContext{
		UserID: "t1", TenantID: "college-a",
		Roles:            []Role{RoleTeacher},
		AssignedClassIDs: map[string]bool{"class-9": true, "class-7": true},
	}
	p := eng.ScopeFor(c, ResourceStudent)
	if p.MatchAll || p.MatchNone || p.TenantWide {
		t.Fatalf("expected class narrowing, got %+v", p)
	}
	if p.TenantID != "college-a" {
		t.Fatalf("tenant narrowing missing: %+v", p)
	}
	if got, want := p.ClassIDs, []string{"class-7", "class-9"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("class ids = %v, want sorted %v", got, want)
	}

	if !p.Matches(&Target{ID: "s1", TenantID: "college-a", ClassID: "class-7"}) {
		t.Fatalf("assigned class row must match")
	}
	if p.Matches(&Target{ID: "s2", TenantID: "college-a", ClassID: "class-5"}) {
		t.Fatalf("unassigned class row must not match")
	}
	if p.Matches(&Target{ID: "s3", TenantID: "college-b", ClassID: "class-7"}) {
		t.Fatalf("cross-tenant row must never match")
	}
}

func TestScopeTeacherTenantWideOnStructure(t *testing.T) {
	eng := NewEngine(NewMemoryAssignmentStore())
	defer eng.Close()

	c := &AuthContext{
		UserID: "t1", TenantID: "college-a",
		Roles: []Role{RoleTeacher}, AssignedClassIDs: map[string]bool{"class-7": true},
	}
	p := eng.ScopeFor(c, ResourceDepartment)
	if !p.TenantWide || p.TenantID != "college-a" {
		t.Fatalf("structure resources are tenant-wide for teachers: %+v", p)
	}
	if len(p.ClassIDs) != 0 {
		t.Fatalf("tenant-wide scope must drop row narrowings: %+v", p)
	}
}

func TestScopeStudentOwnerNarrowing(t *testing.T) {
	eng := NewEngine(NewMemoryAssignmentStore())
	defer eng.Close()

	c := &AuthContext{
		UserID: "s1", TenantID: "college-a",
		Roles: []Role{RoleStudent}, OwnRecordID: "42",
	}
	p := eng.ScopeFor(c, ResourceActivitySheet)
	if p.OwnerRecordID != "42" || p.TenantWide {
		t.Fatalf("expected owner narrowing: %+v", p)
	}
	if !p.Matches(&Target{ID: "a1", TenantID: "college-a", OwnerRecordID: "42"}) {
		t.Fatalf("own sheet must match")
	}
	if p.Matches(&Target{ID: "a2", TenantID: "college-a", OwnerRecordID: "43"}) {
		t.Fatalf("foreign sheet must not match")
	}
}

func TestScopeInvisibleResource(t *testing.T) {
	eng := NewEngine(NewMemoryAssignmentStore())
	defer eng.Close()

	c := &AuthContext{UserID: "s1", TenantID: "college-a", Roles: []Role{RoleStudent}, OwnRecordID: "42"}
	p := eng.ScopeFor(c, ResourceImportLog)
	if !p.MatchNone {
		t.Fatalf("students must not see import logs: %+v", p)
	}
	if p.Matches(&Target{ID: "i1", TenantID: "college-a"}) {
		t.Fatalf("match-none predicate accepted a row")
	}
}

func TestScopeNoAssignmentsMeansEmpty(t *testing.T) {
	eng := NewEngine(NewMemoryAssignmentStore())
	defer eng.Close()

	// Visible in principle, but nothing to anchor the narrowing.
	c := &AuthContext{UserID: "t1", TenantID: "college-a", Roles: []Role{RoleTeacher}}
	p := eng.ScopeFor(c, ResourceStudent)
	if !p.MatchNone {
		t.Fatalf("teacher without classes must see no students: %+v", p)
	}
}

func TestScopeMultiRoleAbsorbsIntoTenantWide(t *testing.T) {
	eng := NewEngine(NewMemoryAssignmentStore())
	defer eng.Close()

	c := &AuthContext{
		UserID: "u1", TenantID: "college-a",
		Roles:            []Role{RoleTeacher, RoleCollegeAdmin},
		AssignedClassIDs: map[string]bool{"class-7": true},
	}
	p := eng.ScopeFor(c, ResourceStudent)
	if !p.TenantWide || len(p.ClassIDs) != 0 {
		t.Fatalf("tenant-wide role must absorb class narrowing: %+v", p)
	}
}

func TestScopeNoTenant(t *testing.T) {
	eng := NewEngine(NewMemoryAssignmentStore())
	defer eng.Close()

	c := &AuthContext{UserID: "u1", Roles: []Role{RoleTeacher}}
	if p := eng.ScopeFor(c, ResourceStudent); !p.MatchNone {
		t.Fatalf("tenant-less context must see nothing: %+v", p)
	}
}
