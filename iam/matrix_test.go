package iam

import (
	"testing"
)

func TestDefaultMatrixIsValid(t *testing.T) {
	m := DefaultMatrix()
	if err := m.Validate(); err != nil {
		t.Fatalf("built-in matrix invalid: %v", err)
	}
	if m.RuleCount() == 0 || m.FieldSetCount() == 0 {
		t.Fatalf("built-in matrix unexpectedly empty")
	}
}

func TestMatrixClosedWorld(t *testing.T) {
	m := DefaultMatrix()
	if _, ok := m.Rule(ResourceClass, RoleStudent, ActionCreate); ok {
		t.Fatalf("students must have no create cell on classes")
	}
	if _, ok := m.Rule(ResourceImportLog, RoleStudent, ActionRead); ok {
		t.Fatalf("students must not see import logs")
	}
	rule, ok := m.Rule(ResourceStudent, RoleTeacher, ActionUpdate)
	if !ok || !rule.Allow || rule.Predicate != PredicateOwnClass {
		t.Fatalf("teacher/student/update cell wrong: %+v ok=%v", rule, ok)
	}
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	cases := map[string]*Matrix{
		"role": NewMatrixBuilder().
			Grant(Role("principal"), ResourceClass).Actions(ActionRead).Done().Build(),
		"resource": NewMatrixBuilder().
			Grant(RoleTeacher, ResourceType("campus")).Actions(ActionRead).Done().Build(),
		"action": NewMatrixBuilder().
			Grant(RoleTeacher, ResourceClass).Actions(Action("approve")).Done().Build(),
		"predicate": NewMatrixBuilder().
			Grant(RoleTeacher, ResourceClass).Actions(ActionRead).When(OwnershipPredicate("same-campus")).Done().Build(),
	}
	for name, m := range cases {
		if err := m.Validate(); err == nil {
			t.Fatalf("expected validation error for unknown %s", name)
		}
	}
}

func TestValidateRejectsImmutableUpdateField(t *testing.T) {
	m := NewMatrixBuilder().
		UpdateFields(RoleCollegeAdmin, ResourceStudent, "student_number").
		Build()
	if err := m.Validate(); err == nil {
		t.Fatalf("immutable-after-create field must not enter an update set")
	}
}

func TestValidateRejectsTenantRefInCreateSet(t *testing.T) {
	m := NewMatrixBuilder().
		CreateFields(RoleCollegeAdmin, ResourceStudent, "college").
		Build()
	if err := m.Validate(); err == nil {
		t.Fatalf("tenant reference must never be client-settable")
	}
}

func TestValidateRequiresCreateSupersetOfUpdate(t *testing.T) {
	m := NewMatrixBuilder().
		UpdateFields(RoleCollegeAdmin, ResourceStudent, "first_name", "email").
		CreateFields(RoleCollegeAdmin, ResourceStudent, "first_name").
		Build()
	if err := m.Validate(); err == nil {
		t.Fatalf("create set missing an update field must be rejected")
	}
}

func TestChecksumStableAndSensitive(t *testing.T) {
	a := DefaultMatrix()
	b := DefaultMatrix()
	if a.Checksum() != b.Checksum() {
		t.Fatalf("checksum must be deterministic")
	}

	c := NewMatrixBuilder().Version(a.Version).
		Grant(RoleStudent, ResourceClass).Actions(ActionRead).Done().
		Build()
	if a.Checksum() == c.Checksum() {
		t.Fatalf("different matrices must not collide")
	}
}
