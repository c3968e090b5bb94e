package iam

import (
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Role is one of the four documented roles of the platform. A user holds a
// non-empty set of roles; the design supports multiplicity even though the
// documented roles are effectively disjoint in practice.
type Role string

const (
	RoleSuperAdmin   Role = "superadmin"
	RoleCollegeAdmin Role = "college_admin"
	RoleTeacher      Role = "teacher"
	RoleStudent      Role = "student"
)

// Roles lists every documented role, in precedence-free order.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleCollegeAdmin, RoleTeacher, RoleStudent}
}

// ResourceType identifies one of the protected resource variants.
type ResourceType string

const (
	ResourceClass           ResourceType = "class"
	ResourceStudent         ResourceType = "student"
	ResourceTeacher         ResourceType = "teacher"
	ResourceDepartment      ResourceType = "department"
	ResourceSubject         ResourceType = "subject"
	ResourceImportLog       ResourceType = "importlog"
	ResourceActivitySheet   ResourceType = "activitysheet"
	ResourceValidation      ResourceType = "validation"
	ResourceFollowUpSession ResourceType = "followupsession"
)

// ResourceTypes lists every protected resource variant.
func ResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceClass, ResourceStudent, ResourceTeacher, ResourceDepartment,
		ResourceSubject, ResourceImportLog, ResourceActivitySheet,
		ResourceValidation, ResourceFollowUpSession,
	}
}

// Action represents how a resource is being accessed.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
)

// Actions lists every gated action.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionList}
}

// Identity is the already-authenticated caller handed to the resolver.
// Credential verification happens upstream; the engine never sees tokens.
type Identity struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"` // requested college; empty for superadmin sessions
}

// AuthContext is the immutable per-request authorization context, built once
// by ResolveContext and passed explicitly through every call boundary. It is
// never cached across requests: assignments can change between requests and
// the context is cheap to recompute.
type AuthContext struct {
	UserID           string          `json:"user_id"`
	TenantID         string          `json:"tenant_id"` // empty means tenant-exempt (superadmin only)
	Roles            []Role          `json:"roles"`
	AssignedClassIDs map[string]bool `json:"assigned_class_ids,omitempty"` // teacher
	OwnRecordID      string          `json:"own_record_id,omitempty"`      // student/teacher own row id
	HODDepartmentIDs map[string]bool `json:"hod_department_ids,omitempty"` // teacher who is head of department
}

// HasRole reports whether the context holds the given role.
func (c *AuthContext) HasRole(r Role) bool {
	for _, held := range c.Roles {
		if held == r {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the context is tenant-exempt.
func (c *AuthContext) IsSuperAdmin() bool { return c.HasRole(RoleSuperAdmin) }

// AssignedToClass reports whether classID is one of the teacher's classes.
func (c *AuthContext) AssignedToClass(classID string) bool {
	return classID != "" && c.AssignedClassIDs[classID]
}

// HeadsDepartment reports whether departmentID is one the teacher heads.
func (c *AuthContext) HeadsDepartment(departmentID string) bool {
	return departmentID != "" && c.HODDepartmentIDs[departmentID]
}

// Target carries the ownership attributes of the instance an action aims at.
// Required for read-single/update/delete; absent for create and list (list is
// scoped by ScopeFor, not permission-gated per instance).
type Target struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	ClassID       string `json:"class_id,omitempty"`
	DepartmentID  string `json:"department_id,omitempty"`
	OwnerRecordID string `json:"owner_record_id,omitempty"` // owning student/teacher record
}

// OwnershipPredicate is a condition beyond role membership required for an
// action to be allowed.
type OwnershipPredicate string

const (
	PredicateNone          OwnershipPredicate = "none"
	PredicateOwnClass      OwnershipPredicate = "own-class"
	PredicateOwnRecord     OwnershipPredicate = "own-record"
	PredicateIsHOD         OwnershipPredicate = "is-hod"
	PredicateOwnDepartment OwnershipPredicate = "own-department"
)

// holds evaluates the predicate against the target and context.
func (p OwnershipPredicate) holds(c *AuthContext, t *Target) bool {
	switch p {
	case PredicateNone:
		return true
	case PredicateOwnClass:
		return t != nil && c.AssignedToClass(t.ClassID)
	case PredicateOwnRecord:
		return t != nil && c.OwnRecordID != "" && t.OwnerRecordID == c.OwnRecordID
	case PredicateIsHOD:
		return t != nil && c.HeadsDepartment(t.DepartmentID)
	case PredicateOwnDepartment:
		return t != nil && c.HeadsDepartment(t.DepartmentID)
	default:
		return false
	}
}

// DenialReason classifies why Evaluate denied a request.
type DenialReason string

const (
	ReasonNoTenantContext  DenialReason = "no-tenant-context"
	ReasonTenantMismatch   DenialReason = "tenant-mismatch"
	ReasonNoMatchingPolicy DenialReason = "no-matching-policy"
	ReasonOwnershipFailed  DenialReason = "ownership-predicate-failed"
)

// Decision is the outcome of a permission evaluation. Denials are expected,
// non-exceptional results the caller must branch on.
type Decision struct {
	Allowed     bool         `json:"allowed"`
	Reason      DenialReason `json:"reason,omitempty"`
	MatchedRole Role         `json:"matched_role,omitempty"`
	Trace       []string     `json:"trace,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// RedactedReason collapses tenant-mismatch into no-matching-policy so a
// cross-tenant caller cannot distinguish "exists in another tenant" from
// "does not exist", closing the resource-existence probing channel.
func (d Decision) RedactedReason() DenialReason {
	if d.Reason == ReasonTenantMismatch {
		return ReasonNoMatchingPolicy
	}
	return d.Reason
}

// FieldDecision is the outcome of a field-level write check. Rejected names
// exactly the offending fields; callers must reject the whole write rather
// than partially apply it.
type FieldDecision struct {
	Allowed  bool     `json:"allowed"`
	Rejected []string `json:"rejected_fields,omitempty"`
}

// WriteMode selects which field-allow table EnforceFields consults. Create
// sets are generally supersets of update sets: some references may be set at
// creation but never changed afterwards (e.g. a student's class on import).
type WriteMode string

const (
	WriteCreate WriteMode = "create"
	WriteUpdate WriteMode = "update"
)

// Assignments is the role/assignment snapshot the resolver consumes from the
// persistence collaborator.
type Assignments struct {
	Roles            []Role   `json:"roles"`
	Active           bool     `json:"active"`
	AssignedClassIDs []string `json:"assigned_class_ids,omitempty"`
	HODDepartmentIDs []string `json:"hod_department_ids,omitempty"`
	OwnRecordID      string   `json:"own_record_id,omitempty"`
}
