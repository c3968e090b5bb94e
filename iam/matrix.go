package iam

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ============================================================================
// POLICY MATRIX
// ============================================================================

// PolicyRule is one cell of the matrix: whether (resource, role, action) is
// allowed, and the ownership predicate that must additionally hold.
type PolicyRule struct {
	Allow     bool               `json:"allow"`
	Predicate OwnershipPredicate `json:"predicate"`
}

type policyKey struct {
	Resource ResourceType
	Role     Role
	Action   Action
}

type fieldKey struct {
	Resource ResourceType
	Role     Role
}

// Matrix is the process-wide, read-only policy table: (resource, role,
// action) cells plus per-(resource, role) field-allow sets for create and
// update writes. It is closed-world: absent combinations deny. Instances are
// immutable once built; reloading means building a new Matrix and swapping it
// atomically on the Engine, never editing in place.
type Matrix struct {
	Version      int
	rules        map[policyKey]PolicyRule
	updateFields map[fieldKey]FieldSet
	createFields map[fieldKey]FieldSet
}

// Rule looks up one cell. ok is false for combinations the matrix never
// mentions, which callers must treat as deny.
func (m *Matrix) Rule(rt ResourceType, role Role, action Action) (PolicyRule, bool) {
	r, ok := m.rules[policyKey{rt, role, action}]
	return r, ok
}

// UpdateFields returns the fields role may modify on rt, or nil.
func (m *Matrix) UpdateFields(rt ResourceType, role Role) FieldSet {
	return m.updateFields[fieldKey{rt, role}]
}

// CreateFields returns the fields role may set when creating rt, or nil.
func (m *Matrix) CreateFields(rt ResourceType, role Role) FieldSet {
	return m.createFields[fieldKey{rt, role}]
}

// RuleCount reports how many explicit cells the matrix carries.
func (m *Matrix) RuleCount() int { return len(m.rules) }

// FieldSetCount reports how many (resource, role) field-allow sets exist,
// create and update combined.
func (m *Matrix) FieldSetCount() int { return len(m.updateFields) + len(m.createFields) }

// Validate checks the structural invariants of the matrix:
//   - every cell names a known resource, role, action and predicate;
//   - update field sets only contain mutable (role- or self-writable) fields,
//     so immutable-after-create fields can never leak into a write;
//   - create field sets only contain declared fields and never the tenant
//     reference, which is fixed from the creator's context;
//   - every create set is a superset of the same pair's update set.
func (m *Matrix) Validate() error {
	knownResources := make(map[ResourceType]bool)
	for _, rt := range ResourceTypes() {
		knownResources[rt] = true
	}
	knownRoles := make(map[Role]bool)
	for _, r := range Roles() {
		knownRoles[r] = true
	}
	knownActions := make(map[Action]bool)
	for _, a := range Actions() {
		knownActions[a] = true
	}
	knownPredicates := map[OwnershipPredicate]bool{
		PredicateNone: true, PredicateOwnClass: true, PredicateOwnRecord: true,
		PredicateIsHOD: true, PredicateOwnDepartment: true,
	}

	for k, rule := range m.rules {
		if !knownResources[k.Resource] {
			return fmt.Errorf("matrix: unknown resource %q", k.Resource)
		}
		if !knownRoles[k.Role] {
			return fmt.Errorf("matrix: unknown role %q", k.Role)
		}
		if !knownActions[k.Action] {
			return fmt.Errorf("matrix: unknown action %q", k.Action)
		}
		if !knownPredicates[rule.Predicate] {
			return fmt.Errorf("matrix: unknown predicate %q for %s/%s/%s", rule.Predicate, k.Resource, k.Role, k.Action)
		}
	}

	for k, set := range m.updateFields {
		mutable := MutableFields(k.Resource)
		for f := range set {
			if !mutable.Contains(f) {
				return fmt.Errorf("matrix: update field %q on %s for %s is not writable", f, k.Resource, k.Role)
			}
		}
	}
	for k, set := range m.createFields {
		declared := CreatableFields(k.Resource)
		for f := range set {
			if f == "college" {
				return fmt.Errorf("matrix: create set for %s/%s names the tenant reference", k.Resource, k.Role)
			}
			if !declared.Contains(f) {
				return fmt.Errorf("matrix: create field %q on %s for %s is not declared", f, k.Resource, k.Role)
			}
		}
		for f := range m.updateFields[fieldKey(k)] {
			if !set.Contains(f) {
				return fmt.Errorf("matrix: create set for %s/%s is missing update field %q", k.Resource, k.Role, f)
			}
		}
	}
	return nil
}

// Checksum returns a deterministic hash of the whole matrix, used for bundle
// signing and change detection.
func (m *Matrix) Checksum() string {
	type cell struct {
		Resource  ResourceType       `json:"resource"`
		Role      Role               `json:"role"`
		Action    Action             `json:"action"`
		Allow     bool               `json:"allow"`
		Predicate OwnershipPredicate `json:"predicate"`
	}
	type fieldRow struct {
		Resource ResourceType `json:"resource"`
		Role     Role         `json:"role"`
		Mode     WriteMode    `json:"mode"`
		Fields   []string     `json:"fields"`
	}
	cells := make([]cell, 0, len(m.rules))
	for k, r := range m.rules {
		cells = append(cells, cell{k.Resource, k.Role, k.Action, r.Allow, r.Predicate})
	}
	sort.Slice(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.Action < b.Action
	})
	rows := make([]fieldRow, 0, len(m.updateFields)+len(m.createFields))
	for k, set := range m.updateFields {
		rows = append(rows, fieldRow{k.Resource, k.Role, WriteUpdate, set.Names()})
	}
	for k, set := range m.createFields {
		rows = append(rows, fieldRow{k.Resource, k.Role, WriteCreate, set.Names()})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.Mode < b.Mode
	})
	data, _ := json.Marshal(struct {
		Version int        `json:"version"`
		Cells   []cell     `json:"cells"`
		Fields  []fieldRow `json:"fields"`
	}{m.Version, cells, rows})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
