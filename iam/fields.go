package iam

import "sort"

// Mutability classifies a resource field for write purposes.
type Mutability string

const (
	ImmutableAfterCreate Mutability = "immutable-after-create"
	RoleWritable         Mutability = "role-writable"
	SelfWritable         Mutability = "self-writable"
)

// FieldSet is a named set of field names.
type FieldSet map[string]bool

// NewFieldSet builds a FieldSet from the given names.
func NewFieldSet(names ...string) FieldSet {
	fs := make(FieldSet, len(names))
	for _, n := range names {
		fs[n] = true
	}
	return fs
}

// Union returns a new set containing every field of both sets.
func (fs FieldSet) Union(other FieldSet) FieldSet {
	out := make(FieldSet, len(fs)+len(other))
	for f := range fs {
		out[f] = true
	}
	for f := range other {
		out[f] = true
	}
	return out
}

// Contains reports membership.
func (fs FieldSet) Contains(name string) bool { return fs[name] }

// Names returns the fields in sorted order, for stable output.
func (fs FieldSet) Names() []string {
	out := make([]string, 0, len(fs))
	for f := range fs {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// fieldSchemas declares, per resource, every field and its mutability class.
// The tenant reference ("college") and structural identifiers are
// immutable-after-create everywhere; the matrix validator enforces that no
// field-policy set ever names them, so the enforcer needs no special case.
var fieldSchemas = map[ResourceType]map[string]Mutability{
	ResourceClass: {
		"college":       ImmutableAfterCreate,
		"academic_year": ImmutableAfterCreate,
		"name":          RoleWritable,
		"is_active":     RoleWritable,
	},
	ResourceStudent: {
		"college":        ImmutableAfterCreate,
		"student_number": ImmutableAfterCreate,
		"class_ref":      RoleWritable, // admin-creatable only; never in any update set
		"academic_year":  RoleWritable, // likewise create-only by policy
		"department":     RoleWritable,
		"status":         RoleWritable,
		"first_name":     SelfWritable,
		"last_name":      SelfWritable,
		"email":          SelfWritable,
		"phone_number":   SelfWritable,
	},
	ResourceTeacher: {
		"college":      ImmutableAfterCreate,
		"employee_id":  ImmutableAfterCreate,
		"department":   RoleWritable,
		"status":       RoleWritable,
		"first_name":   SelfWritable,
		"last_name":    SelfWritable,
		"email":        SelfWritable,
		"phone_number": SelfWritable,
	},
	ResourceDepartment: {
		"college":     ImmutableAfterCreate,
		"name":        RoleWritable,
		"description": RoleWritable,
	},
	ResourceSubject: {
		"college":          ImmutableAfterCreate,
		"department":       RoleWritable,
		"name":             RoleWritable,
		"description":      RoleWritable,
		"syllabus":         RoleWritable,
		"handling_teacher": RoleWritable,
	},
	ResourceImportLog: {
		"college":   ImmutableAfterCreate,
		"class_ref": ImmutableAfterCreate,
		"filename":  ImmutableAfterCreate,
	},
	ResourceActivitySheet: {
		"college":       ImmutableAfterCreate,
		"student_ref":   ImmutableAfterCreate,
		"sheet_type":    ImmutableAfterCreate,
		"sheet_number":  ImmutableAfterCreate,
		"academic_year": ImmutableAfterCreate,
		"title":         SelfWritable,
		"context":       SelfWritable,
		"objectives":    SelfWritable,
		"methodology":   SelfWritable,
		"status":        SelfWritable,
		"final_grade":   RoleWritable,
	},
	ResourceValidation: {
		"college":                 ImmutableAfterCreate,
		"session_ref":             ImmutableAfterCreate,
		"has_subject":             RoleWritable,
		"context_well_formulated": RoleWritable,
		"objectives_validated":    RoleWritable,
		"methodology_respected":   RoleWritable,
		"session_grade":           RoleWritable,
		"comments":                RoleWritable,
	},
	ResourceFollowUpSession: {
		"college":          ImmutableAfterCreate,
		"student_ref":      ImmutableAfterCreate,
		"academic_year":    ImmutableAfterCreate,
		"teacher_ref":      RoleWritable,
		"session_datetime": RoleWritable,
		"location":         RoleWritable,
		"objective":        RoleWritable,
		"status":           RoleWritable,
	},
}

// MutableFields returns the role-writable plus self-writable fields of a
// resource, i.e. the universe any field-policy set may draw from.
func MutableFields(rt ResourceType) FieldSet {
	schema := fieldSchemas[rt]
	out := make(FieldSet, len(schema))
	for f, m := range schema {
		if m != ImmutableAfterCreate {
			out[f] = true
		}
	}
	return out
}

// CreatableFields returns every declared field of a resource: at creation the
// immutable-after-create fields are exactly the ones being fixed.
func CreatableFields(rt ResourceType) FieldSet {
	schema := fieldSchemas[rt]
	out := make(FieldSet, len(schema))
	for f := range schema {
		out[f] = true
	}
	return out
}

// FieldMutability looks up a single field's class; ok is false for unknown
// fields.
func FieldMutability(rt ResourceType, field string) (Mutability, bool) {
	m, ok := fieldSchemas[rt][field]
	return m, ok
}
