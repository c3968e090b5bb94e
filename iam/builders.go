package iam

// MatrixBuilder provides a fluent API for assembling a policy Matrix.

type MatrixBuilder struct {
	m *Matrix
}

func NewMatrixBuilder() *MatrixBuilder {
	return &MatrixBuilder{m: &Matrix{
		rules:        make(map[policyKey]PolicyRule),
		updateFields: make(map[fieldKey]FieldSet),
		createFields: make(map[fieldKey]FieldSet),
	}}
}

func (b *MatrixBuilder) Version(v int) *MatrixBuilder { b.m.Version = v; return b }

// Grant opens a grant for role on resource; finish it with Actions/When.
func (b *MatrixBuilder) Grant(role Role, rt ResourceType) *GrantBuilder {
	return &GrantBuilder{parent: b, role: role, resource: rt, predicate: PredicateNone}
}

// Deny records an explicit deny cell. Rarely needed — absent cells already
// deny — but useful to pin down combinations that must stay closed even if a
// broader grant is added later by config.
func (b *MatrixBuilder) Deny(role Role, rt ResourceType, actions ...Action) *MatrixBuilder {
	for _, a := range actions {
		b.m.rules[policyKey{rt, role, a}] = PolicyRule{Allow: false, Predicate: PredicateNone}
	}
	return b
}

// UpdateFields sets the update-mode field allow-list for (resource, role).
func (b *MatrixBuilder) UpdateFields(role Role, rt ResourceType, fields ...string) *MatrixBuilder {
	b.m.updateFields[fieldKey{rt, role}] = NewFieldSet(fields...)
	return b
}

// CreateFields sets the create-mode field allow-list for (resource, role).
func (b *MatrixBuilder) CreateFields(role Role, rt ResourceType, fields ...string) *MatrixBuilder {
	b.m.createFields[fieldKey{rt, role}] = NewFieldSet(fields...)
	return b
}

// Build returns the assembled matrix. The builder must not be reused after.
func (b *MatrixBuilder) Build() *Matrix { return b.m }

// GrantBuilder accumulates one grant's actions and predicate.
type GrantBuilder struct {
	parent    *MatrixBuilder
	role      Role
	resource  ResourceType
	predicate OwnershipPredicate
	actions   []Action
}

func (g *GrantBuilder) Actions(actions ...Action) *GrantBuilder {
	g.actions = append(g.actions, actions...)
	return g
}

// When attaches an ownership predicate to every action of this grant.
func (g *GrantBuilder) When(p OwnershipPredicate) *GrantBuilder {
	g.predicate = p
	return g
}

// Done writes the accumulated cells and returns the matrix builder.
func (g *GrantBuilder) Done() *MatrixBuilder {
	for _, a := range g.actions {
		g.parent.m.rules[policyKey{g.resource, g.role, a}] = PolicyRule{Allow: true, Predicate: g.predicate}
	}
	return g.parent
}
