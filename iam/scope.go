package iam

import "sort"

// ============================================================================
// SCOPE FILTER
// ============================================================================

// ScopePredicate is the query-narrowing shape the persistence layer applies
// before returning any collection. It only shapes visibility; it never makes
// an allow/deny decision. An explicit instance read, update or delete still
// goes through Evaluate afterwards, so a row matching a mis-scoped join does
// not slip past per-instance checks.
type ScopePredicate struct {
	// MatchAll disables narrowing entirely (tenant-exempt superadmin).
	MatchAll bool `json:"match_all,omitempty"`
	// MatchNone yields an empty result set: no held role may see this
	// resource at all.
	MatchNone bool `json:"match_none,omitempty"`
	// TenantID is the mandatory first narrowing for every non-exempt role.
	TenantID string `json:"tenant_id,omitempty"`
	// TenantWide is set when at least one held role sees the whole tenant,
	// making the row-level narrowings below irrelevant.
	TenantWide bool `json:"tenant_wide,omitempty"`
	// ClassIDs restricts rows to these classes (teacher narrowing). Sorted,
	// for deterministic query text.
	ClassIDs []string `json:"class_ids,omitempty"`
	// OwnerRecordID restricts rows to one owning record (student narrowing).
	OwnerRecordID string `json:"owner_record_id,omitempty"`
}

// Matches applies the predicate in memory; the SQL rendering in stores
// follows the same semantics. Row-level narrowings OR together.
func (p ScopePredicate) Matches(t *Target) bool {
	if p.MatchAll {
		return true
	}
	if p.MatchNone || t == nil {
		return false
	}
	if t.TenantID != p.TenantID {
		return false
	}
	if p.TenantWide {
		return true
	}
	for _, id := range p.ClassIDs {
		if t.ClassID == id {
			return true
		}
	}
	if p.OwnerRecordID != "" && t.OwnerRecordID == p.OwnerRecordID {
		return true
	}
	return false
}

// classLinked marks the resources a teacher sees through class assignment:
// either directly carrying a class reference or transitively owned by a
// student of such a class.
var classLinked = map[ResourceType]bool{
	ResourceStudent:         true,
	ResourceActivitySheet:   true,
	ResourceValidation:      true,
	ResourceFollowUpSession: true,
}

// ownerLinked marks the resources a student sees through record ownership.
var ownerLinked = map[ResourceType]bool{
	ResourceStudent:         true,
	ResourceActivitySheet:   true,
	ResourceValidation:      true,
	ResourceFollowUpSession: true,
}

// ScopeFor produces the list/read narrowing predicate for the context on a
// resource. Roles union most-permissively: one tenant-wide role makes the
// whole predicate tenant-wide.
func (e *Engine) ScopeFor(authCtx *AuthContext, rt ResourceType) ScopePredicate {
	return scopeFor(e.matrix.Load(), authCtx, rt)
}

func scopeFor(m *Matrix, c *AuthContext, rt ResourceType) ScopePredicate {
	if c.IsSuperAdmin() {
		return ScopePredicate{MatchAll: true}
	}
	if c.TenantID == "" {
		return ScopePredicate{MatchNone: true}
	}

	p := ScopePredicate{TenantID: c.TenantID}
	visible := false
	for _, role := range c.Roles {
		if !roleCanSee(m, rt, role) {
			continue
		}
		visible = true
		switch role {
		case RoleTeacher:
			if classLinked[rt] {
				for id := range c.AssignedClassIDs {
					p.ClassIDs = append(p.ClassIDs, id)
				}
			} else {
				p.TenantWide = true
			}
		case RoleStudent:
			if ownerLinked[rt] {
				if c.OwnRecordID != "" {
					p.OwnerRecordID = c.OwnRecordID
				}
			} else {
				p.TenantWide = true
			}
		default:
			p.TenantWide = true
		}
	}
	if !visible {
		return ScopePredicate{MatchNone: true}
	}
	if p.TenantWide {
		p.ClassIDs = nil
		p.OwnerRecordID = ""
		return p
	}
	if len(p.ClassIDs) == 0 && p.OwnerRecordID == "" {
		// visible in principle, but no assignments to anchor the narrowing
		return ScopePredicate{MatchNone: true}
	}
	sort.Strings(p.ClassIDs)
	return p
}

func roleCanSee(m *Matrix, rt ResourceType, role Role) bool {
	if rule, ok := m.Rule(rt, role, ActionList); ok && rule.Allow {
		return true
	}
	if rule, ok := m.Rule(rt, role, ActionRead); ok && rule.Allow {
		return true
	}
	return false
}
