package stores

import (
	"fmt"
	"strings"

	"github.com/Ashokgmindia/review360/iam"
)

// ScopeColumns names the columns of the target table the rendered predicate
// filters on.
type ScopeColumns struct {
	TenantID      string
	ClassID       string
	OwnerRecordID string
}

// DefaultScopeColumns fits the conventional Review360 schema.
var DefaultScopeColumns = ScopeColumns{
	TenantID:      "college_id",
	ClassID:       "class_id",
	OwnerRecordID: "owner_record_id",
}

// RenderScope turns a scope predicate into a named-parameter WHERE fragment
// plus its bind map, in the same shape the other squealx queries use. The
// fragment is always safe to AND into a larger query: MatchAll renders "1=1",
// MatchNone renders "1=0". Row-level narrowings OR together, mirroring
// ScopePredicate.Matches.
func RenderScope(p iam.ScopePredicate, cols ScopeColumns) (string, map[string]any) {
	if p.MatchAll {
		return "1=1", map[string]any{}
	}
	if p.MatchNone {
		return "1=0", map[string]any{}
	}

	params := map[string]any{"scope_tenant": p.TenantID}
	frag := cols.TenantID + " = :scope_tenant"
	if p.TenantWide {
		return frag, params
	}

	rows := make([]string, 0, 2)
	if len(p.ClassIDs) > 0 {
		names := make([]string, len(p.ClassIDs))
		for i, id := range p.ClassIDs {
			name := fmt.Sprintf("scope_class_%d", i)
			names[i] = ":" + name
			params[name] = id
		}
		rows = append(rows, cols.ClassID+" IN ("+strings.Join(names, ", ")+")")
	}
	if p.OwnerRecordID != "" {
		rows = append(rows, cols.OwnerRecordID+" = :scope_owner")
		params["scope_owner"] = p.OwnerRecordID
	}
	if len(rows) == 0 {
		return "1=0", map[string]any{}
	}
	return frag + " AND (" + strings.Join(rows, " OR ") + ")", params
}
