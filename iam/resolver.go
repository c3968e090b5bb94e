package iam

import (
	"context"
)

// ============================================================================
// TENANT CONTEXT RESOLVER
// ============================================================================

// ResolveContext builds the immutable per-request AuthContext for an
// authenticated identity. It is consulted once per request and the result is
// discarded at request end; assignments are deliberately re-read every time
// because they can change between requests.
//
// Failure modes are distinct: IdentityResolutionError when the user has no
// active role in the requested tenant (terminal, an authorization failure),
// LookupError when the collaborator itself failed (infrastructure, caller may
// retry). Cancellation of ctx abandons resolution with the context's error;
// in every failure case no partial context is returned and callers must treat
// the request as denied.
func (e *Engine) ResolveContext(ctx context.Context, identity Identity) (*AuthContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LookupError{UserID: identity.UserID, Err: err}
	}

	as, err := e.lookup.GetRolesAndAssignments(ctx, identity.UserID, identity.TenantID)
	if err != nil {
		e.logger.Error("assignment lookup failed", "user_id", identity.UserID, "error", err.Error())
		return nil, &LookupError{UserID: identity.UserID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &LookupError{UserID: identity.UserID, Err: err}
	}

	if as == nil || !as.Active {
		return nil, &IdentityResolutionError{UserID: identity.UserID, TenantID: identity.TenantID, Cause: "user inactive"}
	}
	if len(as.Roles) == 0 {
		return nil, &IdentityResolutionError{UserID: identity.UserID, TenantID: identity.TenantID, Cause: "no active role in tenant"}
	}

	super := false
	for _, r := range as.Roles {
		if r == RoleSuperAdmin {
			super = true
		}
	}
	if identity.TenantID == "" && !super {
		return nil, &IdentityResolutionError{UserID: identity.UserID, TenantID: identity.TenantID, Cause: "no tenant membership"}
	}

	authCtx := &AuthContext{
		UserID:      identity.UserID,
		TenantID:    identity.TenantID,
		Roles:       append([]Role(nil), as.Roles...),
		OwnRecordID: as.OwnRecordID,
	}
	if len(as.AssignedClassIDs) > 0 {
		authCtx.AssignedClassIDs = make(map[string]bool, len(as.AssignedClassIDs))
		for _, id := range as.AssignedClassIDs {
			authCtx.AssignedClassIDs[id] = true
		}
	}
	if len(as.HODDepartmentIDs) > 0 {
		authCtx.HODDepartmentIDs = make(map[string]bool, len(as.HODDepartmentIDs))
		for _, id := range as.HODDepartmentIDs {
			authCtx.HODDepartmentIDs[id] = true
		}
	}

	e.logger.Debug("resolved auth context",
		"user_id", authCtx.UserID, "tenant_id", authCtx.TenantID, "roles", len(authCtx.Roles))
	return authCtx, nil
}
