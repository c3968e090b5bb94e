package iam

import (
	"errors"
	"fmt"
)

// ErrIdentityResolution and ErrLookup are sentinel targets for errors.Is.
var (
	ErrIdentityResolution = errors.New("identity resolution failed")
	ErrLookup             = errors.New("assignment lookup failed")
)

// IdentityResolutionError means no AuthContext could be built for the caller:
// the user is inactive or holds no active role in the requested tenant. It is
// terminal for the request and surfaced upstream as an authorization failure,
// never retried inside the engine.
type IdentityResolutionError struct {
	UserID   string
	TenantID string
	Cause    string
}

func (e *IdentityResolutionError) Error() string {
	return fmt.Sprintf("resolve context for user %s in tenant %q: %s", e.UserID, e.TenantID, e.Cause)
}

func (e *IdentityResolutionError) Is(target error) bool {
	return target == ErrIdentityResolution
}

// LookupError wraps an infrastructure failure of the role/assignment
// collaborator. Distinct from IdentityResolutionError: the caller may retry
// per its own policy, but must treat the request as denied meanwhile
// (fail-closed).
type LookupError struct {
	UserID string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("assignment lookup for user %s: %v", e.UserID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Is(target error) bool {
	return target == ErrLookup
}
