package iam

import (
	"context"
	"sync"
)

// ============================================================================
// IN-MEMORY COLLABORATORS (tests and demos)
// ============================================================================

// MemoryAssignmentStore is an in-memory AssignmentLookup.
type MemoryAssignmentStore struct {
	mu    sync.RWMutex
	users map[string]*Assignments // key: userID + "|" + tenantID
}

func NewMemoryAssignmentStore() *MemoryAssignmentStore {
	return &MemoryAssignmentStore{users: make(map[string]*Assignments)}
}

func assignmentKey(userID, tenantID string) string { return userID + "|" + tenantID }

// Put registers the assignment snapshot for a user in a tenant. Superadmin
// sessions use an empty tenant id.
func (s *MemoryAssignmentStore) Put(userID, tenantID string, as Assignments) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := as
	cop.Roles = append([]Role(nil), as.Roles...)
	cop.AssignedClassIDs = append([]string(nil), as.AssignedClassIDs...)
	cop.HODDepartmentIDs = append([]string(nil), as.HODDepartmentIDs...)
	s.users[assignmentKey(userID, tenantID)] = &cop
}

// Remove drops a user's snapshot, simulating revocation between requests.
func (s *MemoryAssignmentStore) Remove(userID, tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, assignmentKey(userID, tenantID))
}

func (s *MemoryAssignmentStore) GetRolesAndAssignments(ctx context.Context, userID, tenantID string) (*Assignments, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	as, ok := s.users[assignmentKey(userID, tenantID)]
	if !ok {
		return nil, nil
	}
	cop := *as
	cop.Roles = append([]Role(nil), as.Roles...)
	cop.AssignedClassIDs = append([]string(nil), as.AssignedClassIDs...)
	cop.HODDepartmentIDs = append([]string(nil), as.HODDepartmentIDs...)
	return &cop, nil
}

// MemoryAuditStore collects decisions in memory.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*AuditEntry, 0)}
}

func (s *MemoryAuditStore) LogDecision(ctx context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := *entry
	s.entries = append(s.entries, &cop)
	return nil
}

// Entries returns a snapshot of everything logged so far.
func (s *MemoryAuditStore) Entries() []*AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
