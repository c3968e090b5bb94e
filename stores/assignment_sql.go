package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/Ashokgmindia/review360/iam"
)

// SQLAssignmentStore answers role and assignment lookups from SQL (squealx).
// It is the production iam.AssignmentLookup; the write methods exist for
// provisioning and tests.
type SQLAssignmentStore struct {
	db *squealx.DB
}

func NewSQLAssignmentStore(db *squealx.DB) *SQLAssignmentStore {
	return &SQLAssignmentStore{db: db}
}

// GetRolesAndAssignments returns nil for an unknown user, an inactive
// snapshot when every membership row is deactivated, and otherwise the active
// roles plus the teacher/student assignment rows.
func (s *SQLAssignmentStore) GetRolesAndAssignments(ctx context.Context, userID, tenantID string) (*iam.Assignments, error) {
	q := `SELECT role, active FROM role_memberships WHERE user_id = :user_id AND tenant_id = :tenant_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	found := false
	as := &iam.Assignments{}
	for r.Next() {
		var role string
		var active int
		if err := r.Scan(&role, &active); err != nil {
			return nil, err
		}
		found = true
		if active == 0 {
			continue
		}
		as.Active = true
		as.Roles = append(as.Roles, iam.Role(role))
	}
	if !found {
		return nil, nil
	}
	if !as.Active {
		return as, nil
	}

	as.AssignedClassIDs, err = s.listColumn(ctx,
		`SELECT class_id FROM class_assignments WHERE user_id = :user_id AND tenant_id = :tenant_id`,
		userID, tenantID)
	if err != nil {
		return nil, err
	}
	as.HODDepartmentIDs, err = s.listColumn(ctx,
		`SELECT department_id FROM department_heads WHERE user_id = :user_id AND tenant_id = :tenant_id`,
		userID, tenantID)
	if err != nil {
		return nil, err
	}
	as.OwnRecordID, err = s.ownRecord(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	return as, nil
}

func (s *SQLAssignmentStore) listColumn(ctx context.Context, q, userID, tenantID string) ([]string, error) {
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var v string
		if err := r.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *SQLAssignmentStore) ownRecord(ctx context.Context, userID, tenantID string) (string, error) {
	q := `SELECT record_id FROM owned_records WHERE user_id = :user_id AND tenant_id = :tenant_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID})
	if err != nil {
		return "", err
	}
	defer r.Close()
	if !r.Next() {
		return "", nil
	}
	var id string
	if err := r.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLAssignmentStore) AssignRole(ctx context.Context, userID, tenantID string, role iam.Role) error {
	q := `INSERT OR REPLACE INTO role_memberships(user_id, tenant_id, role, active) VALUES(:user_id, :tenant_id, :role, 1)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID, "role": string(role)})
	return err
}

func (s *SQLAssignmentStore) RevokeRole(ctx context.Context, userID, tenantID string, role iam.Role) error {
	q := `DELETE FROM role_memberships WHERE user_id = :user_id AND tenant_id = :tenant_id AND role = :role`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID, "role": string(role)})
	return err
}

// SetActive flips every membership row of the user in the tenant, used for
// account suspension without dropping the role history.
func (s *SQLAssignmentStore) SetActive(ctx context.Context, userID, tenantID string, active bool) error {
	q := `UPDATE role_memberships SET active = :active WHERE user_id = :user_id AND tenant_id = :tenant_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID, "active": boolToInt(active)})
	return err
}

func (s *SQLAssignmentStore) AssignClass(ctx context.Context, userID, tenantID, classID string) error {
	q := `INSERT OR IGNORE INTO class_assignments(user_id, tenant_id, class_id) VALUES(:user_id, :tenant_id, :class_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID, "class_id": classID})
	return err
}

func (s *SQLAssignmentStore) UnassignClass(ctx context.Context, userID, tenantID, classID string) error {
	q := `DELETE FROM class_assignments WHERE user_id = :user_id AND tenant_id = :tenant_id AND class_id = :class_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID, "class_id": classID})
	return err
}

func (s *SQLAssignmentStore) SetDepartmentHead(ctx context.Context, userID, tenantID, departmentID string) error {
	q := `INSERT OR IGNORE INTO department_heads(user_id, tenant_id, department_id) VALUES(:user_id, :tenant_id, :department_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID, "department_id": departmentID})
	return err
}

func (s *SQLAssignmentStore) SetOwnRecord(ctx context.Context, userID, tenantID, recordID string) error {
	q := `INSERT OR REPLACE INTO owned_records(user_id, tenant_id, record_id) VALUES(:user_id, :tenant_id, :record_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID, "record_id": recordID})
	return err
}
