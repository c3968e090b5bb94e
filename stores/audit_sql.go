package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/Ashokgmindia/review360/iam"
)

// SQLAuditStore persists decision audit entries in SQL.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) LogDecision(ctx context.Context, entry *iam.AuditEntry) error {
	traceB, _ := json.Marshal(entry.Decision.Trace)
	q := `INSERT INTO audit_log(id, timestamp, trace_id, tenant_id, user_id, resource, action, target_id, allowed, reason, matched_role, trace_json) VALUES(:id, :timestamp, :trace_id, :tenant_id, :user_id, :resource, :action, :target_id, :allowed, :reason, :matched_role, :trace_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":           entry.ID,
		"timestamp":    entry.Timestamp,
		"trace_id":     entry.TraceID,
		"tenant_id":    entry.TenantID,
		"user_id":      entry.UserID,
		"resource":     string(entry.Resource),
		"action":       string(entry.Action),
		"target_id":    entry.TargetID,
		"allowed":      boolToInt(entry.Decision.Allowed),
		"reason":       string(entry.Decision.Reason),
		"matched_role": string(entry.Decision.MatchedRole),
		"trace_json":   string(traceB),
	})
	return err
}

// AuditFilter narrows GetAccessLog. Zero values mean "any".
type AuditFilter struct {
	UserID    string
	TenantID  string
	Resource  iam.ResourceType
	Action    iam.Action
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

func (s *SQLAuditStore) GetAccessLog(ctx context.Context, filter AuditFilter) ([]*iam.AuditEntry, error) {
	q := `SELECT id, timestamp, trace_id, tenant_id, user_id, resource, action, target_id, allowed, reason, matched_role, trace_json FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.UserID != "" {
		q += " AND user_id = :user_id"
		params["user_id"] = filter.UserID
	}
	if filter.TenantID != "" {
		q += " AND tenant_id = :tenant_id"
		params["tenant_id"] = filter.TenantID
	}
	if filter.Resource != "" {
		q += " AND resource = :resource"
		params["resource"] = string(filter.Resource)
	}
	if filter.Action != "" {
		q += " AND action = :action"
		params["action"] = string(filter.Action)
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime
	}
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*iam.AuditEntry, 0)
	for r.Next() {
		var id, traceID, tenant, user, resource, action, targetID, reason, matchedRole, traceJSON string
		var timestampRaw interface{}
		var allowedInt int
		if err := r.Scan(&id, &timestampRaw, &traceID, &tenant, &user, &resource, &action, &targetID, &allowedInt, &reason, &matchedRole, &traceJSON); err != nil {
			return nil, err
		}
		entry := &iam.AuditEntry{
			ID:        id,
			Timestamp: scanTime(timestampRaw),
			TraceID:   traceID,
			TenantID:  tenant,
			UserID:    user,
			Resource:  iam.ResourceType(resource),
			Action:    iam.Action(action),
			TargetID:  targetID,
			Decision: iam.Decision{
				Allowed:     allowedInt != 0,
				Reason:      iam.DenialReason(reason),
				MatchedRole: iam.Role(matchedRole),
			},
		}
		_ = json.Unmarshal([]byte(traceJSON), &entry.Decision.Trace)
		out = append(out, entry)
	}
	return out, nil
}
