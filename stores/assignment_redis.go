package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ashokgmindia/review360/iam"
)

// RedisAssignmentCache is a read-through cache in front of another
// iam.AssignmentLookup (key: assign:{tenantID}:{userID}). A short TTL bounds
// how long a revoked role keeps working; cache errors fall through to the
// inner lookup, never to a wrong answer.
type RedisAssignmentCache struct {
	client *redis.Client
	inner  iam.AssignmentLookup
	ttl    time.Duration
	keyFmt string // format string, e.g. "assign:%s:%s"
}

func NewRedisAssignmentCache(client *redis.Client, inner iam.AssignmentLookup, ttl time.Duration) *RedisAssignmentCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisAssignmentCache{client: client, inner: inner, ttl: ttl, keyFmt: "assign:%s:%s"}
}

func (r *RedisAssignmentCache) key(userID, tenantID string) string {
	return fmt.Sprintf(r.keyFmt, tenantID, userID)
}

func (r *RedisAssignmentCache) GetRolesAndAssignments(ctx context.Context, userID, tenantID string) (*iam.Assignments, error) {
	if raw, err := r.client.Get(ctx, r.key(userID, tenantID)).Bytes(); err == nil {
		var as iam.Assignments
		if err := json.Unmarshal(raw, &as); err == nil {
			return &as, nil
		}
	}
	as, err := r.inner.GetRolesAndAssignments(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if as != nil {
		if raw, err := json.Marshal(as); err == nil {
			_ = r.client.Set(ctx, r.key(userID, tenantID), raw, r.ttl).Err()
		}
	}
	return as, nil
}

// Invalidate drops the cached snapshot after an assignment change so the next
// request sees the new state immediately.
func (r *RedisAssignmentCache) Invalidate(ctx context.Context, userID, tenantID string) error {
	return r.client.Del(ctx, r.key(userID, tenantID)).Err()
}
