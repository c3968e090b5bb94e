package iam

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/Ashokgmindia/review360/logger"
)

// ============================================================================
// ENGINE
// ============================================================================

// AssignmentLookup is the engine's only upstream collaborator: it answers
// "what roles and assignments does this user hold in this tenant". The engine
// never reaches the database directly.
type AssignmentLookup interface {
	GetRolesAndAssignments(ctx context.Context, userID, tenantID string) (*Assignments, error)
}

// AuditStore receives authorization decisions for the audit trail. Writing is
// asynchronous and never blocks or influences a decision.
type AuditStore interface {
	LogDecision(ctx context.Context, entry *AuditEntry) error
}

// AuditEntry records one decision.
type AuditEntry struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	TraceID   string       `json:"trace_id,omitempty"`
	UserID    string       `json:"user_id"`
	TenantID  string       `json:"tenant_id"`
	Resource  ResourceType `json:"resource"`
	Action    Action       `json:"action"`
	TargetID  string       `json:"target_id,omitempty"`
	Decision  Decision     `json:"decision"`
}

type decisionCacheEntry struct {
	decision  Decision
	expiresAt time.Time
}

// Engine composes the decision pipeline: resolve context, evaluate
// permission, enforce fields, shape scope. It is stateless per request; the
// only shared state is the read-only matrix behind an atomic pointer and the
// short-TTL decision cache.
type Engine struct {
	lookup      AssignmentLookup
	matrix      atomic.Pointer[Matrix]
	logger      logger.Logger
	traceIDFunc logger.TraceIDFunc

	decisionCacheTTL time.Duration
	decisionCacheMu  sync.RWMutex
	decisionCache    map[string]decisionCacheEntry
	fastCache        *ristretto.Cache

	auditStore AuditStore
	auditCh    chan AuditEntry
	auditOnce  sync.Once
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine)

// WithLogger installs a structured logger on the engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithTraceIDFunc installs a correlation-id generator used on audit entries.
func WithTraceIDFunc(f logger.TraceIDFunc) EngineOption {
	return func(e *Engine) { e.traceIDFunc = f }
}

// WithAuditStore enables asynchronous decision auditing.
func WithAuditStore(s AuditStore) EngineOption {
	return func(e *Engine) { e.auditStore = s }
}

// WithDecisionCacheTTL overrides the default 1s decision cache TTL. Zero or
// negative disables caching.
func WithDecisionCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) { e.decisionCacheTTL = ttl }
}

// WithMatrix starts the engine on the given matrix instead of DefaultMatrix.
func WithMatrix(m *Matrix) EngineOption {
	return func(e *Engine) { e.matrix.Store(m) }
}

// WithRistrettoDecisionCache switches the decision cache to a ristretto
// cache sized by the given parameters. Falls back to the built-in map cache
// when the cache cannot be constructed.
func WithRistrettoDecisionCache(numCounters, maxCost, bufferItems int64) EngineOption {
	return func(e *Engine) {
		if err := e.ConfigureRistrettoDecisionCache(numCounters, maxCost, bufferItems); err != nil {
			e.logger.Error("ristretto cache unavailable, using map cache", "error", err.Error())
		}
	}
}

// NewEngine builds an Engine around the assignment collaborator. Without
// options it runs on the built-in matrix, a 1s map decision cache, no audit
// store and a null logger.
func NewEngine(lookup AssignmentLookup, opts ...EngineOption) *Engine {
	e := &Engine{
		lookup:           lookup,
		logger:           logger.NewNullLogger(),
		decisionCacheTTL: time.Second,
		decisionCache:    make(map[string]decisionCacheEntry),
	}
	e.matrix.Store(DefaultMatrix())
	for _, opt := range opts {
		opt(e)
	}
	if e.auditStore != nil {
		e.startAuditWorker()
	}
	return e
}

// ConfigureRistrettoDecisionCache installs a ristretto-backed decision cache.
func (e *Engine) ConfigureRistrettoDecisionCache(numCounters, maxCost, bufferItems int64) error {
	if numCounters <= 0 {
		numCounters = 1e6
	}
	if maxCost <= 0 {
		maxCost = 1 << 24
	}
	if bufferItems <= 0 {
		bufferItems = 64
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return err
	}
	e.fastCache = cache
	return nil
}

// Matrix returns the matrix currently in force.
func (e *Engine) Matrix() *Matrix { return e.matrix.Load() }

// SwapMatrix atomically replaces the whole matrix and flushes the decision
// cache. Readers mid-request keep the matrix they already loaded; nobody ever
// observes a half-updated table.
func (e *Engine) SwapMatrix(m *Matrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	e.matrix.Store(m)
	e.InvalidateDecisionCache()
	e.logger.Info("policy matrix swapped", "version", m.Version, "rules", m.RuleCount())
	return nil
}

// InvalidateDecisionCache drops every cached decision.
func (e *Engine) InvalidateDecisionCache() {
	e.decisionCacheMu.Lock()
	e.decisionCache = make(map[string]decisionCacheEntry)
	e.decisionCacheMu.Unlock()
	if e.fastCache != nil {
		e.fastCache.Clear()
	}
}

// Evaluate returns the permission decision for one attempted operation.
// Target carries the instance's ownership attributes and is required for
// read-single/update/delete; list and create pass nil.
func (e *Engine) Evaluate(ctx context.Context, authCtx *AuthContext, rt ResourceType, action Action, target *Target) Decision {
	key := decisionKey(authCtx, rt, action, target)
	if dec, ok := e.cachedDecision(key); ok {
		return dec
	}
	dec := evaluate(e.matrix.Load(), authCtx, rt, action, target, false)
	e.cacheDecision(key, dec)
	e.audit(ctx, authCtx, rt, action, target, dec)
	return dec
}

// Explain is Evaluate with a step-by-step trace attached, for debugging and
// audit tooling. Explained decisions bypass the cache.
func (e *Engine) Explain(ctx context.Context, authCtx *AuthContext, rt ResourceType, action Action, target *Target) Decision {
	dec := evaluate(e.matrix.Load(), authCtx, rt, action, target, true)
	e.audit(ctx, authCtx, rt, action, target, dec)
	return dec
}

// evaluate is the pure decision function over a fixed matrix.
func evaluate(m *Matrix, c *AuthContext, rt ResourceType, action Action, target *Target, trace bool) Decision {
	dec := Decision{Timestamp: time.Now()}
	addTrace := func(format string, args ...any) {
		if trace {
			dec.Trace = append(dec.Trace, fmt.Sprintf(format, args...))
		}
	}

	super := c.IsSuperAdmin()

	// Tenant isolation precedes all role logic.
	if c.TenantID == "" && !super {
		addTrace("DENY: context carries no tenant and is not tenant-exempt")
		dec.Reason = ReasonNoTenantContext
		return dec
	}
	if target != nil && !super && target.TenantID != c.TenantID {
		addTrace("DENY: target tenant %q != context tenant %q", target.TenantID, c.TenantID)
		dec.Reason = ReasonTenantMismatch
		return dec
	}

	// Role cells OR together: any satisfied allow wins. Adding a role can
	// only widen access, never narrow it.
	ownershipFailed := false
	for _, role := range c.Roles {
		rule, ok := m.Rule(rt, role, action)
		if !ok {
			addTrace("role=%s: no cell for %s/%s, skip", role, rt, action)
			continue
		}
		if !rule.Allow {
			addTrace("role=%s: explicit deny cell", role)
			continue
		}
		if rule.Predicate.holds(c, target) {
			addTrace("ALLOW: role=%s predicate=%s satisfied", role, rule.Predicate)
			dec.Allowed = true
			dec.MatchedRole = role
			return dec
		}
		ownershipFailed = true
		addTrace("role=%s: predicate %s not satisfied", role, rule.Predicate)
	}

	if ownershipFailed {
		dec.Reason = ReasonOwnershipFailed
	} else {
		dec.Reason = ReasonNoMatchingPolicy
	}
	addTrace("DENY: %s", dec.Reason)
	return dec
}

// EnforceFields checks a write payload's field names against the union of the
// field allow-lists of every role the context holds. A non-empty remainder
// rejects the whole write, naming exactly the offending fields.
func (e *Engine) EnforceFields(authCtx *AuthContext, rt ResourceType, attempted []string, mode WriteMode) FieldDecision {
	m := e.matrix.Load()
	allowed := FieldSet{}
	for _, role := range authCtx.Roles {
		switch mode {
		case WriteCreate:
			allowed = allowed.Union(m.CreateFields(rt, role))
		default:
			allowed = allowed.Union(m.UpdateFields(rt, role))
		}
	}
	rejected := FieldSet{}
	for _, f := range attempted {
		if !allowed.Contains(f) {
			rejected[f] = true
		}
	}
	if len(rejected) > 0 {
		return FieldDecision{Allowed: false, Rejected: rejected.Names()}
	}
	return FieldDecision{Allowed: true}
}

func decisionKey(c *AuthContext, rt ResourceType, action Action, target *Target) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(c.TenantID)
	b.WriteByte('|')
	b.WriteString(c.UserID)
	b.WriteByte('|')
	b.WriteString(string(rt))
	b.WriteByte('|')
	b.WriteString(string(action))
	b.WriteByte('|')
	if target != nil {
		b.WriteString(target.ID)
	}
	return b.String()
}

func (e *Engine) cachedDecision(key string) (Decision, bool) {
	if e.decisionCacheTTL <= 0 {
		return Decision{}, false
	}
	if e.fastCache != nil {
		if v, ok := e.fastCache.Get(key); ok {
			if dec, ok2 := v.(Decision); ok2 {
				return dec, true
			}
		}
		return Decision{}, false
	}
	e.decisionCacheMu.RLock()
	entry, ok := e.decisionCache[key]
	e.decisionCacheMu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return Decision{}, false
	}
	return entry.decision, true
}

func (e *Engine) cacheDecision(key string, dec Decision) {
	if e.decisionCacheTTL <= 0 {
		return
	}
	if e.fastCache != nil {
		e.fastCache.SetWithTTL(key, dec, 1, e.decisionCacheTTL)
		return
	}
	e.decisionCacheMu.Lock()
	e.decisionCache[key] = decisionCacheEntry{decision: dec, expiresAt: time.Now().Add(e.decisionCacheTTL)}
	e.decisionCacheMu.Unlock()
}

func (e *Engine) startAuditWorker() {
	e.auditOnce.Do(func() {
		e.auditCh = make(chan AuditEntry, 1024)
		go func() {
			bg := context.Background()
			for entry := range e.auditCh {
				if err := e.auditStore.LogDecision(bg, &entry); err != nil {
					e.logger.Error("audit write failed", "entry_id", entry.ID, "error", err.Error())
				}
			}
		}()
	})
}

func (e *Engine) audit(_ context.Context, c *AuthContext, rt ResourceType, action Action, target *Target, dec Decision) {
	if e.auditStore == nil {
		return
	}
	entry := AuditEntry{
		Timestamp: dec.Timestamp,
		UserID:    c.UserID,
		TenantID:  c.TenantID,
		Resource:  rt,
		Action:    action,
		Decision:  dec,
	}
	if target != nil {
		entry.TargetID = target.ID
	}
	if e.traceIDFunc != nil {
		entry.TraceID = e.traceIDFunc()
		entry.ID = entry.TraceID
	}
	select {
	case e.auditCh <- entry:
	default:
		// never block a decision on the audit trail
	}
}

// Close stops the audit worker.
func (e *Engine) Close() {
	if e.auditCh != nil {
		close(e.auditCh)
	}
	if e.fastCache != nil {
		e.fastCache.Close()
	}
}
