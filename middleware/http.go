package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Ashokgmindia/review360/iam"
)

// HTTPAuthOptions configures the net/http authorization middleware. Extractor
// functions are supplied by the application; OnDenied and OnError customize
// responses.
type HTTPAuthOptions struct {
	Engine *iam.Engine
	// Identity extracts the already-authenticated caller from the request.
	Identity func(r *http.Request) iam.Identity
	// Operation maps the request onto a gated operation. Target may be nil
	// for create and list requests.
	Operation func(r *http.Request) (iam.ResourceType, iam.Action, *iam.Target)
	OnDenied  func(w http.ResponseWriter, r *http.Request, decision iam.Decision)
	OnError   func(w http.ResponseWriter, r *http.Request, err error)
}

// DefaultHTTPAuthOptions returns handlers for OnDenied/OnError but leaves the
// extractors nil so callers must provide them. The denial body only ever
// carries the redacted reason.
func DefaultHTTPAuthOptions() *HTTPAuthOptions {
	return &HTTPAuthOptions{
		OnDenied: func(w http.ResponseWriter, r *http.Request, decision iam.Decision) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(string(decision.RedactedReason())))
		},
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("internal error"))
		},
	}
}

type ctxKey int

const (
	authCtxKey ctxKey = iota
	decisionKey
)

// ContextWithAuth attaches the resolved AuthContext to a request context.
func ContextWithAuth(ctx context.Context, c *iam.AuthContext) context.Context {
	return context.WithValue(ctx, authCtxKey, c)
}

// AuthFromContext returns the AuthContext placed by the middleware, or nil.
func AuthFromContext(ctx context.Context) *iam.AuthContext {
	c, _ := ctx.Value(authCtxKey).(*iam.AuthContext)
	return c
}

// DecisionFromContext returns the decision placed by the middleware.
func DecisionFromContext(ctx context.Context) (iam.Decision, bool) {
	d, ok := ctx.Value(decisionKey).(iam.Decision)
	return d, ok
}

// NewHTTPAuthMiddleware returns a handler wrapper that resolves the caller's
// tenant context, evaluates the operation and either forwards the request
// with the AuthContext attached or ends it. Resolution failures are denials;
// infrastructure failures fail closed through OnError.
func NewHTTPAuthMiddleware(opts *HTTPAuthOptions) func(next http.Handler) http.Handler {
	if opts == nil {
		opts = DefaultHTTPAuthOptions()
	}
	if opts.OnDenied == nil {
		opts.OnDenied = DefaultHTTPAuthOptions().OnDenied
	}
	if opts.OnError == nil {
		opts.OnError = DefaultHTTPAuthOptions().OnError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Engine == nil || opts.Identity == nil || opts.Operation == nil {
				opts.OnError(w, r, fmt.Errorf("middleware misconfigured: Engine, Identity and Operation are required"))
				return
			}

			authCtx, err := opts.Engine.ResolveContext(r.Context(), opts.Identity(r))
			if err != nil {
				if errors.Is(err, iam.ErrIdentityResolution) {
					opts.OnDenied(w, r, iam.Decision{Reason: iam.ReasonNoMatchingPolicy})
					return
				}
				opts.OnError(w, r, err)
				return
			}

			rt, action, target := opts.Operation(r)
			dec := opts.Engine.Evaluate(r.Context(), authCtx, rt, action, target)

			ctx := ContextWithAuth(r.Context(), authCtx)
			ctx = context.WithValue(ctx, decisionKey, dec)
			r = r.WithContext(ctx)

			if dec.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			opts.OnDenied(w, r, dec)
		})
	}
}
