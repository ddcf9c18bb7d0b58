package aegis

import (
	"context"

	"github.com/xraph/forge"
)

type contextKey int

const (
	ctxKeyAppID contextKey = iota
	ctxKeyTenantID
)

// WithTenant returns a context carrying the given app and tenant IDs.
// Use this in standalone mode; under Forge the request scope already
// carries both and takes precedence.
func WithTenant(ctx context.Context, appID, tenantID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyAppID, appID)
	return context.WithValue(ctx, ctxKeyTenantID, tenantID)
}

type tenantScope struct {
	appID    string
	tenantID string
}

func scopeFromContext(ctx context.Context) tenantScope {
	if s, ok := forge.ScopeFrom(ctx); ok {
		return tenantScope{appID: s.AppID(), tenantID: s.OrgID()}
	}
	sc := tenantScope{}
	if v, ok := ctx.Value(ctxKeyAppID).(string); ok {
		sc.appID = v
	}
	if v, ok := ctx.Value(ctxKeyTenantID).(string); ok {
		sc.tenantID = v
	}
	return sc
}
