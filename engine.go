package aegis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/aegis/bitset"
	"github.com/xraph/aegis/catalog"
	"github.com/xraph/aegis/decisionlog"
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/hook"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/store"
)

// Engine is the hierarchical permission resolution engine. It walks the
// scope layers against the grant store, runs the invitation workflow and
// role template assignment, and fires extension hooks.
type Engine struct {
	store     store.Store
	catalog   *catalog.Catalog
	directory ResourceDirectory
	evaluator ConstraintEvaluator
	cache     Cache
	hooks     *hook.Registry
	logger    *slog.Logger
	config    Config
}

// NewEngine creates a new Aegis engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		catalog:   catalog.Default,
		evaluator: DefaultConstraintEvaluator(),
		logger:    slog.Default(),
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("aegis: store is required")
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Hooks returns the hook registry (may be nil).
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Start performs any startup initialization.
func (e *Engine) Start(_ context.Context) error { return nil }

// Stop performs graceful shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.hooks != nil {
		e.hooks.EmitShutdown(ctx)
	}
	return nil
}

// Evaluate resolves a permission check. This is the hot path.
func (e *Engine) Evaluate(ctx context.Context, req *EvaluateRequest) (*Decision, error) {
	start := time.Now()
	scope := scopeFromContext(ctx)
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = scope.tenantID
	}

	if e.cache != nil && e.config.CacheTTL > 0 {
		if cached, ok := e.cache.Get(ctx, tenantID, req); ok {
			cached.EvalTimeNs = time.Since(start).Nanoseconds()
			return cached, nil
		}
	}

	if e.hooks != nil {
		e.hooks.EmitBeforeEvaluate(ctx, req)
	}

	trace, err := e.resolve(ctx, req, tenantID)
	if err != nil {
		return nil, err
	}

	dec := trace.Decision
	dec.EvalTimeNs = time.Since(start).Nanoseconds()

	if e.cache != nil && e.config.CacheTTL > 0 {
		e.cache.Set(ctx, tenantID, req, &dec)
	}
	if e.config.decisionLogEnabled() {
		e.recordDecision(ctx, scope.appID, tenantID, req, &dec)
	}
	if e.hooks != nil {
		e.hooks.EmitAfterEvaluate(ctx, req, &dec)
	}

	return &dec, nil
}

// Explain resolves a permission check and returns the full per-layer
// trace. Same semantics as Evaluate; meant for administrative and
// debugging surfaces, never for hot authorization paths, so it bypasses
// the cache and the decision log.
func (e *Engine) Explain(ctx context.Context, req *EvaluateRequest) (*ResolutionTrace, error) {
	start := time.Now()
	scope := scopeFromContext(ctx)
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = scope.tenantID
	}

	trace, err := e.resolve(ctx, req, tenantID)
	if err != nil {
		return nil, err
	}
	trace.Decision.EvalTimeNs = time.Since(start).Nanoseconds()
	return trace, nil
}

// Enforce returns ErrAccessDenied if the resolution denies.
func (e *Engine) Enforce(ctx context.Context, req *EvaluateRequest) error {
	dec, err := e.Evaluate(ctx, req)
	if err != nil {
		return fmt.Errorf("aegis evaluate: %w", err)
	}
	if !dec.Granted {
		return fmt.Errorf("%w: %s", ErrAccessDenied, dec.Reason)
	}
	return nil
}

// CanI is a shorthand for a simple permission check.
func (e *Engine) CanI(ctx context.Context, subjectID, permission, resourceType, resourceID string) (bool, error) {
	dec, err := e.Evaluate(ctx, &EvaluateRequest{
		SubjectID:    subjectID,
		Permission:   permission,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
	if err != nil {
		return false, err
	}
	return dec.Granted, nil
}

// EvaluateBatch resolves several checks in order. It fails on the first
// malformed request or storage error.
func (e *Engine) EvaluateBatch(ctx context.Context, reqs []*EvaluateRequest) ([]*Decision, error) {
	decisions := make([]*Decision, 0, len(reqs))
	for _, req := range reqs {
		dec, err := e.Evaluate(ctx, req)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, dec)
	}
	return decisions, nil
}

// resolve walks the eight scope layers in ascending priority order. The
// highest-priority layer holding a live, constraint-satisfied grant
// decides; every other layer is recorded as silent in the trace.
func (e *Engine) resolve(ctx context.Context, req *EvaluateRequest, tenantID string) (*ResolutionTrace, error) {
	if req.SubjectID == "" {
		return nil, errors.New("aegis: subject id is required")
	}
	bit, err := e.catalog.BitOf(req.Permission)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPermission, req.Permission)
	}

	now := time.Now().UTC()
	cc := &ConstraintContext{
		SubjectID:    req.SubjectID,
		TenantID:     tenantID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Now:          now,
		Attributes:   req.Context,
	}
	ownerResolved := false

	trace := &ResolutionTrace{
		SubjectID:    req.SubjectID,
		TenantID:     tenantID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Permission:   req.Permission,
		Layers:       make([]LayerResult, 0, 8),
		EvaluatedAt:  now,
	}

	for _, layer := range Layers() {
		lr := LayerResult{Layer: layer, Priority: layer.Priority(), Explicit: layer.Explicit()}

		queries, applicable := layerQueries(layer, req.SubjectID, tenantID, req.ResourceType, req.ResourceID)
		if !applicable {
			lr.Detail = "not applicable to request scope"
			trace.Layers = append(trace.Layers, lr)
			continue
		}

		var speaking []*grant.Grant
		for _, q := range queries {
			grants, err := e.store.FindGrants(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("aegis find grants (%s): %w", layer, err)
			}
			for _, g := range grants {
				if !g.ValidAt(now) {
					continue
				}
				if len(g.Constraints) > 0 {
					if !ownerResolved && needsOwner(g.Constraints, now) {
						cc.OwnerID, err = e.resolveOwner(ctx, req)
						if err != nil {
							return nil, err
						}
						ownerResolved = true
					}
					ok, err := e.evaluator.Evaluate(ctx, g.Constraints, cc)
					if err != nil {
						return nil, err
					}
					if !ok {
						continue
					}
				}
				speaking = append(speaking, g)
			}
		}

		if len(speaking) == 0 {
			lr.Detail = "no live grant"
			trace.Layers = append(trace.Layers, lr)
			continue
		}

		// Two grants at one layer union their bits; a bit set by any of
		// them is set for the layer.
		union := bitset.Zero
		for _, g := range speaking {
			union = bitset.Union(union, g.Bits)
		}
		spoke := union.Has(bit)
		lr.Granted = &spoke

		rep := representative(speaking, bit, spoke)
		lr.GrantID = rep.ID
		lr.GrantedBy = rep.GrantedBy
		grantedAt := rep.CreatedAt
		lr.GrantedAt = &grantedAt
		lr.ExpiresAt = rep.ExpiresAt
		if spoke {
			lr.Detail = "grant holds " + req.Permission
		} else {
			lr.Detail = "grant present, " + req.Permission + " cleared"
		}
		trace.Layers = append(trace.Layers, lr)
	}

	winner := trace.Winning()
	switch {
	case winner == nil:
		trace.Decision = Decision{Reason: ReasonNoApplicableGrant}
	case *winner.Granted:
		trace.Decision = Decision{Granted: true, Source: winner.Layer, Reason: ReasonGranted}
	default:
		trace.Decision = Decision{ExplicitDeny: true, Source: winner.Layer, Reason: ReasonExplicitDeny}
	}
	return trace, nil
}

// representative picks the grant a trace entry points at: the first one
// agreeing with the layer's outcome.
func representative(speaking []*grant.Grant, bit int, spoke bool) *grant.Grant {
	for _, g := range speaking {
		if g.Bits.Has(bit) == spoke {
			return g
		}
	}
	return speaking[0]
}

// layerQueries maps a scope layer to its grant store queries for a
// request. Layers bound to a dimension the request does not carry are
// not applicable. Type- and instance-scoped layers match both
// tenant-bound and tenant-null grants, so two queries are issued.
func layerQueries(layer ScopeLayer, subjectID, tenantID, resourceType, resourceID string) ([]*grant.ScopeQuery, bool) {
	withTenantFallback := func(base grant.ScopeQuery) []*grant.ScopeQuery {
		nullTenant := base
		nullTenant.TenantID = nil
		if tenantID == "" {
			return []*grant.ScopeQuery{&nullTenant}
		}
		bound := base
		bound.TenantID = grant.Eq(tenantID)
		return []*grant.ScopeQuery{&nullTenant, &bound}
	}

	switch layer {
	case LayerGlobalDefault:
		return []*grant.ScopeQuery{{}}, true

	case LayerTenantDefault:
		if tenantID == "" {
			return nil, false
		}
		return []*grant.ScopeQuery{{TenantID: grant.Eq(tenantID)}}, true

	case LayerContentTypeDefault:
		if resourceType == "" {
			return nil, false
		}
		return withTenantFallback(grant.ScopeQuery{ResourceType: grant.Eq(resourceType)}), true

	case LayerTenantUser:
		if tenantID == "" {
			return nil, false
		}
		return []*grant.ScopeQuery{{SubjectID: grant.Eq(subjectID), TenantID: grant.Eq(tenantID)}}, true

	case LayerContentTypeUser:
		if resourceType == "" {
			return nil, false
		}
		return withTenantFallback(grant.ScopeQuery{
			SubjectID:    grant.Eq(subjectID),
			ResourceType: grant.Eq(resourceType),
		}), true

	case LayerResourceDefault:
		if resourceType == "" || resourceID == "" {
			return nil, false
		}
		return withTenantFallback(grant.ScopeQuery{
			ResourceType: grant.Eq(resourceType),
			ResourceID:   grant.Eq(resourceID),
		}), true

	case LayerResourceUser:
		if resourceType == "" || resourceID == "" {
			return nil, false
		}
		return withTenantFallback(grant.ScopeQuery{
			SubjectID:    grant.Eq(subjectID),
			ResourceType: grant.Eq(resourceType),
			ResourceID:   grant.Eq(resourceID),
		}), true

	case LayerSystemOverride:
		return []*grant.ScopeQuery{{SubjectID: grant.Eq(subjectID)}}, true
	}
	return nil, false
}

func (e *Engine) resolveOwner(ctx context.Context, req *EvaluateRequest) (string, error) {
	if e.directory == nil || req.ResourceID == "" {
		return "", nil
	}
	owner, err := e.directory.ResourceOwner(ctx, req.ResourceType, req.ResourceID)
	if err != nil {
		return "", fmt.Errorf("aegis resolve owner: %w", err)
	}
	return owner, nil
}

// recordDecision persists a decision log entry. Audit write failures
// are logged, never surfaced to the caller.
func (e *Engine) recordDecision(ctx context.Context, appID, tenantID string, req *EvaluateRequest, dec *Decision) {
	entry := &decisionlog.Entry{
		ID:           id.NewDecisionLogID(),
		TenantID:     tenantID,
		AppID:        appID,
		SubjectID:    req.SubjectID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Permission:   req.Permission,
		Granted:      dec.Granted,
		ExplicitDeny: dec.ExplicitDeny,
		Source:       string(dec.Source),
		Reason:       string(dec.Reason),
		EvalTimeNs:   dec.EvalTimeNs,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateDecisionLog(ctx, entry); err != nil {
		e.logger.Warn("decision log write failed",
			slog.String("subject", req.SubjectID),
			slog.String("permission", req.Permission),
			slog.String("error", err.Error()),
		)
	}
}
