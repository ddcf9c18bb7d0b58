package aegis

import "context"

// Cache provides caching for resolution decisions.
type Cache interface {
	// Get returns a cached decision, if available.
	Get(ctx context.Context, tenantID string, req *EvaluateRequest) (*Decision, bool)

	// Set stores a decision in the cache.
	Set(ctx context.Context, tenantID string, req *EvaluateRequest, dec *Decision)

	// InvalidateTenant removes all cached decisions for a tenant.
	InvalidateTenant(ctx context.Context, tenantID string)

	// InvalidateSubject removes all cached decisions for a subject.
	InvalidateSubject(ctx context.Context, tenantID, subjectID string)
}
