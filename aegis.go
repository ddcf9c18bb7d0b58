// Package aegis provides hierarchical permission resolution for Go.
//
// Aegis stores authorization state as grants — 128-bit permission sets
// scoped by (subject, tenant, resource type, resource instance) — and
// resolves a check by walking eight scope layers in priority order,
// where the highest-priority layer holding a live grant decides. A
// grant with the requested bit cleared is an explicit deny; an absent
// grant leaves its layer silent. Grants are produced by role template
// assignment or by an invitation workflow, and every decision carries
// a full layer-by-layer trace.
//
// It is tenant-scoped by default via forge.Scope and integrates with
// the Forge ecosystem for audit logging and async jobs.
//
//	eng, err := aegis.NewEngine(
//	    aegis.WithStore(memStore),
//	)
//	dec, err := eng.Evaluate(ctx, &aegis.EvaluateRequest{
//	    SubjectID:    "user_123",
//	    ResourceType: "post",
//	    ResourceID:   "post_456",
//	    Permission:   "content.read",
//	})
package aegis

import (
	"context"
)

// EvaluateRequest is the input to a permission resolution.
type EvaluateRequest struct {
	// SubjectID is the principal whose access is evaluated.
	SubjectID string `json:"subject_id"`

	// TenantID scopes the resolution. If empty it is taken from the
	// request context (forge.Scope or WithTenant); if still empty,
	// tenant-bound layers are skipped.
	TenantID string `json:"tenant_id,omitempty"`

	// ResourceType tags the resource class, e.g. "post" or "project".
	ResourceType string `json:"resource_type,omitempty"`

	// ResourceID identifies the resource instance. Empty means the
	// check is not about a particular instance and instance-bound
	// layers are skipped.
	ResourceID string `json:"resource_id,omitempty"`

	// Permission is the stable permission name, e.g. "content.read".
	Permission string `json:"permission"`

	// Context carries request attributes for constraint evaluation
	// (e.g. "ip", arbitrary subject attributes).
	Context map[string]any `json:"context,omitempty"`
}

// Reason classifies why a resolution reached its outcome.
type Reason string

const (
	// ReasonGranted means a live grant at the winning layer has the bit set.
	ReasonGranted Reason = "granted"

	// ReasonExplicitDeny means a live grant at the winning layer has the
	// bit cleared, overriding any lower-priority grant.
	ReasonExplicitDeny Reason = "explicit_deny"

	// ReasonNoApplicableGrant means no layer spoke for the request.
	ReasonNoApplicableGrant Reason = "no_applicable_grant"
)

// Decision is the outcome of a permission resolution.
type Decision struct {
	Granted      bool       `json:"granted"`
	ExplicitDeny bool       `json:"explicit_deny"`
	Source       ScopeLayer `json:"source,omitempty"` // winning layer, empty when silent
	Reason       Reason     `json:"reason"`
	EvalTimeNs   int64      `json:"eval_time_ns"`
}

// ResourceDirectory resolves resource existence and ownership. It is
// the engine's only dependency on the content side of the platform;
// owner lookups are needed solely for owner-scoped constraints.
type ResourceDirectory interface {
	// ResourceExists reports whether a resource instance exists.
	ResourceExists(ctx context.Context, resourceType, resourceID string) (bool, error)

	// ResourceOwner returns the subject ID owning a resource instance.
	ResourceOwner(ctx context.Context, resourceType, resourceID string) (string, error)
}
