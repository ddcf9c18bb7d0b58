package aegis

import (
	"time"

	"github.com/xraph/aegis/id"
)

// LayerResult records one layer's contribution to a resolution. Granted
// is nil when the layer was silent — no live grant, constraints unmet,
// or the layer does not apply to the request's scope.
type LayerResult struct {
	Layer     ScopeLayer `json:"layer"`
	Priority  int        `json:"priority"`
	Explicit  bool       `json:"explicit"`
	Granted   *bool      `json:"granted"` // nil = silent
	GrantID   id.GrantID `json:"grant_id,omitempty"`
	GrantedBy string     `json:"granted_by,omitempty"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Detail    string     `json:"detail,omitempty"`
}

// ResolutionTrace is the full per-layer record of one resolution,
// produced by Explain. Layers always holds one entry per scope layer
// in ascending priority order.
type ResolutionTrace struct {
	SubjectID    string        `json:"subject_id"`
	TenantID     string        `json:"tenant_id,omitempty"`
	ResourceType string        `json:"resource_type,omitempty"`
	ResourceID   string        `json:"resource_id,omitempty"`
	Permission   string        `json:"permission"`
	Layers       []LayerResult `json:"layers"`
	Decision     Decision      `json:"decision"`
	EvaluatedAt  time.Time     `json:"evaluated_at"`
}

// Winning returns the layer result that decided the resolution, or nil
// when every layer was silent.
func (t *ResolutionTrace) Winning() *LayerResult {
	for i := len(t.Layers) - 1; i >= 0; i-- {
		if t.Layers[i].Granted != nil {
			return &t.Layers[i]
		}
	}
	return nil
}
