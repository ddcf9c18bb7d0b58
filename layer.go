package aegis

// ScopeLayer is one of the eight scopes a grant can live at. Layers are
// totally ordered by priority; during resolution the highest-priority
// layer holding a live grant decides.
type ScopeLayer string

const (
	// LayerGlobalDefault applies to every subject everywhere.
	LayerGlobalDefault ScopeLayer = "global_default"

	// LayerTenantDefault applies to every subject in one tenant.
	LayerTenantDefault ScopeLayer = "tenant_default"

	// LayerContentTypeDefault applies to every subject for one resource type.
	LayerContentTypeDefault ScopeLayer = "content_type_default"

	// LayerTenantUser applies to one subject across a tenant.
	LayerTenantUser ScopeLayer = "tenant_user"

	// LayerContentTypeUser applies to one subject for one resource type.
	LayerContentTypeUser ScopeLayer = "content_type_user"

	// LayerResourceDefault applies to every subject for one resource instance.
	LayerResourceDefault ScopeLayer = "resource_default"

	// LayerResourceUser applies to one subject for one resource instance.
	LayerResourceUser ScopeLayer = "resource_user"

	// LayerSystemOverride is a subject-specific global grant that outranks
	// everything else. Written only by operator-level store access.
	LayerSystemOverride ScopeLayer = "system_override"
)

// layerRank maps each layer to its numeric priority.
var layerRank = map[ScopeLayer]int{
	LayerGlobalDefault:      0,
	LayerTenantDefault:      1,
	LayerContentTypeDefault: 2,
	LayerTenantUser:         3,
	LayerContentTypeUser:    4,
	LayerResourceDefault:    5,
	LayerResourceUser:       6,
	LayerSystemOverride:     7,
}

// Priority returns the layer's numeric rank; higher overrides lower.
func (l ScopeLayer) Priority() int { return layerRank[l] }

// Explicit reports whether the layer is subject-specific, as opposed to
// a default that applies to every subject in its scope.
func (l ScopeLayer) Explicit() bool {
	switch l {
	case LayerTenantUser, LayerContentTypeUser, LayerResourceUser, LayerSystemOverride:
		return true
	}
	return false
}

// Layers returns all scope layers in ascending priority order.
func Layers() []ScopeLayer {
	return []ScopeLayer{
		LayerGlobalDefault,
		LayerTenantDefault,
		LayerContentTypeDefault,
		LayerTenantUser,
		LayerContentTypeUser,
		LayerResourceDefault,
		LayerResourceUser,
		LayerSystemOverride,
	}
}
