package aegis

import (
	"fmt"
	"strings"
)

// RenderTrace formats a resolution trace as a human-readable report for
// diagnostic surfaces. Pure formatting, no side effects.
func RenderTrace(t *ResolutionTrace) string {
	var b strings.Builder

	fmt.Fprintf(&b, "resolution of %q for subject %s", t.Permission, t.SubjectID)
	if t.TenantID != "" {
		fmt.Fprintf(&b, " in tenant %s", t.TenantID)
	}
	if t.ResourceType != "" {
		fmt.Fprintf(&b, " on %s", t.ResourceType)
		if t.ResourceID != "" {
			fmt.Fprintf(&b, "/%s", t.ResourceID)
		}
	}
	b.WriteString("\n")

	for _, lr := range t.Layers {
		fmt.Fprintf(&b, "  [%d] %-22s", lr.Priority, lr.Layer)
		switch {
		case lr.Granted == nil:
			b.WriteString("silent")
		case *lr.Granted:
			b.WriteString("GRANTS")
		default:
			b.WriteString("DENIES")
		}
		if lr.Detail != "" {
			fmt.Fprintf(&b, " (%s)", lr.Detail)
		}
		if !lr.GrantID.IsNil() {
			fmt.Fprintf(&b, " grant=%s", lr.GrantID)
		}
		b.WriteString("\n")
	}

	dec := t.Decision
	switch {
	case dec.Granted:
		fmt.Fprintf(&b, "decision: granted by %s (priority %d)\n", dec.Source, dec.Source.Priority())
	case dec.ExplicitDeny:
		fmt.Fprintf(&b, "decision: explicitly denied by %s (priority %d), overriding lower layers\n",
			dec.Source, dec.Source.Priority())
	default:
		b.WriteString("decision: not granted, no layer spoke\n")
	}
	return b.String()
}
