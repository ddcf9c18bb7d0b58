package aegis

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/xraph/aegis/grant"
)

// ConstraintContext carries the request-side facts constraints are
// evaluated against. OwnerID is resolved by the engine from the
// resource directory before evaluation; empty when no directory is
// configured or the resource has no owner.
type ConstraintContext struct {
	SubjectID    string
	TenantID     string
	ResourceType string
	ResourceID   string
	OwnerID      string
	Now          time.Time
	Attributes   map[string]any
}

// ConstraintEvaluator evaluates a grant's constraint list against a
// request context. All constraints must hold; an empty list is
// unconditionally true.
type ConstraintEvaluator interface {
	Evaluate(ctx context.Context, constraints []grant.Constraint, cc *ConstraintContext) (bool, error)
}

// Constraint types understood by the default evaluator.
const (
	// ConstraintOwnerOnly restricts the grant to the resource owner.
	ConstraintOwnerOnly = "owner_only"

	// ConstraintSubjectEquals restricts the grant to one subject ID.
	ConstraintSubjectEquals = "subject_equals"

	// ConstraintTenantEquals restricts the grant to one tenant ID.
	ConstraintTenantEquals = "tenant_equals"

	// ConstraintIPInCIDR restricts the grant to requests whose "ip"
	// attribute falls in one of the comma-separated CIDR blocks.
	ConstraintIPInCIDR = "ip_in_cidr"

	// ConstraintTimeBefore holds while now is before the RFC3339 value.
	ConstraintTimeBefore = "time_before"

	// ConstraintTimeAfter holds while now is after the RFC3339 value.
	ConstraintTimeAfter = "time_after"

	// ConstraintAttributeEquals compares a request attribute against a
	// "key=value" pair.
	ConstraintAttributeEquals = "attribute_equals"
)

// DefaultConstraintEvaluator returns the built-in constraint evaluator.
func DefaultConstraintEvaluator() ConstraintEvaluator { return &constraintEvaluator{} }

type constraintEvaluator struct{}

func (e *constraintEvaluator) Evaluate(_ context.Context, constraints []grant.Constraint, cc *ConstraintContext) (bool, error) {
	for _, c := range constraints {
		// An expired constraint no longer binds.
		if !c.ActiveAt(cc.Now) {
			continue
		}
		ok, err := evaluateConstraint(c, cc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evaluateConstraint(c grant.Constraint, cc *ConstraintContext) (bool, error) {
	switch c.Type {
	case ConstraintOwnerOnly:
		return cc.OwnerID != "" && cc.SubjectID == cc.OwnerID, nil

	case ConstraintSubjectEquals:
		return cc.SubjectID == c.Value, nil

	case ConstraintTenantEquals:
		return cc.TenantID == c.Value, nil

	case ConstraintIPInCIDR:
		ipVal, _ := cc.Attributes["ip"].(string)
		return ipInCIDRs(ipVal, c.Value), nil

	case ConstraintTimeBefore:
		limit, err := time.Parse(time.RFC3339, c.Value)
		if err != nil {
			return false, fmt.Errorf("%w: time_before %q: %w", ErrInvalidConstraint, c.Value, err)
		}
		return cc.Now.Before(limit), nil

	case ConstraintTimeAfter:
		limit, err := time.Parse(time.RFC3339, c.Value)
		if err != nil {
			return false, fmt.Errorf("%w: time_after %q: %w", ErrInvalidConstraint, c.Value, err)
		}
		return cc.Now.After(limit), nil

	case ConstraintAttributeEquals:
		key, want, found := strings.Cut(c.Value, "=")
		if !found {
			return false, fmt.Errorf("%w: attribute_equals %q: want key=value", ErrInvalidConstraint, c.Value)
		}
		got, ok := cc.Attributes[key]
		return ok && fmt.Sprint(got) == want, nil

	default:
		return false, fmt.Errorf("%w: unknown type %q", ErrInvalidConstraint, c.Type)
	}
}

func ipInCIDRs(ipStr, cidrList string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range strings.Split(cidrList, ",") {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// needsOwner reports whether any active constraint requires an owner
// lookup, so the engine can skip the directory round trip otherwise.
func needsOwner(constraints []grant.Constraint, now time.Time) bool {
	for _, c := range constraints {
		if c.Type == ConstraintOwnerOnly && c.ActiveAt(now) {
			return true
		}
	}
	return false
}
