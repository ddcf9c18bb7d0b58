package aegis

import (
	"context"
	"strings"
	"testing"

	"github.com/xraph/aegis/bitset"
	"github.com/xraph/aegis/grant"
)

func TestRenderTrace(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		TenantID:  "t1",
		Bits:      bitset.Of(bitRead),
	})
	seedGrant(t, s, &grant.Grant{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		ResourceID:   "p1",
		Bits:         bitset.Of(bitWrite),
	})

	trace, err := eng.Explain(ctx, &EvaluateRequest{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		ResourceID:   "p1",
		Permission:   "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}

	out := RenderTrace(trace)
	for _, want := range []string{
		`resolution of "content.read" for subject u1`,
		"in tenant t1",
		"on post/p1",
		"tenant_user",
		"GRANTS",
		"DENIES",
		"silent",
		"explicitly denied by resource_user",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("trace output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTrace_Silence(t *testing.T) {
	eng, _ := newTestEngine(t)

	trace, err := eng.Explain(context.Background(), &EvaluateRequest{
		SubjectID:  "u1",
		Permission: "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}

	out := RenderTrace(trace)
	if !strings.Contains(out, "no layer spoke") {
		t.Fatalf("expected silence verdict, got:\n%s", out)
	}
}
