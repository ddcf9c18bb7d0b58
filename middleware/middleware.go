// Package middleware provides HTTP authorization middleware for Aegis.
package middleware

import (
	"encoding/json"

	"github.com/xraph/forge"

	"github.com/xraph/aegis"
)

// Require enforces a permission. It resolves the subject from the request
// context (Forge user > anonymous) and checks whether the subject holds
// the given permission on the resource type; the resource instance is
// taken from the ":id" route parameter when present.
func Require(eng *aegis.Engine, permission, resourceType string) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			err := eng.Enforce(ctx.Context(), &aegis.EvaluateRequest{
				SubjectID:    resolveSubject(ctx),
				Permission:   permission,
				ResourceType: resourceType,
				ResourceID:   ctx.Param("id"),
			})
			if err != nil {
				return denyResponse(ctx)
			}
			return next(ctx)
		}
	}
}

// RequireAny allows the request if ANY of the checks pass.
func RequireAny(eng *aegis.Engine, checks ...aegis.EvaluateRequest) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			subject := resolveSubject(ctx)
			for i := range checks {
				c := checks[i]
				c.SubjectID = subject
				dec, err := eng.Evaluate(ctx.Context(), &c)
				if err == nil && dec.Granted {
					return next(ctx)
				}
			}
			return denyResponse(ctx)
		}
	}
}

// RequireAll allows the request only if ALL checks pass.
func RequireAll(eng *aegis.Engine, checks ...aegis.EvaluateRequest) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			subject := resolveSubject(ctx)
			for i := range checks {
				c := checks[i]
				c.SubjectID = subject
				if err := eng.Enforce(ctx.Context(), &c); err != nil {
					return denyResponse(ctx)
				}
			}
			return next(ctx)
		}
	}
}

// resolveSubject extracts the subject from context.
// Priority: Forge user ID (from Authsome) → anonymous.
func resolveSubject(ctx forge.Context) string {
	if userID := forge.UserIDFromContext(ctx.Context()); userID != "" {
		return userID
	}
	return "anonymous"
}

func denyResponse(ctx forge.Context) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(403)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": "access denied"})
}
