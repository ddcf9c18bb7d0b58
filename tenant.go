package aegis

import (
	"context"
	"fmt"
	"log/slog"
)

// PurgeTenant removes all authorization state for a tenant: grants,
// role templates, invitations, and decision logs. Meant for tenant
// offboarding; irreversible.
func (e *Engine) PurgeTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("aegis: tenant id is required")
	}

	if err := e.store.DeleteGrantsByTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("aegis purge grants: %w", err)
	}
	if err := e.store.DeleteRoleTemplatesByTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("aegis purge role templates: %w", err)
	}
	if err := e.store.DeleteInvitationsByTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("aegis purge invitations: %w", err)
	}
	if err := e.store.DeleteDecisionLogsByTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("aegis purge decision logs: %w", err)
	}

	if e.cache != nil {
		e.cache.InvalidateTenant(ctx, tenantID)
	}
	e.logger.Info("tenant purged", slog.String("tenant", tenantID))
	return nil
}
