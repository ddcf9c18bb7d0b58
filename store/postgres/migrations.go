package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Aegis store (PostgreSQL).
var Migrations = migrate.NewGroup("aegis")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_grants",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS aegis_grants (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    subject_id      TEXT NOT NULL DEFAULT '',
    resource_type   TEXT NOT NULL DEFAULT '',
    resource_id     TEXT NOT NULL DEFAULT '',
    bits_lo         BIGINT NOT NULL DEFAULT 0,
    bits_hi         BIGINT NOT NULL DEFAULT 0,
    constraints     JSONB NOT NULL DEFAULT '[]',
    granted_by      TEXT NOT NULL DEFAULT '',
    expires_at      TIMESTAMPTZ,
    deleted_at      TIMESTAMPTZ,
    version         BIGINT NOT NULL DEFAULT 1,
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_aegis_grants_scope
    ON aegis_grants (subject_id, tenant_id, resource_type, resource_id);
CREATE INDEX IF NOT EXISTS idx_aegis_grants_tenant ON aegis_grants (tenant_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS aegis_grants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_role_templates",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS aegis_role_templates (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    name            TEXT NOT NULL,
    slug            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    is_system       BOOLEAN NOT NULL DEFAULT FALSE,
    templates       JSONB NOT NULL DEFAULT '[]',
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),

    UNIQUE(tenant_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_aegis_role_templates_tenant ON aegis_role_templates (tenant_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS aegis_role_templates`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_invitations",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS aegis_invitations (
    id                   TEXT PRIMARY KEY,
    tenant_id            TEXT NOT NULL DEFAULT '',
    app_id               TEXT NOT NULL DEFAULT '',
    resource_type        TEXT NOT NULL,
    resource_id          TEXT NOT NULL,
    invitee_id           TEXT NOT NULL DEFAULT '',
    invitee_email        TEXT NOT NULL DEFAULT '',
    bits_lo              BIGINT NOT NULL DEFAULT 0,
    bits_hi              BIGINT NOT NULL DEFAULT 0,
    constraints          JSONB NOT NULL DEFAULT '[]',
    requires_acceptance  BOOLEAN NOT NULL DEFAULT TRUE,
    status               TEXT NOT NULL DEFAULT 'pending',
    token                TEXT NOT NULL,
    invited_by           TEXT NOT NULL DEFAULT '',
    grant_id             TEXT,
    expires_at           TIMESTAMPTZ,
    responded_at         TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),

    UNIQUE(token)
);

CREATE INDEX IF NOT EXISTS idx_aegis_invitations_tenant ON aegis_invitations (tenant_id);
CREATE INDEX IF NOT EXISTS idx_aegis_invitations_resource
    ON aegis_invitations (resource_type, resource_id);
CREATE INDEX IF NOT EXISTS idx_aegis_invitations_status ON aegis_invitations (tenant_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS aegis_invitations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_decision_logs",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS aegis_decision_logs (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL DEFAULT '',
    app_id          TEXT NOT NULL DEFAULT '',
    subject_id      TEXT NOT NULL,
    resource_type   TEXT NOT NULL DEFAULT '',
    resource_id     TEXT NOT NULL DEFAULT '',
    permission      TEXT NOT NULL,
    granted         BOOLEAN NOT NULL,
    explicit_deny   BOOLEAN NOT NULL DEFAULT FALSE,
    source          TEXT NOT NULL DEFAULT '',
    reason          TEXT NOT NULL DEFAULT '',
    eval_time_ns    BIGINT NOT NULL DEFAULT 0,
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_aegis_decision_logs_tenant ON aegis_decision_logs (tenant_id);
CREATE INDEX IF NOT EXISTS idx_aegis_decision_logs_subject
    ON aegis_decision_logs (tenant_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_aegis_decision_logs_created ON aegis_decision_logs (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS aegis_decision_logs`)
				return err
			},
		},
	)
}
