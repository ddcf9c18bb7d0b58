package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Aegis store (SQLite).
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
    bits_lo         INTEGER NOT NULL DEFAULT 0,
    bits_hi         INTEGER NOT NULL DEFAULT 0,
    constraints     TEXT NOT NULL DEFAULT '[]',
    granted_by      TEXT NOT NULL DEFAULT '',
    expires_at      TEXT,
    deleted_at      TEXT,
    version         INTEGER NOT NULL DEFAULT 1,
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_aegis_grants_scope ON aegis_grants (subject_id, tenant_id, resource_type, resource_id);
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
    is_system       INTEGER NOT NULL DEFAULT 0,
    templates       TEXT NOT NULL DEFAULT '[]',
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),

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
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL DEFAULT '',
    app_id              TEXT NOT NULL DEFAULT '',
    resource_type       TEXT NOT NULL DEFAULT '',
    resource_id         TEXT NOT NULL DEFAULT '',
    invitee_id          TEXT NOT NULL DEFAULT '',
    invitee_email       TEXT NOT NULL DEFAULT '',
    bits_lo             INTEGER NOT NULL DEFAULT 0,
    bits_hi             INTEGER NOT NULL DEFAULT 0,
    constraints         TEXT NOT NULL DEFAULT '[]',
    requires_acceptance INTEGER NOT NULL DEFAULT 1,
    status              TEXT NOT NULL DEFAULT 'pending',
    token               TEXT NOT NULL,
    invited_by          TEXT NOT NULL DEFAULT '',
    grant_id            TEXT,
    expires_at          TEXT,
    responded_at        TEXT,
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(token)
);

CREATE INDEX IF NOT EXISTS idx_aegis_invitations_tenant ON aegis_invitations (tenant_id);
CREATE INDEX IF NOT EXISTS idx_aegis_invitations_resource ON aegis_invitations (resource_type, resource_id);
CREATE INDEX IF NOT EXISTS idx_aegis_invitations_invitee ON aegis_invitations (invitee_id, status);
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
    subject_id      TEXT NOT NULL DEFAULT '',
    resource_type   TEXT NOT NULL DEFAULT '',
    resource_id     TEXT NOT NULL DEFAULT '',
    permission      TEXT NOT NULL,
    granted         INTEGER NOT NULL DEFAULT 0,
    explicit_deny   INTEGER NOT NULL DEFAULT 0,
    source          TEXT NOT NULL DEFAULT '',
    reason          TEXT NOT NULL DEFAULT '',
    eval_time_ns    INTEGER NOT NULL DEFAULT 0,
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_aegis_decision_logs_tenant ON aegis_decision_logs (tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_aegis_decision_logs_subject ON aegis_decision_logs (subject_id, created_at);
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
