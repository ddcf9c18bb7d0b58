package aegis

import "time"

// Config holds configuration for the Aegis engine.
type Config struct {
	// MaxUpsertRetries bounds how often a read-modify-write grant
	// mutation is retried on version conflict before surfacing
	// ErrConflict. Defaults to 3.
	MaxUpsertRetries int `json:"max_upsert_retries,omitempty"`

	// CacheTTL is the time-to-live for cached decisions.
	// Zero means no caching even when a cache is configured.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// InvitationTTL is the default acceptance window for invitations
	// created without an explicit expiry. Defaults to 7 days.
	InvitationTTL time.Duration `json:"invitation_ttl,omitempty"`

	// EnableDecisionLog enables persisting every decision to the
	// decision log store. Defaults to true.
	EnableDecisionLog *bool `json:"enable_decision_log,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxUpsertRetries: 3,
		InvitationTTL:    7 * 24 * time.Hour,
	}
}

func (c Config) decisionLogEnabled() bool {
	return c.EnableDecisionLog == nil || *c.EnableDecisionLog
}

func (c Config) retries() int {
	if c.MaxUpsertRetries > 0 {
		return c.MaxUpsertRetries
	}
	return 3
}

func (c Config) invitationTTL() time.Duration {
	if c.InvitationTTL > 0 {
		return c.InvitationTTL
	}
	return 7 * 24 * time.Hour
}
