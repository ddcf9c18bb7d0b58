// Package decisionlog defines the resolution audit log Entry entity.
package decisionlog

import (
	"time"

	"github.com/xraph/aegis/id"
)

// Entry is a single resolution decision audit record.
type Entry struct {
	ID           id.DecisionLogID `json:"id" db:"id"`
	TenantID     string           `json:"tenant_id" db:"tenant_id"`
	AppID        string           `json:"app_id" db:"app_id"`
	SubjectID    string           `json:"subject_id" db:"subject_id"`
	ResourceType string           `json:"resource_type" db:"resource_type"`
	ResourceID   string           `json:"resource_id" db:"resource_id"`
	Permission   string           `json:"permission" db:"permission"`
	Granted      bool             `json:"granted" db:"granted"`
	ExplicitDeny bool             `json:"explicit_deny" db:"explicit_deny"`
	Source       string           `json:"source,omitempty" db:"source"`
	Reason       string           `json:"reason,omitempty" db:"reason"`
	EvalTimeNs   int64            `json:"eval_time_ns" db:"eval_time_ns"`
	Metadata     map[string]any   `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying decision logs.
type QueryFilter struct {
	TenantID     string     `json:"tenant_id,omitempty"`
	SubjectID    string     `json:"subject_id,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   string     `json:"resource_id,omitempty"`
	Permission   string     `json:"permission,omitempty"`
	Granted      *bool      `json:"granted,omitempty"`
	After        *time.Time `json:"after,omitempty"`
	Before       *time.Time `json:"before,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}
