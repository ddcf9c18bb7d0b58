package api

import (
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/roletemplate"
)

// ──────────────────────────────────────────────────
// Evaluation requests
// ──────────────────────────────────────────────────

// EvaluateRequest is the request body for a permission evaluation.
type EvaluateRequest struct {
	SubjectID    string         `json:"subject_id" description:"Subject identifier"`
	TenantID     string         `json:"tenant_id,omitempty" description:"Tenant scope (falls back to request context)"`
	Permission   string         `json:"permission" description:"Permission name (e.g. document:read)"`
	ResourceType string         `json:"resource_type,omitempty" description:"Resource type"`
	ResourceID   string         `json:"resource_id,omitempty" description:"Resource identifier"`
	Context      map[string]any `json:"context,omitempty" description:"Attributes for constraint evaluation"`
}

// BatchEvaluateRequest contains multiple evaluations.
type BatchEvaluateRequest struct {
	Checks []EvaluateRequest `json:"checks" description:"List of permission evaluations"`
}

// ──────────────────────────────────────────────────
// Role template requests
// ──────────────────────────────────────────────────

// CreateRoleTemplateRequest is the body for creating a role template.
type CreateRoleTemplateRequest struct {
	Name        string                            `json:"name" description:"Role template name"`
	Slug        string                            `json:"slug" description:"URL-safe slug, unique per tenant"`
	TenantID    string                            `json:"tenant_id,omitempty" description:"Owning tenant ('' for shared templates)"`
	Description string                            `json:"description,omitempty" description:"Human-readable description"`
	IsSystem    bool                              `json:"is_system,omitempty" description:"System template flag (immutable once set)"`
	Templates   []roletemplate.PermissionTemplate `json:"templates" description:"Permission templates the role bundles"`
	Metadata    map[string]any                    `json:"metadata,omitempty" description:"Custom metadata"`
}

// UpdateRoleTemplateRequest is the body for updating a role template.
type UpdateRoleTemplateRequest struct {
	Name        string                            `json:"name,omitempty" description:"Role template name"`
	Description string                            `json:"description,omitempty" description:"Human-readable description"`
	Templates   []roletemplate.PermissionTemplate `json:"templates,omitempty" description:"Permission templates"`
	Metadata    map[string]any                    `json:"metadata,omitempty" description:"Custom metadata"`
}

// GetRoleTemplateRequest is the path parameter for getting a role template.
type GetRoleTemplateRequest struct {
	RoleID string `path:"roleId" description:"Role template ID"`
}

// ListRoleTemplatesRequest holds query parameters for listing role templates.
type ListRoleTemplatesRequest struct {
	TenantID string `query:"tenant_id" description:"Filter by tenant"`
	Search   string `query:"search" description:"Search by name"`
	Limit    int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset   int    `query:"offset" description:"Results to skip"`
}

// AssignRoleRequest is the body for assigning a role template to a subject.
type AssignRoleRequest struct {
	SubjectID string `json:"subject_id" description:"Subject to assign the role to"`
	TenantID  string `json:"tenant_id,omitempty" description:"Tenant scope of the assignment"`
	Slug      string `json:"slug" description:"Role template slug"`
	ExpiresAt string `json:"expires_at,omitempty" description:"Expiration time (RFC3339)"`
}

// RevokeRoleRequest is the body for revoking a role template assignment.
type RevokeRoleRequest struct {
	SubjectID string `json:"subject_id" description:"Subject to revoke the role from"`
	TenantID  string `json:"tenant_id,omitempty" description:"Tenant scope of the assignment"`
	Slug      string `json:"slug" description:"Role template slug"`
}

// ──────────────────────────────────────────────────
// Grant requests
// ──────────────────────────────────────────────────

// GetGrantRequest is the path parameter for getting a grant.
type GetGrantRequest struct {
	GrantID string `path:"grantId" description:"Grant ID"`
}

// ListGrantsRequest holds query parameters for listing grants.
type ListGrantsRequest struct {
	TenantID     string `query:"tenant_id" description:"Filter by tenant"`
	SubjectID    string `query:"subject_id" description:"Filter by subject"`
	ResourceType string `query:"resource_type" description:"Filter by resource type"`
	ResourceID   string `query:"resource_id" description:"Filter by resource ID"`
	IncludeDead  bool   `query:"include_dead" description:"Include expired and revoked grants"`
	Limit        int    `query:"limit" description:"Maximum results"`
	Offset       int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Invitation requests
// ──────────────────────────────────────────────────

// CreateInvitationRequest is the body for creating an invitation.
type CreateInvitationRequest struct {
	TenantID           string             `json:"tenant_id,omitempty" description:"Tenant scope"`
	ResourceType       string             `json:"resource_type" description:"Shared resource type"`
	ResourceID         string             `json:"resource_id" description:"Shared resource ID"`
	InviteeID          string             `json:"invitee_id,omitempty" description:"Known subject to invite"`
	InviteeEmail       string             `json:"invitee_email,omitempty" description:"Email to invite (resolved at acceptance)"`
	Permissions        []string           `json:"permissions" description:"Permission names to share"`
	Constraints        []grant.Constraint `json:"constraints,omitempty" description:"Constraints copied onto the grant"`
	ExpiresAt          string             `json:"expires_at,omitempty" description:"Acceptance deadline (RFC3339)"`
	RequiresAcceptance *bool              `json:"requires_acceptance,omitempty" description:"False auto-accepts for a known invitee"`
	InvitedBy          string             `json:"invited_by,omitempty" description:"Inviting subject"`
}

// GetInvitationRequest is the path parameter for getting an invitation.
type GetInvitationRequest struct {
	InvitationID string `path:"invitationId" description:"Invitation ID"`
}

// InvitationTokenRequest carries an invitation token.
type InvitationTokenRequest struct {
	Token string `json:"token" description:"Invitation token"`
}

// AcceptInvitationRequest is the body for accepting an invitation.
type AcceptInvitationRequest struct {
	Token     string `json:"token" description:"Invitation token"`
	SubjectID string `json:"subject_id" description:"Accepting subject"`
}

// ListInvitationsRequest holds query parameters for listing invitations.
type ListInvitationsRequest struct {
	TenantID     string `query:"tenant_id" description:"Filter by tenant"`
	ResourceType string `query:"resource_type" description:"Filter by resource type"`
	ResourceID   string `query:"resource_id" description:"Filter by resource ID"`
	InviteeID    string `query:"invitee_id" description:"Filter by invitee"`
	Status       string `query:"status" description:"Filter by status"`
	Limit        int    `query:"limit" description:"Maximum results"`
	Offset       int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Decision log requests
// ──────────────────────────────────────────────────

// ListDecisionLogsRequest holds query parameters for querying decision logs.
type ListDecisionLogsRequest struct {
	TenantID     string `query:"tenant_id" description:"Filter by tenant"`
	SubjectID    string `query:"subject_id" description:"Filter by subject"`
	ResourceType string `query:"resource_type" description:"Filter by resource type"`
	ResourceID   string `query:"resource_id" description:"Filter by resource ID"`
	Permission   string `query:"permission" description:"Filter by permission"`
	Granted      string `query:"granted" description:"Filter by outcome (true/false)"`
	After        string `query:"after" description:"After timestamp (RFC3339)"`
	Before       string `query:"before" description:"Before timestamp (RFC3339)"`
	Limit        int    `query:"limit" description:"Maximum results"`
	Offset       int    `query:"offset" description:"Results to skip"`
}
