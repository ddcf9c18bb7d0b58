package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/aegis/bitset"
	"github.com/xraph/aegis/decisionlog"
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/invitation"
	"github.com/xraph/aegis/roletemplate"
)

// Null scope dimensions are stored as empty strings so the composite
// scope columns can stay NOT NULL and participate in unique indexes.

// ──────────────────────────────────────────────────
// Grant model
// ──────────────────────────────────────────────────

type grantModel struct {
	grove.BaseModel `grove:"table:aegis_grants"`
	ID              string             `grove:"id,pk"`
	TenantID        string             `grove:"tenant_id,notnull"`
	AppID           string             `grove:"app_id,notnull"`
	SubjectID       string             `grove:"subject_id,notnull"`
	ResourceType    string             `grove:"resource_type,notnull"`
	ResourceID      string             `grove:"resource_id,notnull"`
	BitsLo          int64              `grove:"bits_lo,notnull"`
	BitsHi          int64              `grove:"bits_hi,notnull"`
	Constraints     []grant.Constraint `grove:"constraints,type:jsonb"`
	GrantedBy       string             `grove:"granted_by"`
	ExpiresAt       *time.Time         `grove:"expires_at"`
	DeletedAt       *time.Time         `grove:"deleted_at"`
	Version         int64              `grove:"version,notnull"`
	Metadata        map[string]any     `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time          `grove:"created_at,notnull"`
	UpdatedAt       time.Time          `grove:"updated_at,notnull"`
}

func grantToModel(g *grant.Grant) *grantModel {
	return &grantModel{
		ID:           g.ID.String(),
		TenantID:     g.TenantID,
		AppID:        g.AppID,
		SubjectID:    g.SubjectID,
		ResourceType: g.ResourceType,
		ResourceID:   g.ResourceID,
		BitsLo:       int64(g.Bits.Lo),
		BitsHi:       int64(g.Bits.Hi),
		Constraints:  g.Constraints,
		GrantedBy:    g.GrantedBy,
		ExpiresAt:    g.ExpiresAt,
		DeletedAt:    g.DeletedAt,
		Version:      g.Version,
		Metadata:     g.Metadata,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func grantFromModel(m *grantModel) *grant.Grant {
	gid, _ := id.ParseGrantID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &grant.Grant{
		ID:           gid,
		TenantID:     m.TenantID,
		AppID:        m.AppID,
		SubjectID:    m.SubjectID,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Bits:         bitset.Bits{Lo: uint64(m.BitsLo), Hi: uint64(m.BitsHi)},
		Constraints:  m.Constraints,
		GrantedBy:    m.GrantedBy,
		ExpiresAt:    m.ExpiresAt,
		DeletedAt:    m.DeletedAt,
		Version:      m.Version,
		Metadata:     m.Metadata,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Role template model
// ──────────────────────────────────────────────────

type roleTemplateModel struct {
	grove.BaseModel `grove:"table:aegis_role_templates"`
	ID              string                            `grove:"id,pk"`
	TenantID        string                            `grove:"tenant_id,notnull"`
	AppID           string                            `grove:"app_id,notnull"`
	Name            string                            `grove:"name,notnull"`
	Slug            string                            `grove:"slug,notnull"`
	Description     string                            `grove:"description"`
	IsSystem        bool                              `grove:"is_system,notnull"`
	Templates       []roletemplate.PermissionTemplate `grove:"templates,type:jsonb"`
	Metadata        map[string]any                    `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time                         `grove:"created_at,notnull"`
	UpdatedAt       time.Time                         `grove:"updated_at,notnull"`
}

func roleTemplateToModel(r *roletemplate.RoleTemplate) *roleTemplateModel {
	return &roleTemplateModel{
		ID:          r.ID.String(),
		TenantID:    r.TenantID,
		AppID:       r.AppID,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Templates:   r.Templates,
		Metadata:    r.Metadata,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func roleTemplateFromModel(m *roleTemplateModel) *roletemplate.RoleTemplate {
	rid, _ := id.ParseRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &roletemplate.RoleTemplate{
		ID:          rid,
		TenantID:    m.TenantID,
		AppID:       m.AppID,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		IsSystem:    m.IsSystem,
		Templates:   m.Templates,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Invitation model
// ──────────────────────────────────────────────────

type invitationModel struct {
	grove.BaseModel    `grove:"table:aegis_invitations"`
	ID                 string             `grove:"id,pk"`
	TenantID           string             `grove:"tenant_id,notnull"`
	AppID              string             `grove:"app_id,notnull"`
	ResourceType       string             `grove:"resource_type,notnull"`
	ResourceID         string             `grove:"resource_id,notnull"`
	InviteeID          string             `grove:"invitee_id"`
	InviteeEmail       string             `grove:"invitee_email"`
	BitsLo             int64              `grove:"bits_lo,notnull"`
	BitsHi             int64              `grove:"bits_hi,notnull"`
	Constraints        []grant.Constraint `grove:"constraints,type:jsonb"`
	RequiresAcceptance bool               `grove:"requires_acceptance,notnull"`
	Status             string             `grove:"status,notnull"`
	Token              string             `grove:"token,notnull"`
	InvitedBy          string             `grove:"invited_by"`
	GrantID            *string            `grove:"grant_id"`
	ExpiresAt          *time.Time         `grove:"expires_at"`
	RespondedAt        *time.Time         `grove:"responded_at"`
	CreatedAt          time.Time          `grove:"created_at,notnull"`
	UpdatedAt          time.Time          `grove:"updated_at,notnull"`
}

func invitationToModel(inv *invitation.Invitation) *invitationModel {
	m := &invitationModel{
		ID:                 inv.ID.String(),
		TenantID:           inv.TenantID,
		AppID:              inv.AppID,
		ResourceType:       inv.ResourceType,
		ResourceID:         inv.ResourceID,
		InviteeID:          inv.InviteeID,
		InviteeEmail:       inv.InviteeEmail,
		BitsLo:             int64(inv.Bits.Lo),
		BitsHi:             int64(inv.Bits.Hi),
		Constraints:        inv.Constraints,
		RequiresAcceptance: inv.RequiresAcceptance,
		Status:             string(inv.Status),
		Token:              inv.Token,
		InvitedBy:          inv.InvitedBy,
		ExpiresAt:          inv.ExpiresAt,
		RespondedAt:        inv.RespondedAt,
		CreatedAt:          inv.CreatedAt,
		UpdatedAt:          inv.UpdatedAt,
	}
	if !inv.GrantID.IsNil() {
		s := inv.GrantID.String()
		m.GrantID = &s
	}
	return m
}

func invitationFromModel(m *invitationModel) *invitation.Invitation {
	iid, _ := id.ParseInvitationID(m.ID) //nolint:errcheck // stored IDs are always valid
	inv := &invitation.Invitation{
		ID:                 iid,
		TenantID:           m.TenantID,
		AppID:              m.AppID,
		ResourceType:       m.ResourceType,
		ResourceID:         m.ResourceID,
		InviteeID:          m.InviteeID,
		InviteeEmail:       m.InviteeEmail,
		Bits:               bitset.Bits{Lo: uint64(m.BitsLo), Hi: uint64(m.BitsHi)},
		Constraints:        m.Constraints,
		RequiresAcceptance: m.RequiresAcceptance,
		Status:             invitation.Status(m.Status),
		Token:              m.Token,
		InvitedBy:          m.InvitedBy,
		ExpiresAt:          m.ExpiresAt,
		RespondedAt:        m.RespondedAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	if m.GrantID != nil {
		gid, err := id.ParseGrantID(*m.GrantID)
		if err == nil {
			inv.GrantID = gid
		}
	}
	return inv
}

// ──────────────────────────────────────────────────
// Decision log model
// ──────────────────────────────────────────────────

type decisionLogModel struct {
	grove.BaseModel `grove:"table:aegis_decision_logs"`
	ID              string         `grove:"id,pk"`
	TenantID        string         `grove:"tenant_id,notnull"`
	AppID           string         `grove:"app_id,notnull"`
	SubjectID       string         `grove:"subject_id,notnull"`
	ResourceType    string         `grove:"resource_type,notnull"`
	ResourceID      string         `grove:"resource_id,notnull"`
	Permission      string         `grove:"permission,notnull"`
	Granted         bool           `grove:"granted,notnull"`
	ExplicitDeny    bool           `grove:"explicit_deny,notnull"`
	Source          string         `grove:"source"`
	Reason          string         `grove:"reason"`
	EvalTimeNs      int64          `grove:"eval_time_ns,notnull"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
}

func decisionLogToModel(e *decisionlog.Entry) *decisionLogModel {
	return &decisionLogModel{
		ID:           e.ID.String(),
		TenantID:     e.TenantID,
		AppID:        e.AppID,
		SubjectID:    e.SubjectID,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Permission:   e.Permission,
		Granted:      e.Granted,
		ExplicitDeny: e.ExplicitDeny,
		Source:       e.Source,
		Reason:       e.Reason,
		EvalTimeNs:   e.EvalTimeNs,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
}

func decisionLogFromModel(m *decisionLogModel) *decisionlog.Entry {
	did, _ := id.ParseDecisionLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &decisionlog.Entry{
		ID:           did,
		TenantID:     m.TenantID,
		AppID:        m.AppID,
		SubjectID:    m.SubjectID,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Permission:   m.Permission,
		Granted:      m.Granted,
		ExplicitDeny: m.ExplicitDeny,
		Source:       m.Source,
		Reason:       m.Reason,
		EvalTimeNs:   m.EvalTimeNs,
		Metadata:     m.Metadata,
		CreatedAt:    m.CreatedAt,
	}
}
