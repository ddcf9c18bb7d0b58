package mongo

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

// Permission bit words are stored as int64 because BSON has no unsigned
// 64-bit type; the cast round-trips bit patterns exactly. Null scope
// dimensions are stored as empty strings, same as the SQL backends.

// ──────────────────────────────────────────────────
// Grant model
// ──────────────────────────────────────────────────

type grantModel struct {
	grove.BaseModel `grove:"table:aegis_grants"`
	ID              string             `grove:"id,pk"           bson:"_id"`
	TenantID        string             `grove:"tenant_id"       bson:"tenant_id"`
	AppID           string             `grove:"app_id"          bson:"app_id"`
	SubjectID       string             `grove:"subject_id"      bson:"subject_id"`
	ResourceType    string             `grove:"resource_type"   bson:"resource_type"`
	ResourceID      string             `grove:"resource_id"     bson:"resource_id"`
	BitsLo          int64              `grove:"bits_lo"         bson:"bits_lo"`
	BitsHi          int64              `grove:"bits_hi"         bson:"bits_hi"`
	Constraints     []grant.Constraint `grove:"constraints"     bson:"constraints,omitempty"`
	GrantedBy       string             `grove:"granted_by"      bson:"granted_by"`
	ExpiresAt       *time.Time         `grove:"expires_at"      bson:"expires_at,omitempty"`
	DeletedAt       *time.Time         `grove:"deleted_at"      bson:"deleted_at,omitempty"`
	Version         int64              `grove:"version"         bson:"version"`
	Metadata        map[string]any     `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt       time.Time          `grove:"created_at"      bson:"created_at"`
	UpdatedAt       time.Time          `grove:"updated_at"      bson:"updated_at"`
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
	ID              string                            `grove:"id,pk"       bson:"_id"`
	TenantID        string                            `grove:"tenant_id"   bson:"tenant_id"`
	AppID           string                            `grove:"app_id"      bson:"app_id"`
	Name            string                            `grove:"name"        bson:"name"`
	Slug            string                            `grove:"slug"        bson:"slug"`
	Description     string                            `grove:"description" bson:"description"`
	IsSystem        bool                              `grove:"is_system"   bson:"is_system"`
	Templates       []roletemplate.PermissionTemplate `grove:"templates"   bson:"templates,omitempty"`
	Metadata        map[string]any                    `grove:"metadata"    bson:"metadata,omitempty"`
	CreatedAt       time.Time                         `grove:"created_at"  bson:"created_at"`
	UpdatedAt       time.Time                         `grove:"updated_at"  bson:"updated_at"`
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
	ID                 string             `grove:"id,pk"               bson:"_id"`
	TenantID           string             `grove:"tenant_id"           bson:"tenant_id"`
	AppID              string             `grove:"app_id"              bson:"app_id"`
	ResourceType       string             `grove:"resource_type"       bson:"resource_type"`
	ResourceID         string             `grove:"resource_id"         bson:"resource_id"`
	InviteeID          string             `grove:"invitee_id"          bson:"invitee_id"`
	InviteeEmail       string             `grove:"invitee_email"       bson:"invitee_email"`
	BitsLo             int64              `grove:"bits_lo"             bson:"bits_lo"`
	BitsHi             int64              `grove:"bits_hi"             bson:"bits_hi"`
	Constraints        []grant.Constraint `grove:"constraints"         bson:"constraints,omitempty"`
	RequiresAcceptance bool               `grove:"requires_acceptance" bson:"requires_acceptance"`
	Status             string             `grove:"status"              bson:"status"`
	Token              string             `grove:"token"               bson:"token"`
	InvitedBy          string             `grove:"invited_by"          bson:"invited_by"`
	GrantID            *string            `grove:"grant_id"            bson:"grant_id,omitempty"`
	ExpiresAt          *time.Time         `grove:"expires_at"          bson:"expires_at,omitempty"`
	RespondedAt        *time.Time         `grove:"responded_at"        bson:"responded_at,omitempty"`
	CreatedAt          time.Time          `grove:"created_at"          bson:"created_at"`
	UpdatedAt          time.Time          `grove:"updated_at"          bson:"updated_at"`
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
	ID              string         `grove:"id,pk"         bson:"_id"`
	TenantID        string         `grove:"tenant_id"     bson:"tenant_id"`
	AppID           string         `grove:"app_id"        bson:"app_id"`
	SubjectID       string         `grove:"subject_id"    bson:"subject_id"`
	ResourceType    string         `grove:"resource_type" bson:"resource_type"`
	ResourceID      string         `grove:"resource_id"   bson:"resource_id"`
	Permission      string         `grove:"permission"    bson:"permission"`
	Granted         bool           `grove:"granted"       bson:"granted"`
	ExplicitDeny    bool           `grove:"explicit_deny" bson:"explicit_deny"`
	Source          string         `grove:"source"        bson:"source"`
	Reason          string         `grove:"reason"        bson:"reason"`
	EvalTimeNs      int64          `grove:"eval_time_ns"  bson:"eval_time_ns"`
	Metadata        map[string]any `grove:"metadata"      bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at"    bson:"created_at"`
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
