package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/roletemplate"
)

func (a *API) registerRoleTemplateRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("role-templates"))

	if err := g.POST("/role-templates", a.createRoleTemplate,
		forge.WithSummary("Create role template"),
		forge.WithDescription("Creates a new role template."),
		forge.WithOperationID("createRoleTemplate"),
		forge.WithRequestSchema(CreateRoleTemplateRequest{}),
		forge.WithCreatedResponse(&roletemplate.RoleTemplate{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/role-templates/:roleId", a.getRoleTemplate,
		forge.WithSummary("Get role template"),
		forge.WithDescription("Returns details of a specific role template."),
		forge.WithOperationID("getRoleTemplate"),
		forge.WithResponseSchema(http.StatusOK, "Role template details", &roletemplate.RoleTemplate{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/role-templates/:roleId", a.updateRoleTemplate,
		forge.WithSummary("Update role template"),
		forge.WithDescription("Updates an existing role template."),
		forge.WithOperationID("updateRoleTemplate"),
		forge.WithRequestSchema(UpdateRoleTemplateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated role template", &roletemplate.RoleTemplate{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/role-templates/:roleId", a.deleteRoleTemplate,
		forge.WithSummary("Delete role template"),
		forge.WithDescription("Deletes a role template. System templates cannot be deleted."),
		forge.WithOperationID("deleteRoleTemplate"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/role-templates", a.listRoleTemplates,
		forge.WithSummary("List role templates"),
		forge.WithDescription("Lists role templates with optional filters."),
		forge.WithOperationID("listRoleTemplates"),
		forge.WithRequestSchema(ListRoleTemplatesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Role template list", []*roletemplate.RoleTemplate{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/role-templates/assign", a.assignRole,
		forge.WithSummary("Assign role template"),
		forge.WithDescription("Materializes grants for a subject from a role template."),
		forge.WithOperationID("assignRoleTemplate"),
		forge.WithRequestSchema(AssignRoleRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Materialized grants", AssignRoleResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/role-templates/revoke", a.revokeRole,
		forge.WithSummary("Revoke role template"),
		forge.WithDescription("Clears the template's permission bits from the subject's grants."),
		forge.WithOperationID("revokeRoleTemplate"),
		forge.WithRequestSchema(RevokeRoleRequest{}),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) createRoleTemplate(ctx forge.Context, req *CreateRoleTemplateRequest) (*roletemplate.RoleTemplate, error) {
	if req.Name == "" {
		return nil, forge.BadRequest("name is required")
	}
	if req.Slug == "" {
		return nil, forge.BadRequest("slug is required")
	}
	if len(req.Templates) == 0 {
		return nil, forge.BadRequest("templates cannot be empty")
	}

	r := &roletemplate.RoleTemplate{
		ID:          id.NewRoleID(),
		TenantID:    req.TenantID,
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		IsSystem:    req.IsSystem,
		Templates:   req.Templates,
		Metadata:    req.Metadata,
	}

	if err := a.eng.CreateRoleTemplate(ctx.Context(), r); err != nil {
		return nil, mapError(err)
	}

	return r, ctx.JSON(http.StatusCreated, r)
}

func (a *API) getRoleTemplate(ctx forge.Context, _ *GetRoleTemplateRequest) (*roletemplate.RoleTemplate, error) {
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role template ID: %v", err))
	}

	r, err := a.eng.GetRoleTemplate(ctx.Context(), roleID)
	if err != nil {
		return nil, mapError(err)
	}

	return r, ctx.JSON(http.StatusOK, r)
}

func (a *API) updateRoleTemplate(ctx forge.Context, req *UpdateRoleTemplateRequest) (*roletemplate.RoleTemplate, error) {
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role template ID: %v", err))
	}

	r, err := a.eng.GetRoleTemplate(ctx.Context(), roleID)
	if err != nil {
		return nil, mapError(err)
	}

	if req.Name != "" {
		r.Name = req.Name
	}
	if req.Description != "" {
		r.Description = req.Description
	}
	if req.Templates != nil {
		r.Templates = req.Templates
	}
	if req.Metadata != nil {
		r.Metadata = req.Metadata
	}

	if err := a.eng.UpdateRoleTemplate(ctx.Context(), r); err != nil {
		return nil, mapError(err)
	}

	return r, ctx.JSON(http.StatusOK, r)
}

func (a *API) deleteRoleTemplate(ctx forge.Context, _ *GetRoleTemplateRequest) (*struct{}, error) {
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role template ID: %v", err))
	}

	if err := a.eng.DeleteRoleTemplate(ctx.Context(), roleID); err != nil {
		return nil, mapError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listRoleTemplates(ctx forge.Context, req *ListRoleTemplatesRequest) ([]*roletemplate.RoleTemplate, error) {
	filter := &roletemplate.ListFilter{
		TenantID: req.TenantID,
		Search:   req.Search,
		Limit:    defaultLimit(req.Limit),
		Offset:   req.Offset,
	}

	templates, err := a.eng.ListRoleTemplates(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	return templates, ctx.JSON(http.StatusOK, templates)
}

func (a *API) assignRole(ctx forge.Context, req *AssignRoleRequest) (*AssignRoleResponse, error) {
	if req.SubjectID == "" {
		return nil, forge.BadRequest("subject_id is required")
	}
	if req.Slug == "" {
		return nil, forge.BadRequest("slug is required")
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid expires_at: %v", err))
		}
		expiresAt = &t
	}

	grantIDs, err := a.eng.AssignRole(ctx.Context(), req.SubjectID, req.TenantID, req.Slug, expiresAt)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &AssignRoleResponse{GrantIDs: make([]string, len(grantIDs))}
	for i, gid := range grantIDs {
		resp.GrantIDs[i] = gid.String()
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) revokeRole(ctx forge.Context, req *RevokeRoleRequest) (*struct{}, error) {
	if req.SubjectID == "" {
		return nil, forge.BadRequest("subject_id is required")
	}
	if req.Slug == "" {
		return nil, forge.BadRequest("slug is required")
	}

	if err := a.eng.RevokeRole(ctx.Context(), req.SubjectID, req.TenantID, req.Slug); err != nil {
		return nil, mapError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}
