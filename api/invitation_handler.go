package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/invitation"
)

func (a *API) registerInvitationRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("invitations"))

	if err := g.POST("/invitations", a.createInvitation,
		forge.WithSummary("Create invitation"),
		forge.WithDescription("Opens a share offer for a resource."),
		forge.WithOperationID("createInvitation"),
		forge.WithRequestSchema(CreateInvitationRequest{}),
		forge.WithCreatedResponse(&invitation.Invitation{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/invitations", a.listInvitations,
		forge.WithSummary("List invitations"),
		forge.WithDescription("Lists invitations with optional filters."),
		forge.WithOperationID("listInvitations"),
		forge.WithRequestSchema(ListInvitationsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Invitation list", ListResponse[*invitation.Invitation]{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/invitations/:invitationId", a.getInvitation,
		forge.WithSummary("Get invitation"),
		forge.WithDescription("Returns details of a specific invitation."),
		forge.WithOperationID("getInvitation"),
		forge.WithResponseSchema(http.StatusOK, "Invitation details", &invitation.Invitation{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/invitations/accept", a.acceptInvitation,
		forge.WithSummary("Accept invitation"),
		forge.WithDescription("Redeems an invitation token and materializes its grant."),
		forge.WithOperationID("acceptInvitation"),
		forge.WithRequestSchema(AcceptInvitationRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Materialized grant", &grant.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/invitations/decline", a.declineInvitation,
		forge.WithSummary("Decline invitation"),
		forge.WithDescription("Declines a pending invitation by token."),
		forge.WithOperationID("declineInvitation"),
		forge.WithRequestSchema(InvitationTokenRequest{}),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/invitations/:invitationId", a.cancelInvitation,
		forge.WithSummary("Cancel invitation"),
		forge.WithDescription("Cancels a pending invitation."),
		forge.WithOperationID("cancelInvitation"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) createInvitation(ctx forge.Context, req *CreateInvitationRequest) (*invitation.Invitation, error) {
	if req.ResourceType == "" || req.ResourceID == "" {
		return nil, forge.BadRequest("resource_type and resource_id are required")
	}
	if req.InviteeID == "" && req.InviteeEmail == "" {
		return nil, forge.BadRequest("one of invitee_id or invitee_email is required")
	}
	if len(req.Permissions) == 0 {
		return nil, forge.BadRequest("permissions cannot be empty")
	}

	createReq := &aegis.CreateInvitationRequest{
		TenantID:           req.TenantID,
		ResourceType:       req.ResourceType,
		ResourceID:         req.ResourceID,
		InviteeID:          req.InviteeID,
		InviteeEmail:       req.InviteeEmail,
		Permissions:        req.Permissions,
		Constraints:        req.Constraints,
		RequiresAcceptance: true,
		InvitedBy:          req.InvitedBy,
	}
	if req.RequiresAcceptance != nil {
		createReq.RequiresAcceptance = *req.RequiresAcceptance
	}
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid expires_at: %v", err))
		}
		createReq.ExpiresAt = &t
	}

	inv, err := a.eng.CreateInvitation(ctx.Context(), createReq)
	if err != nil {
		return nil, mapError(err)
	}

	return inv, ctx.JSON(http.StatusCreated, inv)
}

func (a *API) listInvitations(ctx forge.Context, req *ListInvitationsRequest) (*ListResponse[*invitation.Invitation], error) {
	filter := &invitation.ListFilter{
		TenantID:     req.TenantID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		InviteeID:    req.InviteeID,
		Status:       invitation.Status(req.Status),
		Limit:        defaultLimit(req.Limit),
		Offset:       req.Offset,
	}

	invs, err := a.eng.ListInvitations(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}
	total, err := a.eng.Store().CountInvitations(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*invitation.Invitation]{
		Items:  invs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) getInvitation(ctx forge.Context, _ *GetInvitationRequest) (*invitation.Invitation, error) {
	invID, err := id.ParseInvitationID(ctx.Param("invitationId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid invitation ID: %v", err))
	}

	inv, err := a.eng.GetInvitation(ctx.Context(), invID)
	if err != nil {
		return nil, mapError(err)
	}

	return inv, ctx.JSON(http.StatusOK, inv)
}

func (a *API) acceptInvitation(ctx forge.Context, req *AcceptInvitationRequest) (*grant.Grant, error) {
	if req.Token == "" {
		return nil, forge.BadRequest("token is required")
	}
	if req.SubjectID == "" {
		return nil, forge.BadRequest("subject_id is required")
	}

	g, err := a.eng.AcceptInvitation(ctx.Context(), req.Token, req.SubjectID)
	if err != nil {
		return nil, mapError(err)
	}

	return g, ctx.JSON(http.StatusOK, g)
}

func (a *API) declineInvitation(ctx forge.Context, req *InvitationTokenRequest) (*struct{}, error) {
	if req.Token == "" {
		return nil, forge.BadRequest("token is required")
	}

	if err := a.eng.DeclineInvitation(ctx.Context(), req.Token); err != nil {
		return nil, mapError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) cancelInvitation(ctx forge.Context, _ *GetInvitationRequest) (*struct{}, error) {
	invID, err := id.ParseInvitationID(ctx.Param("invitationId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid invitation ID: %v", err))
	}

	if err := a.eng.CancelInvitation(ctx.Context(), invID); err != nil {
		return nil, mapError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}
