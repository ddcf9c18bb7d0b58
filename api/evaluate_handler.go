package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/aegis"
)

func (a *API) registerEvaluateRoutes(router forge.Router) error {
	g := router.Group("/v1/authz", forge.WithGroupTags("authorization"))

	if err := g.POST("/evaluate", a.evaluate,
		forge.WithSummary("Evaluate permission"),
		forge.WithDescription("Resolves whether the subject holds the permission on the resource."),
		forge.WithOperationID("authzEvaluate"),
		forge.WithRequestSchema(EvaluateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Decision", DecisionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/enforce", a.enforce,
		forge.WithSummary("Enforce permission"),
		forge.WithDescription("Returns 200 if granted, 403 if denied."),
		forge.WithOperationID("authzEnforce"),
		forge.WithRequestSchema(EvaluateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Granted", DecisionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/batch-evaluate", a.batchEvaluate,
		forge.WithSummary("Batch permission evaluation"),
		forge.WithDescription("Resolves multiple permission checks in one request."),
		forge.WithOperationID("authzBatchEvaluate"),
		forge.WithRequestSchema(BatchEvaluateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Batch decisions", BatchDecisionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/explain", a.explain,
		forge.WithSummary("Explain permission resolution"),
		forge.WithDescription("Resolves a permission check and returns the full layer-by-layer trace."),
		forge.WithOperationID("authzExplain"),
		forge.WithRequestSchema(EvaluateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Resolution trace", aegis.ResolutionTrace{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) evaluate(ctx forge.Context, req *EvaluateRequest) (*DecisionResponse, error) {
	if req.SubjectID == "" || req.Permission == "" {
		return nil, forge.BadRequest("subject_id and permission are required")
	}

	dec, err := a.eng.Evaluate(ctx.Context(), toEvaluateRequest(req))
	if err != nil {
		return nil, mapError(err)
	}

	resp := toDecisionResponse(dec)
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) enforce(ctx forge.Context, req *EvaluateRequest) (*DecisionResponse, error) {
	if req.SubjectID == "" || req.Permission == "" {
		return nil, forge.BadRequest("subject_id and permission are required")
	}

	dec, err := a.eng.Evaluate(ctx.Context(), toEvaluateRequest(req))
	if err != nil {
		return nil, mapError(err)
	}

	resp := toDecisionResponse(dec)
	if !dec.Granted {
		return resp, ctx.JSON(http.StatusForbidden, resp)
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) batchEvaluate(ctx forge.Context, req *BatchEvaluateRequest) (*BatchDecisionResponse, error) {
	if len(req.Checks) == 0 {
		return nil, forge.BadRequest("checks cannot be empty")
	}

	reqs := make([]*aegis.EvaluateRequest, len(req.Checks))
	for i := range req.Checks {
		reqs[i] = toEvaluateRequest(&req.Checks[i])
	}

	decs, err := a.eng.EvaluateBatch(ctx.Context(), reqs)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &BatchDecisionResponse{Results: make([]DecisionResponse, len(decs))}
	for i, d := range decs {
		resp.Results[i] = *toDecisionResponse(d)
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) explain(ctx forge.Context, req *EvaluateRequest) (*aegis.ResolutionTrace, error) {
	if req.SubjectID == "" || req.Permission == "" {
		return nil, forge.BadRequest("subject_id and permission are required")
	}

	trace, err := a.eng.Explain(ctx.Context(), toEvaluateRequest(req))
	if err != nil {
		return nil, mapError(err)
	}

	return trace, ctx.JSON(http.StatusOK, trace)
}

func toEvaluateRequest(r *EvaluateRequest) *aegis.EvaluateRequest {
	return &aegis.EvaluateRequest{
		SubjectID:    r.SubjectID,
		TenantID:     r.TenantID,
		Permission:   r.Permission,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
		Context:      r.Context,
	}
}

func toDecisionResponse(d *aegis.Decision) *DecisionResponse {
	return &DecisionResponse{
		Granted:      d.Granted,
		ExplicitDeny: d.ExplicitDeny,
		Source:       string(d.Source),
		Reason:       string(d.Reason),
		EvalTimeNs:   d.EvalTimeNs,
	}
}
