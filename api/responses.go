package api

// DecisionResponse is the response for a permission evaluation.
type DecisionResponse struct {
	Granted      bool   `json:"granted" description:"Whether the permission is granted"`
	ExplicitDeny bool   `json:"explicit_deny" description:"Whether an explicit deny decided"`
	Source       string `json:"source,omitempty" description:"Scope layer that decided"`
	Reason       string `json:"reason" description:"Decision reason code"`
	EvalTimeNs   int64  `json:"eval_time_ns" description:"Evaluation time in nanoseconds"`
}

// BatchDecisionResponse contains results for multiple evaluations.
type BatchDecisionResponse struct {
	Results []DecisionResponse `json:"results" description:"Decisions in request order"`
}

// AssignRoleResponse lists the grants an assignment materialized.
type AssignRoleResponse struct {
	GrantIDs []string `json:"grant_ids" description:"IDs of the materialized grants"`
}

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}
