// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/veriflow-io/veriflow/pkg/definition"
	"github.com/veriflow-io/veriflow/pkg/models"
)

// MoveActivityRequest moves an activity to another 1-based chain position.
type MoveActivityRequest struct {
	Position int `json:"position" validate:"min=1"`
}

// GraphResponse is the exported shape of a definition graph.
type GraphResponse struct {
	Definition  *models.WorkflowDefinition     `json:"definition"`
	Activities  []*models.ActivityDefinition   `json:"activities"`
	Transitions []*models.TransitionDefinition `json:"transitions"`
}

// TransformGraphResponse flattens a graph into its response shape.
func TransformGraphResponse(graph *definition.Graph) GraphResponse {
	return GraphResponse{
		Definition:  graph.Definition(),
		Activities:  graph.Activities(),
		Transitions: graph.Transitions(),
	}
}

// RecalculationResponse summarizes one applied recalculation diff.
type RecalculationResponse struct {
	PointerMoves      int  `json:"pointer_moves"`
	ActivitiesCreated int  `json:"activities_created"`
	ActivitiesUpdated int  `json:"activities_updated"`
	Empty             bool `json:"empty"`
}

// RuleCriteriaRequest is the reverse-lookup predicate for rules.
type RuleCriteriaRequest struct {
	Field      string          `json:"field"`
	Operator   models.Operator `json:"operator"   validate:"required"`
	Expression string          `json:"expression"`
}
