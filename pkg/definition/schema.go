package definition

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// GraphDocument is the JSON import/export shape of a full definition graph.
type GraphDocument struct {
	Definition  *models.WorkflowDefinition    `json:"definition"`
	Activities  []*models.ActivityDefinition  `json:"activities"`
	Transitions []*models.TransitionDefinition `json:"transitions"`
}

// graphSchema validates imported graph documents before any entity reaches
// the store.
var graphSchema = map[string]any{
	"type":     "object",
	"required": []string{"definition", "activities"},
	"properties": map[string]any{
		"definition": map[string]any{
			"type":     "object",
			"required": []string{"name"},
			"properties": map[string]any{
				"id":                map[string]any{"type": "string"},
				"name":              map[string]any{"type": "string", "minLength": 3},
				"first_activity_id": map[string]any{"type": "string"},
			},
		},
		"activities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"name"},
				"properties": map[string]any{
					"id":           map[string]any{"type": "string"},
					"name":         map[string]any{"type": "string", "minLength": 1},
					"multiplicity": map[string]any{"enum": []string{"single", "multiple", ""}},
					"position":     map[string]any{"type": []string{"integer", "null"}},
				},
			},
		},
		"transitions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"from_id", "to_id"},
				"properties": map[string]any{
					"from_id": map[string]any{"type": "string", "minLength": 1},
					"to_id":   map[string]any{"type": "string", "minLength": 1},
					"name":    map[string]any{"type": "string"},
				},
			},
		},
	},
}

// ParseGraphDocument validates the raw JSON against the graph schema, decodes
// it and rebuilds the graph. Schema violations surface as one error listing
// every failed constraint.
func ParseGraphDocument(data []byte) (*Graph, error) {
	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to decode graph document: %w", err)
	}

	schemaLoader := gojsonschema.NewGoLoader(graphSchema)
	dataLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to validate graph document: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return nil, fmt.Errorf("invalid graph document: %s", strings.Join(descriptions, "; "))
	}

	var parsed GraphDocument
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode graph document: %w", err)
	}

	for _, activity := range parsed.Activities {
		if activity.Multiplicity == "" {
			activity.Multiplicity = models.MultiplicitySingle
		}

		activity.WorkflowDefinitionID = parsed.Definition.ID
	}

	for _, transition := range parsed.Transitions {
		if transition.Name == "" {
			transition.Name = models.DefaultTransitionName
		}

		transition.WorkflowDefinitionID = parsed.Definition.ID
	}

	return Load(parsed.Definition, parsed.Activities, parsed.Transitions)
}

// ExportGraphDocument renders a graph as its JSON import/export shape.
func ExportGraphDocument(graph *Graph) ([]byte, error) {
	document := GraphDocument{
		Definition:  graph.Definition(),
		Activities:  graph.Activities(),
		Transitions: graph.Transitions(),
	}

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph document: %w", err)
	}

	return data, nil
}
