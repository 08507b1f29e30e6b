// Package definition builds and mutates the activity/transition graph of a
// workflow definition. The graph is an in-memory structure: services load it
// from the store, apply structural edits and persist the snapshot back.
package definition

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/veriflow-io/veriflow/pkg/models"
)

var (
	// ErrActivityNotInGraph indicates the referenced activity definition does
	// not belong to the graph.
	ErrActivityNotInGraph = errors.New("activity definition not in graph")

	// ErrTransitionNotInGraph indicates no transition with the given name
	// leaves the activity definition.
	ErrTransitionNotInGraph = errors.New("transition not in graph")

	// ErrDuplicateDefaultTransition indicates a second default-named
	// transition would leave the same activity definition.
	ErrDuplicateDefaultTransition = errors.New("duplicate default transition")

	// ErrTransitionCycle indicates the default chain loops back on itself.
	ErrTransitionCycle = errors.New("default transition cycle")

	// ErrPositionOutOfRange indicates a position outside the default chain.
	ErrPositionOutOfRange = errors.New("position out of range")
)

// Graph is the mutable activity/transition graph of one workflow definition.
// Positions are 1-based levels along the default chain; activities detached
// from the chain carry no position. Graph is not safe for concurrent use.
type Graph struct {
	definition  *models.WorkflowDefinition
	activities  map[string]*models.ActivityDefinition
	transitions []*models.TransitionDefinition
}

// NewGraph creates an empty graph for a workflow definition.
func NewGraph(definition *models.WorkflowDefinition) *Graph {
	return &Graph{
		definition: definition,
		activities: make(map[string]*models.ActivityDefinition),
	}
}

// Load rebuilds a graph from a stored snapshot and validates the default
// chain is walkable.
func Load(
	definition *models.WorkflowDefinition,
	activities []*models.ActivityDefinition,
	transitions []*models.TransitionDefinition,
) (*Graph, error) {
	graph := NewGraph(definition)

	for _, activity := range activities {
		graph.activities[activity.ID] = activity
	}

	graph.transitions = append(graph.transitions, transitions...)

	if _, err := graph.FindAllDefaultActivityDefinitions(); err != nil {
		return nil, fmt.Errorf("failed to load definition graph %s: %w", definition.ID, err)
	}

	return graph, nil
}

// Definition returns the workflow definition the graph belongs to.
func (g *Graph) Definition() *models.WorkflowDefinition {
	return g.definition
}

// Activities returns the activity definitions in default-chain order,
// followed by any detached activities.
func (g *Graph) Activities() []*models.ActivityDefinition {
	chain, err := g.FindAllDefaultActivityDefinitions()
	if err != nil {
		chain = nil
	}

	onChain := make(map[string]struct{}, len(chain))
	for _, activity := range chain {
		onChain[activity.ID] = struct{}{}
	}

	out := make([]*models.ActivityDefinition, 0, len(g.activities))
	out = append(out, chain...)

	for _, activity := range g.activities {
		if _, ok := onChain[activity.ID]; !ok {
			out = append(out, activity)
		}
	}

	return out
}

// Transitions returns the transition definitions of the graph.
func (g *Graph) Transitions() []*models.TransitionDefinition {
	return g.transitions
}

// AddActivity inserts an activity definition at a 1-based position on the
// default chain, shifting subsequent positions by one and rewiring the
// default transitions so the predecessor points at the new node and the new
// node points at the former successor. Position len(chain)+1 appends.
func (g *Graph) AddActivity(activity *models.ActivityDefinition, position int) error {
	chain, err := g.FindAllDefaultActivityDefinitions()
	if err != nil {
		return err
	}

	if position < 1 || position > len(chain)+1 {
		return fmt.Errorf("%w: %d (chain length %d)", ErrPositionOutOfRange, position, len(chain))
	}

	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}

	if activity.Multiplicity == "" {
		activity.Multiplicity = models.MultiplicitySingle
	}

	g.activities[activity.ID] = activity

	index := position - 1

	switch {
	case len(chain) == 0:
		g.definition.FirstActivityID = activity.ID
	case index == 0:
		g.appendTransition(activity.ID, g.definition.FirstActivityID, models.DefaultTransitionName)
		g.definition.FirstActivityID = activity.ID
	case index == len(chain):
		g.appendTransition(chain[index-1].ID, activity.ID, models.DefaultTransitionName)
	default:
		predecessor := chain[index-1]
		successor := chain[index]

		transition := g.defaultTransitionFrom(predecessor.ID)
		transition.ToID = activity.ID

		g.appendTransition(activity.ID, successor.ID, models.DefaultTransitionName)
	}

	g.renumber()

	return nil
}

// RemoveActivity removes a node from the graph, splicing its predecessor's
// default transition directly to its successor. Every transition touching
// the node is dropped. The store must refuse removal while live instances
// still hold activities for the definition.
func (g *Graph) RemoveActivity(activityDefinitionID string) error {
	if _, ok := g.activities[activityDefinitionID]; !ok {
		return fmt.Errorf("%w: %s", ErrActivityNotInGraph, activityDefinitionID)
	}

	if err := g.detach(activityDefinitionID); err != nil {
		return err
	}

	delete(g.activities, activityDefinitionID)
	g.renumber()

	return nil
}

// MoveActivity repositions a node on the default chain, re-deriving the
// default transitions around both the old and the new location.
func (g *Graph) MoveActivity(activityDefinitionID string, toPosition int) error {
	activity, ok := g.activities[activityDefinitionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrActivityNotInGraph, activityDefinitionID)
	}

	if err := g.detach(activityDefinitionID); err != nil {
		return err
	}

	delete(g.activities, activityDefinitionID)

	return g.AddActivity(activity, toPosition)
}

// AddTransition adds a named edge between two activity definitions. At most
// one default-named transition may leave a given node.
func (g *Graph) AddTransition(transition *models.TransitionDefinition) error {
	if _, ok := g.activities[transition.FromID]; !ok {
		return fmt.Errorf("%w: %s", ErrActivityNotInGraph, transition.FromID)
	}

	if _, ok := g.activities[transition.ToID]; !ok {
		return fmt.Errorf("%w: %s", ErrActivityNotInGraph, transition.ToID)
	}

	if transition.Name == "" {
		transition.Name = models.DefaultTransitionName
	}

	if transition.Name == models.DefaultTransitionName && g.defaultTransitionFrom(transition.FromID) != nil {
		return fmt.Errorf("%w: from %s", ErrDuplicateDefaultTransition, transition.FromID)
	}

	if transition.ID == "" {
		transition.ID = uuid.New().String()
	}

	g.transitions = append(g.transitions, transition)

	return nil
}

// FindActivityDefinitionByPosition returns the activity at a 1-based level
// on the default chain.
func (g *Graph) FindActivityDefinitionByPosition(position int) (*models.ActivityDefinition, error) {
	chain, err := g.FindAllDefaultActivityDefinitions()
	if err != nil {
		return nil, err
	}

	if position < 1 || position > len(chain) {
		return nil, fmt.Errorf("%w: %d (chain length %d)", ErrPositionOutOfRange, position, len(chain))
	}

	return chain[position-1], nil
}

// FindAllDefaultActivityDefinitions walks the default chain from the first
// activity, following only default-named transitions.
func (g *Graph) FindAllDefaultActivityDefinitions() ([]*models.ActivityDefinition, error) {
	chain := make([]*models.ActivityDefinition, 0, len(g.activities))
	visited := make(map[string]struct{}, len(g.activities))

	currentID := g.definition.FirstActivityID
	for currentID != "" {
		if _, seen := visited[currentID]; seen {
			return nil, fmt.Errorf("%w: at %s", ErrTransitionCycle, currentID)
		}

		visited[currentID] = struct{}{}

		activity, ok := g.activities[currentID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrActivityNotInGraph, currentID)
		}

		chain = append(chain, activity)

		transition := g.defaultTransitionFrom(currentID)
		if transition == nil {
			break
		}

		currentID = transition.ToID
	}

	return chain, nil
}

// FindNextActivity resolves the activity reached from a node through the
// named transition. An empty name means the default transition.
func (g *Graph) FindNextActivity(activityDefinitionID, transitionName string) (*models.ActivityDefinition, error) {
	if transitionName == "" {
		transitionName = models.DefaultTransitionName
	}

	for _, transition := range g.transitions {
		if transition.FromID != activityDefinitionID || transition.Name != transitionName {
			continue
		}

		next, ok := g.activities[transition.ToID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrActivityNotInGraph, transition.ToID)
		}

		return next, nil
	}

	return nil, fmt.Errorf("%w: %q from %s", ErrTransitionNotInGraph, transitionName, activityDefinitionID)
}

// HasNextActivity reports whether a default transition leaves the node.
func (g *Graph) HasNextActivity(activityDefinitionID string) bool {
	return g.defaultTransitionFrom(activityDefinitionID) != nil
}

// detach splices the node out of the default chain and drops every
// transition touching it, keeping the rest of the chain connected.
func (g *Graph) detach(activityDefinitionID string) error {
	chain, err := g.FindAllDefaultActivityDefinitions()
	if err != nil {
		return err
	}

	var predecessor, successor string

	for index, activity := range chain {
		if activity.ID != activityDefinitionID {
			continue
		}

		if index > 0 {
			predecessor = chain[index-1].ID
		}

		if index < len(chain)-1 {
			successor = chain[index+1].ID
		}

		break
	}

	kept := g.transitions[:0]

	for _, transition := range g.transitions {
		if transition.FromID == activityDefinitionID || transition.ToID == activityDefinitionID {
			continue
		}

		kept = append(kept, transition)
	}

	g.transitions = kept

	if g.definition.FirstActivityID == activityDefinitionID {
		g.definition.FirstActivityID = successor
	} else if predecessor != "" && successor != "" {
		g.appendTransition(predecessor, successor, models.DefaultTransitionName)
	}

	return nil
}

func (g *Graph) defaultTransitionFrom(activityDefinitionID string) *models.TransitionDefinition {
	for _, transition := range g.transitions {
		if transition.FromID == activityDefinitionID && transition.IsDefault() {
			return transition
		}
	}

	return nil
}

func (g *Graph) appendTransition(fromID, toID, name string) {
	g.transitions = append(g.transitions, &models.TransitionDefinition{
		ID:                   uuid.New().String(),
		WorkflowDefinitionID: g.definition.ID,
		FromID:               fromID,
		ToID:                 toID,
		Name:                 name,
	})
}

// renumber aligns activity positions with the default chain; detached
// activities lose their level.
func (g *Graph) renumber() {
	chain, err := g.FindAllDefaultActivityDefinitions()
	if err != nil {
		return
	}

	onChain := make(map[string]int, len(chain))
	for index, activity := range chain {
		onChain[activity.ID] = index + 1
	}

	for _, activity := range g.activities {
		if position, ok := onChain[activity.ID]; ok {
			level := position
			activity.Position = &level
		} else {
			activity.Position = nil
		}
	}
}
