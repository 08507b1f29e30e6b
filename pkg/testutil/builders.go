// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/veriflow-io/veriflow/pkg/models"
)

// CreateTestDefinition creates a workflow definition with default values
// that can be overridden.
func CreateTestDefinition(overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	workflowDefinition := &models.WorkflowDefinition{
		ID:        uuid.New().String(),
		Name:      "Test Workflow",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(workflowDefinition)
	}

	return workflowDefinition
}

// WithFirstActivity sets the chain entry point.
func WithFirstActivity(activityDefinitionID string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.FirstActivityID = activityDefinitionID
	}
}

// CreateTestActivityDefinition creates an activity definition template.
func CreateTestActivityDefinition(workflowDefinitionID string, position int, overrides ...func(*models.ActivityDefinition)) *models.ActivityDefinition {
	activity := &models.ActivityDefinition{
		ID:                   uuid.New().String(),
		WorkflowDefinitionID: workflowDefinitionID,
		Name:                 "Test Activity",
		Position:             &position,
		Multiplicity:         models.MultiplicitySingle,
	}

	for _, override := range overrides {
		override(activity)
	}

	return activity
}

// WithActivityName sets the activity definition name.
func WithActivityName(name string) func(*models.ActivityDefinition) {
	return func(a *models.ActivityDefinition) {
		a.Name = name
	}
}

// WithMultiplicity sets the activity definition multiplicity.
func WithMultiplicity(multiplicity models.Multiplicity) func(*models.ActivityDefinition) {
	return func(a *models.ActivityDefinition) {
		a.Multiplicity = multiplicity
	}
}

// CreateTestTransition creates a default-named transition between two
// activity definitions.
func CreateTestTransition(workflowDefinitionID, fromID, toID string, overrides ...func(*models.TransitionDefinition)) *models.TransitionDefinition {
	transition := &models.TransitionDefinition{
		ID:                   uuid.New().String(),
		WorkflowDefinitionID: workflowDefinitionID,
		FromID:               fromID,
		ToID:                 toID,
		Name:                 models.DefaultTransitionName,
	}

	for _, override := range overrides {
		override(transition)
	}

	return transition
}

// WithTransitionName sets the transition name.
func WithTransitionName(name string) func(*models.TransitionDefinition) {
	return func(t *models.TransitionDefinition) {
		t.Name = name
	}
}

// CreateTestChain builds a definition with a linear default chain of the
// given activity names, wired and positioned in order.
func CreateTestChain(names ...string) (*models.WorkflowDefinition, []*models.ActivityDefinition, []*models.TransitionDefinition) {
	workflowDefinition := CreateTestDefinition()

	activities := make([]*models.ActivityDefinition, 0, len(names))
	for index, name := range names {
		activities = append(activities, CreateTestActivityDefinition(
			workflowDefinition.ID, index+1, WithActivityName(name),
		))
	}

	transitions := make([]*models.TransitionDefinition, 0)
	for index := 1; index < len(activities); index++ {
		transitions = append(transitions, CreateTestTransition(
			workflowDefinition.ID, activities[index-1].ID, activities[index].ID,
		))
	}

	if len(activities) > 0 {
		workflowDefinition.FirstActivityID = activities[0].ID
	}

	return workflowDefinition, activities, transitions
}

// CreateTestInstance creates a started instance bound to an item.
func CreateTestInstance(workflowDefinitionID, itemID string, overrides ...func(*models.WorkflowInstance)) *models.WorkflowInstance {
	inst := &models.WorkflowInstance{
		ID:                   uuid.New().String(),
		WorkflowDefinitionID: workflowDefinitionID,
		ItemID:               itemID,
		Status:               models.InstanceStatusStarted,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}

	for _, override := range overrides {
		override(inst)
	}

	return inst
}

// WithStatus sets the instance status.
func WithStatus(status models.InstanceStatus) func(*models.WorkflowInstance) {
	return func(i *models.WorkflowInstance) {
		i.Status = status
	}
}

// WithCurrentActivity sets the instance's current activity pointer.
func WithCurrentActivity(activityID string) func(*models.WorkflowInstance) {
	return func(i *models.WorkflowInstance) {
		i.CurrentActivityID = activityID
	}
}

// CreateTestActivity creates an activity occurrence inside an instance.
func CreateTestActivity(activityDefinitionID, instanceID string, overrides ...func(*models.Activity)) *models.Activity {
	activity := &models.Activity{
		ID:                   uuid.New().String(),
		ActivityDefinitionID: activityDefinitionID,
		WorkflowInstanceID:   instanceID,
		CreatedAt:            time.Now().UTC(),
	}

	for _, override := range overrides {
		override(activity)
	}

	return activity
}

// WithFlags sets the activity auto and valid flags.
func WithFlags(isAuto, isValid bool) func(*models.Activity) {
	return func(a *models.Activity) {
		a.IsAuto = isAuto
		a.IsValid = isValid
	}
}

// CreateTestRule creates a rule attached to an item.
func CreateTestRule(itemID string, overrides ...func(*models.RuleDefinition)) *models.RuleDefinition {
	rule := &models.RuleDefinition{
		ID:        uuid.New().String(),
		ItemID:    itemID,
		Label:     "Test Rule",
		CreatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(rule)
	}

	return rule
}

// CreateTestCondition creates a condition on a rule.
func CreateTestCondition(ruleID, field string, operator models.Operator, expression string) *models.ConditionDefinition {
	return &models.ConditionDefinition{
		ID:         uuid.New().String(),
		RuleID:     ruleID,
		Field:      field,
		Operator:   operator,
		Expression: expression,
	}
}

// CreateTestSelector creates a selector binding an item to an account group.
func CreateTestSelector(itemID, accountGroupID string, overrides ...func(*models.SelectorDefinition)) *models.SelectorDefinition {
	selector := &models.SelectorDefinition{
		ID:             uuid.New().String(),
		ItemID:         itemID,
		AccountGroupID: accountGroupID,
		CreatedAt:      time.Now().UTC(),
	}

	for _, override := range overrides {
		override(selector)
	}

	return selector
}

// WithGroupTag sets the selector's bulk-removal tag.
func WithGroupTag(groupTag string) func(*models.SelectorDefinition) {
	return func(s *models.SelectorDefinition) {
		s.GroupTag = groupTag
	}
}

// CreateTestFilter creates a filter on a selector.
func CreateTestFilter(selectorID, field string, operator models.Operator, expression string) *models.FilterDefinition {
	return &models.FilterDefinition{
		ID:         uuid.New().String(),
		SelectorID: selectorID,
		Field:      field,
		Operator:   operator,
		Expression: expression,
	}
}

// CreateTestDecision creates a decision on an activity.
func CreateTestDecision(activityID string, overrides ...func(*models.Decision)) *models.Decision {
	decision := &models.Decision{
		ID:         uuid.New().String(),
		ActivityID: activityID,
		Username:   "test-user",
		Choice:     "approve",
		CreatedAt:  time.Now().UTC(),
	}

	for _, override := range overrides {
		override(decision)
	}

	return decision
}
