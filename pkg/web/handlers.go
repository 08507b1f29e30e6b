package web

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/services"
)

type APIHandlers struct {
	definitionService    *services.Definitions
	ruleService          *services.Rules
	instanceService      *services.Instances
	recalculationService *services.Recalculation
}

func NewAPIHandlers(
	definitionService *services.Definitions,
	ruleService *services.Rules,
	instanceService *services.Instances,
	recalculationService *services.Recalculation,
) *APIHandlers {
	return &APIHandlers{
		definitionService:    definitionService,
		ruleService:          ruleService,
		instanceService:      instanceService,
		recalculationService: recalculationService,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeCheck, ok := h.definitionService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Veriflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Veriflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"persistence": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	definitions, err := h.definitionService.ListDefinitions(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(definitions)
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var req services.CreateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.definitionService.CreateDefinition(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow definition ID is required")
	}

	workflowDefinition, err := h.definitionService.GetDefinition(c.Context(), id)
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return notFound(c, "Workflow definition not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflowDefinition)
}

func (h *APIHandlers) DeleteDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow definition ID is required")
	}

	if err := h.definitionService.DeleteDefinition(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	graph, err := h.definitionService.GetGraph(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformGraphResponse(graph))
}

func (h *APIHandlers) ImportGraph(c fiber.Ctx) error {
	graph, err := h.definitionService.ImportGraph(c.Context(), c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformGraphResponse(graph))
}

func (h *APIHandlers) AddActivity(c fiber.Ctx) error {
	var req services.AddActivityRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	activity, err := h.definitionService.AddActivity(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(activity)
}

func (h *APIHandlers) RemoveActivity(c fiber.Ctx) error {
	err := h.definitionService.RemoveActivity(c.Context(), c.Params("id"), c.Params("activityId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) MoveActivity(c fiber.Ctx) error {
	var req MoveActivityRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err := h.definitionService.MoveActivity(c.Context(), c.Params("id"), c.Params("activityId"), req.Position)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddTransition(c fiber.Ctx) error {
	var req services.AddTransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	transition, err := h.definitionService.AddTransition(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(transition)
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	var req services.CreateRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	rule, err := h.ruleService.CreateRule(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

func (h *APIHandlers) GetRule(c fiber.Ctx) error {
	rule, err := h.ruleService.GetRule(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) RulesByItem(c fiber.Ctx) error {
	rules, err := h.ruleService.RulesByItem(c.Context(), c.Query("item_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rules)
}

func (h *APIHandlers) DeleteRule(c fiber.Ctx) error {
	if err := h.ruleService.DeleteRule(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddCondition(c fiber.Ctx) error {
	var req services.AddConditionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	condition, err := h.ruleService.AddCondition(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(condition)
}

func (h *APIHandlers) ConditionsByRule(c fiber.Ctx) error {
	conditions, err := h.ruleService.ConditionsByRule(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(conditions)
}

func (h *APIHandlers) DeleteCondition(c fiber.Ctx) error {
	if err := h.ruleService.DeleteCondition(c.Context(), c.Params("conditionId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) FindRulesByCriteria(c fiber.Ctx) error {
	var req RuleCriteriaRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	rules, err := h.ruleService.FindRulesByCriteria(c.Context(), persistence.RuleCriteria{
		Field:      req.Field,
		Operator:   req.Operator,
		Expression: req.Expression,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rules)
}

func (h *APIHandlers) FindActivitiesByCriteria(c fiber.Ctx) error {
	var req RuleCriteriaRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	activities, err := h.ruleService.FindActivitiesByCriteria(c.Context(), persistence.RuleCriteria{
		Field:      req.Field,
		Operator:   req.Operator,
		Expression: req.Expression,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(activities)
}

func (h *APIHandlers) CreateSelector(c fiber.Ctx) error {
	var req services.CreateSelectorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	selector, err := h.ruleService.CreateSelector(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(selector)
}

func (h *APIHandlers) GetSelector(c fiber.Ctx) error {
	selector, err := h.ruleService.GetSelector(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(selector)
}

func (h *APIHandlers) SelectorsByItem(c fiber.Ctx) error {
	selectors, err := h.ruleService.SelectorsByItem(c.Context(), c.Query("item_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(selectors)
}

func (h *APIHandlers) DeleteSelector(c fiber.Ctx) error {
	if err := h.ruleService.DeleteSelector(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddFilter(c fiber.Ctx) error {
	var req services.AddFilterRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	filter, err := h.ruleService.AddFilter(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(filter)
}

func (h *APIHandlers) FiltersBySelector(c fiber.Ctx) error {
	filters, err := h.ruleService.FiltersBySelector(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(filters)
}

func (h *APIHandlers) DeleteFilter(c fiber.Ctx) error {
	if err := h.ruleService.DeleteFilter(c.Context(), c.Params("filterId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RemoveSelectorsByGroupTag(c fiber.Ctx) error {
	if err := h.ruleService.RemoveSelectorsByGroupTag(c.Context(), c.Params("groupTag")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateInstance(c fiber.Ctx) error {
	var req services.CreateInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	inst, err := h.instanceService.CreateInstance(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(inst)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	inst, err := h.instanceService.GetInstance(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsInstanceNotFound(err) {
			return notFound(c, "Workflow instance not found")
		}

		return internalError(c, err)
	}

	return c.JSON(inst)
}

func (h *APIHandlers) InstancesByDefinition(c fiber.Ctx) error {
	instances, err := h.instanceService.InstancesByDefinition(c.Context(), c.Query("workflow_definition_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instances)
}

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	inst, err := h.instanceService.StartInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(inst)
}

func (h *APIHandlers) PauseInstance(c fiber.Ctx) error {
	inst, err := h.instanceService.PauseInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(inst)
}

func (h *APIHandlers) ResumeInstance(c fiber.Ctx) error {
	inst, err := h.instanceService.ResumeInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(inst)
}

func (h *APIHandlers) EndInstance(c fiber.Ctx) error {
	inst, err := h.instanceService.EndInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(inst)
}

func (h *APIHandlers) SaveDecision(c fiber.Ctx) error {
	var req services.SaveDecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	next, err := h.instanceService.SaveDecision(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	if next == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.Status(fiber.StatusCreated).JSON(next)
}

func (h *APIHandlers) InstanceActivities(c fiber.Ctx) error {
	activities, err := h.instanceService.GetActivities(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(activities)
}

func (h *APIHandlers) InstanceDecisions(c fiber.Ctx) error {
	decisions, err := h.instanceService.DecisionsByInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(decisions)
}

func (h *APIHandlers) RecalculateDefinition(c fiber.Ctx) error {
	out, err := h.recalculationService.RecalculateDefinition(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(RecalculationResponse{
		PointerMoves:      len(out.WorkflowsUpdateCurrentActivity) + len(out.ActivitiesCreateUpdateCurrentActivity),
		ActivitiesCreated: len(out.ActivitiesCreate) + len(out.ActivitiesCreateUpdateCurrentActivity),
		ActivitiesUpdated: len(out.ActivitiesUpdateIsAuto),
		Empty:             out.Empty(),
	})
}

func (h *APIHandlers) RecalculateInstance(c fiber.Ctx) error {
	out, err := h.recalculationService.RecalculateInstance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(RecalculationResponse{
		PointerMoves:      len(out.WorkflowsUpdateCurrentActivity) + len(out.ActivitiesCreateUpdateCurrentActivity),
		ActivitiesCreated: len(out.ActivitiesCreate) + len(out.ActivitiesCreateUpdateCurrentActivity),
		ActivitiesUpdated: len(out.ActivitiesUpdateIsAuto),
		Empty:             out.Empty(),
	})
}
