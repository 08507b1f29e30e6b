// Package main provides the Veriflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/veriflow-io/veriflow/pkg/eventbus"
	"github.com/veriflow-io/veriflow/pkg/instance"
	"github.com/veriflow-io/veriflow/pkg/items"
	"github.com/veriflow-io/veriflow/pkg/middleware"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/recalc"
	"github.com/veriflow-io/veriflow/pkg/rules"
	"github.com/veriflow-io/veriflow/pkg/selectors"
	"github.com/veriflow-io/veriflow/pkg/services"
	"github.com/veriflow-io/veriflow/pkg/web"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger        *slog.Logger
	persistence   persistence.Persistence
	eventBus      eventbus.EventBus
	itemResolver  items.Resolver
	groupResolver selectors.GroupResolver
	constants     map[string]any
	tracer        trace.Tracer
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	itemResolver items.Resolver,
	groupResolver selectors.GroupResolver,
	constants map[string]any,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:        logger,
		persistence:   store,
		eventBus:      eventBus,
		itemResolver:  itemResolver,
		groupResolver: groupResolver,
		constants:     constants,
		tracer:        tracer,
	}
}

func (a *API) App() *fiber.App {
	ruleEngine := rules.NewEngine()
	selectorEngine := selectors.NewEngine(ruleEngine)

	manager := instance.NewManager(
		a.persistence, ruleEngine, selectorEngine,
		a.groupResolver, a.itemResolver, a.constants, a.logger,
	)

	recalcEngine := recalc.NewEngine(ruleEngine, selectorEngine)
	runner := recalc.NewRunner(recalcEngine, a.logger, recalc.RunnerOptions{})

	definitionService := services.NewDefinitions(a.persistence, a.eventBus)
	ruleService := services.NewRules(a.persistence, a.eventBus)
	instanceService := services.NewInstances(
		a.persistence, manager, a.eventBus, a.logger,
		middleware.DecisionLogging(a.logger),
		middleware.DecisionTracing(a.tracer),
	)
	recalculationService := services.NewRecalculation(
		a.persistence, recalcEngine, runner,
		a.itemResolver, a.groupResolver, a.constants,
		a.eventBus, a.logger,
		middleware.RecalculationLogging(a.logger),
		middleware.RecalculationTracing(a.tracer),
	)

	handlers := web.NewAPIHandlers(definitionService, ruleService, instanceService, recalculationService)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Veriflow API")
	})

	d := app.Group("/definitions")
	d.Get("/", handlers.ListDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Delete("/:id", handlers.DeleteDefinition)
	d.Get("/:id/graph", handlers.GetGraph)
	d.Post("/graph", handlers.ImportGraph)
	d.Post("/:id/activities", handlers.AddActivity)
	d.Delete("/:id/activities/:activityId", handlers.RemoveActivity)
	d.Patch("/:id/activities/:activityId/position", handlers.MoveActivity)
	d.Post("/:id/transitions", handlers.AddTransition)
	d.Post("/:id/recalculate", handlers.RecalculateDefinition)

	r := app.Group("/rules")
	r.Get("/", handlers.RulesByItem)
	r.Post("/", handlers.CreateRule)
	r.Post("/search", handlers.FindRulesByCriteria)
	r.Post("/search/activities", handlers.FindActivitiesByCriteria)
	r.Get("/:id", handlers.GetRule)
	r.Delete("/:id", handlers.DeleteRule)
	r.Post("/:id/conditions", handlers.AddCondition)
	r.Get("/:id/conditions", handlers.ConditionsByRule)
	r.Delete("/:id/conditions/:conditionId", handlers.DeleteCondition)

	s := app.Group("/selectors")
	s.Get("/", handlers.SelectorsByItem)
	s.Post("/", handlers.CreateSelector)
	s.Get("/:id", handlers.GetSelector)
	s.Delete("/:id", handlers.DeleteSelector)
	s.Post("/:id/filters", handlers.AddFilter)
	s.Get("/:id/filters", handlers.FiltersBySelector)
	s.Delete("/:id/filters/:filterId", handlers.DeleteFilter)
	s.Delete("/group-tags/:groupTag", handlers.RemoveSelectorsByGroupTag)

	i := app.Group("/instances")
	i.Get("/", handlers.InstancesByDefinition)
	i.Post("/", handlers.CreateInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/start", handlers.StartInstance)
	i.Post("/:id/pause", handlers.PauseInstance)
	i.Post("/:id/resume", handlers.ResumeInstance)
	i.Post("/:id/end", handlers.EndInstance)
	i.Post("/:id/decisions", handlers.SaveDecision)
	i.Get("/:id/activities", handlers.InstanceActivities)
	i.Get("/:id/decisions", handlers.InstanceDecisions)
	i.Post("/:id/recalculate", handlers.RecalculateInstance)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
