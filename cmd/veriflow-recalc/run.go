package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
	"github.com/veriflow-io/veriflow/pkg/cmd"
	"github.com/veriflow-io/veriflow/pkg/events"
	"github.com/veriflow-io/veriflow/pkg/log"
	"github.com/veriflow-io/veriflow/pkg/middleware"
	"github.com/veriflow-io/veriflow/pkg/otelhelper"
	"github.com/veriflow-io/veriflow/pkg/persistence"
	"github.com/veriflow-io/veriflow/pkg/recalc"
	"github.com/veriflow-io/veriflow/pkg/rules"
	"github.com/veriflow-io/veriflow/pkg/selectors"
	"github.com/veriflow-io/veriflow/pkg/services"
)

func run(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("recalc")

	logger.InfoContext(ctx, "Initializing Veriflow recalculation runner")

	tracer, err := otelhelper.NewTracer(ctx, "veriflow-recalc")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	itemResolver, err := cmd.NewItemResolver(command.String("items-path"), command.String("redis-url"))
	if err != nil {
		return err
	}

	groupResolver, err := cmd.NewGroupResolver(command.String("groups-path"))
	if err != nil {
		return err
	}

	constants, err := cmd.LoadConstants(command.String("constants-path"))
	if err != nil {
		return err
	}

	ruleEngine := rules.NewEngine()
	selectorEngine := selectors.NewEngine(ruleEngine)

	engine := recalc.NewEngine(ruleEngine, selectorEngine)
	runner := recalc.NewRunner(engine, logger, recalc.RunnerOptions{
		Workers:      int(command.Int("workers")),
		AbortOnError: command.Bool("abort-on-error"),
	})

	service := services.NewRecalculation(
		store, engine, runner,
		itemResolver, groupResolver, constants,
		eventBus, logger,
		middleware.RecalculationLogging(logger),
		middleware.RecalculationTracing(tracer),
	)

	definitionID := command.String("definition-id")
	schedule := command.String("schedule")
	watch := command.Bool("watch")

	if schedule == "" && !watch {
		return recalculate(ctx, logger, store, service, definitionID)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watch {
		eventBus.Handle(events.DefinitionChangedEvent, func(ctx context.Context, event any) error {
			changed, ok := event.(*events.DefinitionChanged)
			if !ok {
				return nil
			}

			return recalculate(ctx, logger, store, service, changed.WorkflowDefinitionID)
		})

		eventBus.Handle(events.SelectorsRemovedEvent, func(ctx context.Context, _ any) error {
			return recalculate(ctx, logger, store, service, definitionID)
		})

		if err := eventBus.Subscribe(runCtx); err != nil {
			return err
		}

		logger.InfoContext(runCtx, "Watching configuration change events")
	}

	if schedule != "" {
		scheduler := cron.New()

		_, err = scheduler.AddFunc(schedule, func() {
			if err := recalculate(runCtx, logger, store, service, definitionID); err != nil {
				logger.ErrorContext(runCtx, "Scheduled recalculation failed", "error", err)
			}
		})
		if err != nil {
			return err
		}

		scheduler.Start()
		logger.InfoContext(runCtx, "Recalculation schedule active", "schedule", schedule)

		defer func() { <-scheduler.Stop().Done() }()
	}

	<-runCtx.Done()

	return nil
}

// recalculate reconciles one definition, or every stored definition when the
// id is empty. Definition failures are logged and do not block the rest of
// the sweep.
func recalculate(
	ctx context.Context,
	logger *slog.Logger,
	store persistence.Persistence,
	service *services.Recalculation,
	definitionID string,
) error {
	definitionIDs := []string{definitionID}

	if definitionID == "" {
		definitions, err := store.Definitions().ListWorkflowDefinitions(ctx)
		if err != nil {
			return err
		}

		definitionIDs = definitionIDs[:0]
		for _, workflowDefinition := range definitions {
			definitionIDs = append(definitionIDs, workflowDefinition.ID)
		}
	}

	var failed error

	for _, id := range definitionIDs {
		out, err := service.RecalculateDefinition(ctx, id)
		if err != nil {
			logger.ErrorContext(ctx, "Recalculation failed", "workflow_definition_id", id, "error", err)

			failed = errors.Join(failed, err)

			continue
		}

		logger.InfoContext(ctx, "Recalculation completed",
			"workflow_definition_id", id,
			"pointer_moves", len(out.WorkflowsUpdateCurrentActivity)+len(out.ActivitiesCreateUpdateCurrentActivity),
			"activities_created", len(out.ActivitiesCreate)+len(out.ActivitiesCreateUpdateCurrentActivity),
			"activities_updated", len(out.ActivitiesUpdateIsAuto),
		)
	}

	return failed
}
