package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
	"github.com/veriflow-io/veriflow/pkg/cmd"
	"github.com/veriflow-io/veriflow/pkg/log"
	"github.com/veriflow-io/veriflow/pkg/otelhelper"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "veriflow-api",
		Usage:                 "Manage workflow definitions, rules and instances",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "items-path",
				Usage:    "Path to the business items JSON document",
				Required: true,
				Sources:  cli.EnvVars("ITEMS_PATH"),
			},
			&cli.StringFlag{
				Name:     "groups-path",
				Usage:    "Path to the account groups JSON document",
				Required: true,
				Sources:  cli.EnvVars("GROUPS_PATH"),
			},
			&cli.StringFlag{
				Name:    "constants-path",
				Usage:   "Path to the rule constants JSON document",
				Sources: cli.EnvVars("CONSTANTS_PATH"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the item cache",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Veriflow API")

			tracer, err := otelhelper.NewTracer(ctx, "veriflow-api")
			if err != nil {
				return err
			}

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := store.Close(ctx)
				if err != nil {
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

			api := NewAPI(logger, store, eventBus, itemResolver, groupResolver, constants, tracer)

			err = api.Start(int(command.Int("port")))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
