// Package main provides the Veriflow batch recalculation runner.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
	"github.com/veriflow-io/veriflow/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "veriflow-recalc",
		Usage:                 "Reconcile workflow instances against the current rule configuration",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:  "definition-id",
				Usage: "Reconcile only this workflow definition (all definitions when empty)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Number of concurrent reconciliation workers",
				Value:   4,
				Sources: cli.EnvVars("RECALC_WORKERS"),
			},
			&cli.BoolFlag{
				Name:  "abort-on-error",
				Usage: "Stop the batch at the first failing instance",
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for periodic runs (one-shot when empty)",
				Sources: cli.EnvVars("RECALC_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "watch",
				Usage:   "Reconcile on definition and selector change events",
				Sources: cli.EnvVars("RECALC_WATCH"),
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

			return run(ctx, command)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
