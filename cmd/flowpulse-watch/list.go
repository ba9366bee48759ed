package main

import (
	"context"
	"fmt"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/flowpulse/flowpulse/pkg/client"
	"github.com/flowpulse/flowpulse/pkg/log"
)

func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List recent executions of a workflow",
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:     "workflow-id",
				Aliases:  []string{"w"},
				Usage:    "ID of the workflow",
				Required: true,
				Sources:  cli.EnvVars("WORKFLOW_ID"),
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of executions to list",
				Value:   20,
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("watch")
			cfg := loadConfig(command)

			executionClient := client.New(cfg.ExecutionAPIURL, client.WithLogger(logger))

			workflowID := command.String("workflow-id")

			executions, err := executionClient.ListExecutions(ctx, workflowID, int(command.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list executions for workflow %s: %w", workflowID, err)
			}

			if len(executions) == 0 {
				fmt.Println("No executions found")

				return nil
			}

			for _, execution := range executions {
				completed := "-"
				if execution.CompletedAt != nil {
					completed = execution.CompletedAt.Format(time.RFC3339)
				}

				fmt.Printf("%s  %-10s  started %s  completed %s\n",
					execution.ID, execution.Status,
					execution.StartedAt.Format(time.RFC3339), completed)
			}

			return nil
		},
	}
}
