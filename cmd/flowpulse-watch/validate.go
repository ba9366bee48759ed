package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/flowpulse/flowpulse/pkg/client"
	"github.com/flowpulse/flowpulse/pkg/log"
	"github.com/flowpulse/flowpulse/pkg/validation"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Check a workflow graph without executing it",
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:     "workflow-id",
				Aliases:  []string{"w"},
				Usage:    "ID of the workflow to validate",
				Required: true,
				Sources:  cli.EnvVars("WORKFLOW_ID"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("watch")
			cfg := loadConfig(command)

			executionClient := client.New(cfg.ExecutionAPIURL, client.WithLogger(logger))
			store := client.NewWorkflowStore(executionClient)

			workflowID := command.String("workflow-id")

			workflow, err := store.GetWorkflow(ctx, workflowID)
			if err != nil {
				return fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
			}

			result := validation.Validate(workflow)
			if result.Valid {
				fmt.Printf("Workflow %q is valid\n", workflow.Name)

				return nil
			}

			fmt.Printf("Workflow %q has %d issue(s):\n", workflow.Name, len(result.Errors))

			for _, issue := range result.Errors {
				target := issue.NodeID
				if target == "" {
					target = issue.EdgeID
				}

				if target == "" {
					target = "graph"
				}

				fmt.Printf("  [%s] %s: %s\n", issue.Code, target, issue.Message)
			}

			return fmt.Errorf("workflow %s failed validation", workflowID)
		},
	}
}
