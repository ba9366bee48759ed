package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	cli "github.com/urfave/cli/v3"

	"github.com/flowpulse/flowpulse/pkg/channel"
	"github.com/flowpulse/flowpulse/pkg/client"
	"github.com/flowpulse/flowpulse/pkg/config"
	"github.com/flowpulse/flowpulse/pkg/log"
	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/flowpulse/flowpulse/pkg/monitor"
	"github.com/flowpulse/flowpulse/pkg/push"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Execute a workflow and stream its progress",
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:     "workflow-id",
				Aliases:  []string{"w"},
				Usage:    "ID of the workflow to execute",
				Required: true,
				Sources:  cli.EnvVars("WORKFLOW_ID"),
			},
			&cli.BoolFlag{
				Name:  "cancel-on-interrupt",
				Usage: "Request cancellation of the execution on Ctrl-C",
			},
		),
		Action: runAction,
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the monitor.yaml configuration file",
			Value:   "monitor.yaml",
			Sources: cli.EnvVars("FLOWPULSE_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "execution-api-url",
			Usage:   "Base URL of the workflow execution service",
			Sources: cli.EnvVars("EXECUTION_API_URL"),
		},
		&cli.StringFlag{
			Name:    "push-url",
			Usage:   "WebSocket endpoint for live execution updates",
			Sources: cli.EnvVars("PUSH_URL"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "warn",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

func loadConfig(command *cli.Command) config.MonitorConfig {
	cfg := config.LoadMonitorConfigOrDefault(command.String("config"))

	if url := command.String("execution-api-url"); url != "" {
		cfg.ExecutionAPIURL = url
	}

	if url := command.String("push-url"); url != "" {
		cfg.PushURL = url
	}

	return cfg
}

func runAction(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("watch")
	cfg := loadConfig(command)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	executionClient := client.New(cfg.ExecutionAPIURL, client.WithLogger(logger))
	store := client.NewWorkflowStore(executionClient)

	workflowID := command.String("workflow-id")

	workflow, err := store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	pushManager := push.NewManager(cfg.PushURL, push.WebSocketDialer(), logger)
	defer func() { _ = pushManager.Close() }()

	notifier := monitor.NewNotifier(logger)
	defer func() { _ = notifier.Close() }()

	coordinator := monitor.NewCoordinator(
		workflow,
		executionClient,
		pushManager,
		logger,
		monitor.WithNotifier(notifier),
		monitor.WithLogCapacity(cfg.LogCapacity),
		monitor.WithChannelConfig(channel.Config{
			PollInterval:         cfg.PollInterval,
			BaseReconnectDelay:   cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnects,
			OwnsPush:             true,
		}),
	)
	defer coordinator.Close()

	updates, err := notifier.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to updates: %w", err)
	}

	execution, err := coordinator.Execute(ctx, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Execution %s started for workflow %q\n", execution.ID, workflow.Name)

	return follow(ctx, command, coordinator, updates, execution)
}

// follow prints status transitions and new log entries until the execution
// reaches a terminal state or the user interrupts.
func follow(
	ctx context.Context,
	command *cli.Command,
	coordinator *monitor.Coordinator,
	updates <-chan *message.Message,
	execution *models.Execution,
) error {
	lastStatus := execution.Status
	seen := make(map[string]struct{})

	printLogs(execution.Logs, seen)

	for {
		select {
		case <-ctx.Done():
			if command.Bool("cancel-on-interrupt") {
				cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				if err := coordinator.Cancel(cancelCtx); err != nil {
					fmt.Fprintf(os.Stderr, "Cancel failed: %v\n", err)
				} else {
					fmt.Println("Cancellation requested")
				}
			}

			return nil
		case msg, ok := <-updates:
			if !ok {
				return nil
			}

			msg.Ack()

			snapshot := coordinator.Snapshot()
			if snapshot == nil {
				continue
			}

			printLogs(snapshot.Logs, seen)

			if snapshot.Status != lastStatus {
				lastStatus = snapshot.Status
				fmt.Printf("Status: %s\n", snapshot.Status)
			}

			if snapshot.Status.Terminal() {
				printSummary(coordinator.Stats(), snapshot)

				return nil
			}
		}
	}
}

func printLogs(entries []*models.LogEntry, seen map[string]struct{}) {
	for _, entry := range entries {
		if _, ok := seen[entry.ID]; ok {
			continue
		}

		seen[entry.ID] = struct{}{}

		node := entry.NodeID
		if node == "" {
			node = "-"
		}

		fmt.Printf("%s [%s] %s: %s\n",
			entry.Timestamp.Format(time.RFC3339), entry.Level, node, entry.Message)
	}
}

func printSummary(stats monitor.Stats, execution *models.Execution) {
	fmt.Printf("\nExecution %s finished: %s\n", execution.ID, execution.Status)

	if execution.Error != "" {
		fmt.Printf("Error: %s\n", execution.Error)
	}

	fmt.Printf("Duration: %s, nodes seen: %d, log entries: %d\n",
		stats.Duration.Round(time.Millisecond), stats.NodesSeen, totalLogs(stats))
}

func totalLogs(stats monitor.Stats) int {
	total := 0
	for _, count := range stats.LogCounts {
		total += count
	}

	return total
}
