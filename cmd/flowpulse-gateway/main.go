package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/flowpulse/flowpulse/pkg/client"
	"github.com/flowpulse/flowpulse/pkg/config"
	"github.com/flowpulse/flowpulse/pkg/log"
	"github.com/flowpulse/flowpulse/pkg/otelhelper"
)

const defaultPort = 9094

func main() {
	cmd := &cli.Command{
		Name:                  "flowpulse-gateway",
		Usage:                 "Serve the execution monitoring API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the gateway on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
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
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces via OTLP",
				Sources: cli.EnvVars("ENABLE_TRACING"),
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

			logger := log.WithModule("gateway")

			cfg := config.LoadMonitorConfigOrDefault(command.String("config"))
			if url := command.String("execution-api-url"); url != "" {
				cfg.ExecutionAPIURL = url
			}

			if url := command.String("push-url"); url != "" {
				cfg.PushURL = url
			}

			logger.InfoContext(ctx, "Initializing FlowPulse gateway",
				"execution_api_url", cfg.ExecutionAPIURL,
				"push_url", cfg.PushURL,
			)

			clientOpts := []client.Option{client.WithLogger(logger)}

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "flowpulse-gateway")
				if err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)
				} else {
					clientOpts = append(clientOpts, client.WithTracer(tracer))
				}
			}

			api := NewAPI(ctx, cfg, logger, clientOpts...)
			defer api.Close()

			if err := api.Start(int(command.Int("port"))); err != nil {
				logger.ErrorContext(ctx, "Gateway stopped", "error", err)
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
