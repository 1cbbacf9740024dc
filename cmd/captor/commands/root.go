package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/captorfm/gqlbroker/internal/app"
	"github.com/captorfm/gqlbroker/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := &cli.Command{
		Name:      "captor",
		Usage:     "Captor API token broker and GraphQL client",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Sources: cli.EnvVars("CAPTOR_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "telemetry--exporter",
				Usage: "log exporter (none|stdout|otlpgrpc|otlphttp)",
				Value: string(app.DefaultConfigTelemetryExporter),
			},
			&cli.StringFlag{
				Name:    "environment",
				Aliases: []string{"e"},
				Usage:   "target environment (prod|test)",
				Value:   app.DefaultConfigEnvironment,
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "token storage (file|env|keyring)",
				Value: string(app.DefaultConfigAuthStorage),
			},
			&cli.StringFlag{
				Name:  "auth--file",
				Usage: "token file for file storage",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			tokenCommand(),
			queryCommand(),
			statusCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// appAction loads the config, installs logging and builds the App before
// calling action. The logging pipeline is flushed when action returns.
func appAction(action func(ctx context.Context, cmd *cli.Command, a *app.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Set up observability before creating app
		shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), cfg.Telemetry.Exporter)
		if err != nil {
			return fmt.Errorf("failed to set up observability layer: %w", err)
		}
		defer func() {
			if shutdownErr := shutdown(context.WithoutCancel(ctx)); shutdownErr != nil && err == nil {
				err = fmt.Errorf("flushing logs: %w", shutdownErr)
			}
		}()

		application, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}

		return action(ctx, cmd, application)
	}
}
