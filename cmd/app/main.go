package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// baseOptions loads the configuration and assembles the options shared by
// every mode. A load failure prints the environment reference so editor and
// agent setups can be fixed without digging through docs.
func baseOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, internal.EnvUsage())
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithConfigPath(configPath),
		internal.WithVersion(version),
	}, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	opts, err := baseOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Run(ctx, opts...)
}

func runCheck(ctx context.Context, cmd *cli.Command) error {
	opts, err := baseOptions(cmd)
	if err != nil {
		return err
	}
	opts = append(opts, internal.WithPaths(cmd.Args().Slice()...))
	return internal.Check(ctx, opts...)
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := baseOptions(cmd)
	if err != nil {
		return err
	}
	opts = append(opts, internal.WithWorkspaceDir(cmd.String("workspace")))
	return internal.RunMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "jenkinsfile-lint-lsp",
		Usage:  "Language server that validates Jenkinsfiles against a Jenkins controller",
		Action: runServe,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "$XDG_CONFIG_HOME/jenkinsfile-lint-lsp/config.yaml",
				Sources:     cli.EnvVars("JENKINSFILE_LS_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Validate Jenkinsfiles once and exit non-zero on rejection",
				ArgsUsage: "[file or directory ...]",
				Action:    runCheck,
			},
			{
				Name:   "mcp",
				Usage:  "Expose validation tools over the Model Context Protocol on stdio",
				Action: runMCP,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "workspace",
						Usage: "Directory the file tools operate on (default: working directory)",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
