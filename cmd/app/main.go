package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/logbridge/internal"
	pkgconfig "github.com/starford/logbridge/pkg/config"
)

type entryFunc func(ctx context.Context, opts ...internal.Option) error

// action loads the config file, applies flag overrides, validates and
// hands over to entry.
func action(entry entryFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		applyFlags(cmd, cfg)
		if err := pkgconfig.Validate(cfg); err != nil {
			return err
		}

		if err := entry(ctx, internal.WithConfig(cfg)); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

// applyFlags overrides config values with explicitly set flags.
func applyFlags(cmd *cli.Command, cfg *internal.Config) {
	if cmd.IsSet("source") {
		cfg.Source.Path = cmd.String("source")
	}
	if cmd.IsSet("output") {
		cfg.Output.Path = cmd.String("output")
	}
	if cmd.IsSet("assets-dir") {
		cfg.Source.AssetsDir = cmd.String("assets-dir")
	}
	if cmd.IsSet("attachments-dir") {
		cfg.Output.AttachmentsDir = cmd.String("attachments-dir")
	}
	if cmd.IsSet("category-tag") {
		cfg.Convert.CategoryTag = cmd.String("category-tag")
	}
	if cmd.IsSet("category-folder") {
		cfg.Convert.CategoryFolder = cmd.String("category-folder")
	}
	if cmd.IsSet("promote-top-level") {
		cfg.Convert.PromoteTopLevel = cmd.Bool("promote-top-level")
	}
	if cmd.IsSet("workers") {
		cfg.Convert.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("dry-run") {
		cfg.Output.DryRun = cmd.Bool("dry-run")
	}
	if cmd.IsSet("ledger") {
		cfg.Ledger.Path = cmd.String("ledger")
	}
	if cmd.IsSet("port") {
		cfg.App.HTTP.Port = int(cmd.Int("port"))
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "logbridge",
		Usage:  "Convert a Logseq graph into an Obsidian vault, resolving block references across the whole corpus",
		Action: action(internal.Run),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "Logseq graph directory",
				Sources: cli.EnvVars("APP_SOURCE_PATH"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Obsidian vault directory",
				Sources: cli.EnvVars("APP_OUTPUT_PATH"),
			},
			&cli.StringFlag{
				Name:    "assets-dir",
				Usage:   "Assets directory inside the source graph",
				Sources: cli.EnvVars("APP_ASSETS_DIR"),
			},
			&cli.StringFlag{
				Name:    "attachments-dir",
				Usage:   "Attachments directory inside the output vault",
				Sources: cli.EnvVars("APP_ATTACHMENTS_DIR"),
			},
			&cli.StringFlag{
				Name:    "category-tag",
				Usage:   "Marker tag that routes a page into the category folder",
				Sources: cli.EnvVars("APP_CATEGORY_TAG"),
			},
			&cli.StringFlag{
				Name:    "category-folder",
				Usage:   "Folder receiving pages that start with the category tag",
				Sources: cli.EnvVars("APP_CATEGORY_FOLDER"),
			},
			&cli.BoolFlag{
				Name:    "promote-top-level",
				Usage:   "Turn top-level list items into paragraphs",
				Sources: cli.EnvVars("APP_PROMOTE_TOP_LEVEL"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Documents processed concurrently within a stage",
				Sources: cli.EnvVars("APP_WORKERS"),
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "Convert without writing anything",
				Sources: cli.EnvVars("APP_DRY_RUN"),
			},
			&cli.StringFlag{
				Name:    "ledger",
				Usage:   "SQLite file recording conversion runs",
				Sources: cli.EnvVars("APP_LEDGER_PATH"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "convert",
				Usage:  "Convert the graph once and print the summary (default)",
				Action: action(internal.Run),
			},
			{
				Name:   "watch",
				Usage:  "Convert, then convert again whenever the graph changes",
				Action: action(internal.Watch),
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "Status API port (0 disables it)",
						Sources: cli.EnvVars("APP_HTTP_PORT"),
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve conversion tools over MCP stdio",
				Action: action(internal.ServeMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
