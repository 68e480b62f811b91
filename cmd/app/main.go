package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notegraph/internal"
	pkgconfig "github.com/starford/notegraph/pkg/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if vault := cmd.String("vault"); vault != "" {
		cfg.Vault.Path = vault
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

// openRuntime opens the engine for one-shot commands, logging to stderr so
// stdout carries only the command's JSON output.
func openRuntime(cmd *cli.Command) (*internal.Runtime, error) {
	opts, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open(nil, append(opts, internal.WithLogOutput(os.Stderr))...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func syncIndex(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.Service.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return printJSON(res)
}

func search(ctx context.Context, cmd *cli.Command) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("search: a query is required")
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !cmd.Bool("no-sync") {
		if _, err := rt.Service.Sync(ctx); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}
	results, err := rt.Service.Search(ctx, query, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return printJSON(results)
}

func graphCmd(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cmd.Bool("full") {
		g, err := rt.Service.BuildGraph(ctx)
		if err != nil {
			return fmt.Errorf("graph: %w", err)
		}
		return printJSON(g)
	}
	a, err := rt.Service.Analyze(ctx, int(cmd.Int("top")))
	if err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	return printJSON(a)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "notegraph",
		Usage:   "Index a folder of Markdown notes for full-text search and link-graph analysis",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (defaults apply when it does not exist)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "Corpus root; overrides vault.path",
				Sources: cli.EnvVars("NOTEGRAPH_VAULT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and watch the corpus for changes",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "Rescan the corpus and reconcile the index once",
				Action: syncIndex,
			},
			{
				Name:      "search",
				Usage:     "Full-text search the corpus",
				ArgsUsage: "<query>",
				Action:    search,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Max results (0 uses search.default_limit)"},
					&cli.BoolFlag{Name: "no-sync", Usage: "Query the index as is, without rescanning first"},
				},
			},
			{
				Name:   "graph",
				Usage:  "Print graph analysis (orphans, rankings) or the full graph",
				Action: graphCmd,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "top", Value: 10, Usage: "Ranking length"},
					&cli.BoolFlag{Name: "full", Usage: "Print every node and edge instead of the analysis"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
