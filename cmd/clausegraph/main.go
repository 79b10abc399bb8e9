// Command clausegraph serves and queries the contract knowledge graph.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/clausegraph"
	"github.com/brunobiangulo/clausegraph/metrics"
)

const appName = "clausegraph"

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Natural-language questions over a contract knowledge graph",
		Long: `clausegraph turns questions about contracts into Cypher, runs them on
a Neo4j contract graph and returns normalized, analyzed results. The rag
command runs the same question through vector search for comparison.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr(), g.logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML or JSON)")
	cmd.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", nil, "Env files to load (default .env.local, .env)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(g),
		queryCmd(g),
		cypherCmd(g),
		ragCmd(g),
		classifyCmd(),
		warmCacheCmd(g),
		queriesCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, version)
			},
		},
	)
	return cmd
}

func setupLogging(w io.Writer, level string) {
	l := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l})))
}

// loadConfig reads the config file, if any, then applies the environment.
func (g *globalFlags) loadConfig() (clausegraph.Config, error) {
	cfg := clausegraph.DefaultConfig()
	if g.configPath != "" {
		c, err := clausegraph.LoadConfig(g.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if err := cfg.ApplyEnv(g.envFiles...); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (g *globalFlags) openEngine(ctx context.Context, opts ...clausegraph.Option) (clausegraph.Engine, clausegraph.Config, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	e, err := clausegraph.New(ctx, cfg, opts...)
	if err != nil {
		return nil, cfg, fmt.Errorf("creating engine: %w", err)
	}
	return e, cfg, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cfg, err := g.openEngine(cmd.Context(), clausegraph.WithMetrics(metrics.New()))
			if err != nil {
				return err
			}
			defer e.Close()

			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(e, cfg.Server)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}
