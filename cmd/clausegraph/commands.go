package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/clausegraph"
	"github.com/brunobiangulo/clausegraph/analysis"
	"github.com/brunobiangulo/clausegraph/export"
	"github.com/brunobiangulo/clausegraph/limitation"
	"github.com/brunobiangulo/clausegraph/normalize"
	"github.com/brunobiangulo/clausegraph/queries"
)

const commandTimeout = 2 * time.Minute

func question(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func queryCmd(g *globalFlags) *cobra.Command {
	var (
		id       string
		cypherQ  string
		rowsFile string
		xlsxPath string
	)
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question on the contract graph",
		Example: `  clausegraph query "Which contracts have no audit rights clause?"
  clausegraph query --id aggregation --xlsx aggregation.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := question(args)
			if id == "" && q == "" {
				return errors.New("a question or --id is required")
			}

			var opts []clausegraph.QueryOption
			if cypherQ != "" {
				opts = append(opts, clausegraph.WithCypher(cypherQ))
			}
			if rowsFile != "" {
				rows, err := readRows(rowsFile)
				if err != nil {
					return err
				}
				opts = append(opts, clausegraph.WithRows(rows))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			e, _, err := g.openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			var env *analysis.Envelope
			if id != "" {
				env, err = e.QueryShowcase(ctx, id, opts...)
			} else {
				env, err = e.Query(ctx, q, opts...)
			}
			if err != nil {
				return err
			}

			if xlsxPath != "" {
				f, err := os.Create(xlsxPath)
				if err != nil {
					return err
				}
				if err := export.WriteXLSX(f, env); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", xlsxPath)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), env)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Showcase query id")
	cmd.Flags().StringVar(&cypherQ, "cypher", "", "Run this Cypher instead of generating one")
	cmd.Flags().StringVar(&rowsFile, "rows", "", "JSON file of result rows to normalize instead of executing")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write the result as an XLSX workbook to this path")
	return cmd
}

func readRows(path string) ([]normalize.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	rows := []normalize.Row{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing rows: %w", err)
	}
	return rows, nil
}

func cypherCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cypher <question>",
		Short: "Print the Cypher generated for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			e, _, err := g.openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			q, err := e.Cypher(ctx, question(args))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), q)
			return nil
		},
	}
}

func ragCmd(g *globalFlags) *cobra.Command {
	var id, category string
	cmd := &cobra.Command{
		Use:   "rag [question]",
		Short: "Run a question through vector search and explain its limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := question(args)
			if id == "" && q == "" {
				return errors.New("a question or --id is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			e, _, err := g.openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			var resp *clausegraph.SimilarityResponse
			if id != "" {
				resp, err = e.SimilarityShowcase(ctx, id)
			} else {
				resp, err = e.Similarity(ctx, q, category)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Showcase query id")
	cmd.Flags().StringVar(&category, "category", "", "Limitation category (detected when empty)")
	return cmd
}

// classifyCmd needs no collaborators, so it skips engine construction.
func classifyCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "classify <question>",
		Short: "Explain whether vector search can answer a question",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := question(args)
			if q == "" && category == "" {
				return errors.New("a question or --category is required")
			}
			return printJSON(cmd.OutOrStdout(), limitation.Classify(q, category))
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Known category; wins over detection")
	return cmd
}

func warmCacheCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "warm-cache",
		Short: "Run every showcase query and persist the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()
			e, _, err := g.openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			results, err := e.WarmCache(ctx)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSHAPE\tROWS\tERROR")
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.Shape, r.Rows, r.Error)
			}
			tw.Flush()
			return err
		},
	}
}

func queriesCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "List the showcase queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			set := queries.Default()
			if cfg.QueriesPath != "" {
				if set, err = queries.Load(cfg.QueriesPath); err != nil {
					return err
				}
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), set.All())
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tQUERY")
			for _, q := range set.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", q.ID, q.Category, q.Query)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print full query definitions as JSON")
	return cmd
}
