package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/query"
	"github.com/leapstack-labs/roadlens/pkg/engine"
	"github.com/spf13/cobra"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
}

// querySession is a loaded catalog plus a live engine connection.
type querySession struct {
	sess *Session
	cat  *catalog.Catalog
	conn engine.Conn
	exec *query.Executor
}

// run registers the dataset and runs sqlText with {{.Alias}} bound to it.
func (q *querySession) run(ctx context.Context, sourceID, sqlText string) (resultSet, error) {
	e, ok := q.cat.Get(sourceID)
	if !ok {
		return resultSet{}, fmt.Errorf("dataset %q not in catalog (available: %v)", sourceID, q.cat.SortedIDs())
	}
	res, err := q.exec.Query(ctx, q.conn, e.TablePath(), query.SQLTemplate(sqlText))
	if err != nil {
		return resultSet{}, err
	}
	return newResultSet(res), nil
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [source_id] [SQL]",
		Short: "Query a dataset with the analytics engine",
		Long: `Register a dataset's table with the engine and run SQL against it.

The SQL is a template: {{.Alias}} expands to the registered table alias.
SQL may also come from --input or standard input.

When invoked without SQL on a terminal, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  roadlens query morth_rts "SELECT year, SUM(metric_value) FROM {{.Alias}} GROUP BY 1"

  # List datasets and their aliases
  roadlens query datasets

  # Show the columns of a dataset
  roadlens query schema morth_rts

  # Output as JSON
  roadlens query morth_rts "SELECT * FROM {{.Alias}} LIMIT 5" --format json

  # Interactive mode
  roadlens query`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	// Flags
	cmd.PersistentFlags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	// Subcommands
	cmd.AddCommand(newQueryDatasetsCommand(opts))
	cmd.AddCommand(newQuerySchemaCommand(opts))

	return cmd
}

// openQuerySession loads the catalog and starts the engine.
func openQuerySession(cmd *cobra.Command) (*querySession, func(), error) {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()

	cat, err := cmdCtx.Session.LoadCatalog(ctx)
	if err != nil {
		cleanup()
		return nil, nil, reportError(cmdCtx.Renderer, err)
	}
	h, err := cmdCtx.Session.Bootstrap(ctx)
	if err != nil {
		cleanup()
		return nil, nil, reportError(cmdCtx.Renderer, err)
	}

	return &querySession{
		sess: cmdCtx.Session,
		cat:  cat,
		conn: h.Conn,
		exec: cmdCtx.Session.Executor(),
	}, cleanup, nil
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	var sourceID string
	if len(args) > 0 {
		sourceID = args[0]
		args = args[1:]
	}

	// Determine SQL source
	var sqlQuery string

	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		// Read from stdin (piped input)
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	}

	qs, cleanup, err := openQuerySession(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if strings.TrimSpace(sqlQuery) == "" {
		if !isTerminal(os.Stdin) {
			return fmt.Errorf("no SQL given")
		}
		// No input, TTY detected - enter REPL mode
		return runQueryREPL(cmd, qs, sourceID, opts)
	}
	if sourceID == "" {
		return fmt.Errorf("a source_id is required with SQL")
	}

	rs, err := qs.run(cmd.Context(), sourceID, sqlQuery)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return renderResults(cmd.OutOrStdout(), rs, opts.Format)
}

// newQueryDatasetsCommand creates the datasets subcommand.
func newQueryDatasetsCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List queryable datasets and their table aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			cat, err := cmdCtx.Session.LoadCatalog(cmd.Context())
			if err != nil {
				return reportError(cmdCtx.Renderer, err)
			}
			return renderResults(cmd.OutOrStdout(), datasetRows(cat), opts.Format)
		},
	}
}

func datasetRows(cat *catalog.Catalog) resultSet {
	rows := make([]engine.Row, 0, cat.Len())
	for _, e := range cat.Entries() {
		if e.Disabled() {
			continue
		}
		rows = append(rows, engine.Row{
			"source_id": e.SourceID,
			"alias":     query.AliasFor(e.TablePath()),
			"table":     e.TablePath(),
		})
	}
	return resultSet{Columns: []string{"source_id", "alias", "table"}, Rows: rows}
}

// newQuerySchemaCommand creates the schema subcommand.
func newQuerySchemaCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <source_id>",
		Short: "Show the columns of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, cleanup, err := openQuerySession(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			rs, err := qs.run(cmd.Context(), args[0], schemaSQL)
			if err != nil {
				return fmt.Errorf("failed to describe %s: %w", args[0], err)
			}
			return renderResults(cmd.OutOrStdout(), rs, opts.Format)
		},
	}
}

const schemaSQL = "SELECT column_name, column_type, \"null\" AS nullable FROM (DESCRIBE SELECT * FROM {{.Alias}})"

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
